package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SetUnreadCount stores the authoritative unread total of one (lead, channel).
func (db *DB) SetUnreadCount(leadID, channel string, count int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO unread_counts (lead_id, channel, count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lead_id, channel) DO UPDATE SET
			count = excluded.count,
			updated_at = excluded.updated_at`,
		leadID, channel, count, now)
	return err
}

// BulkSetUnreadCounts stores several unread totals in a single transaction.
func (db *DB) BulkSetUnreadCounts(counts []UnreadCount) error {
	now := time.Now().UnixMilli()
	return db.withTx(func(tx *sql.Tx) error {
		for _, c := range counts {
			if _, err := tx.Exec(`
				INSERT INTO unread_counts (lead_id, channel, count, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(lead_id, channel) DO UPDATE SET
					count = excluded.count,
					updated_at = excluded.updated_at`,
				c.LeadID, c.Channel, c.Count, now); err != nil {
				return fmt.Errorf("set unread %s/%s: %w", c.LeadID, c.Channel, err)
			}
		}
		return nil
	})
}

// ListUnreadCounts returns every stored unread total.
func (db *DB) ListUnreadCounts() ([]UnreadCount, error) {
	rows, err := db.Query(`SELECT lead_id, channel, count FROM unread_counts ORDER BY lead_id, channel`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UnreadCount
	for rows.Next() {
		var c UnreadCount
		if err := rows.Scan(&c.LeadID, &c.Channel, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
