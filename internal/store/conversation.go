package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates conversation metadata. The stored
// last inbound timestamp never moves backwards.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, channel, contact, lead_id, last_inbound_at, blocked, unread, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel = excluded.channel,
			contact = CASE WHEN excluded.contact != '' THEN excluded.contact ELSE conversations.contact END,
			lead_id = CASE WHEN excluded.lead_id != '' THEN excluded.lead_id ELSE conversations.lead_id END,
			last_inbound_at = MAX(conversations.last_inbound_at, excluded.last_inbound_at),
			blocked = excluded.blocked,
			unread = excluded.unread,
			updated_at = excluded.updated_at`,
		c.ID, c.Channel, c.Contact, c.LeadID, c.LastInboundAt, c.Blocked, c.Unread, now)
	return err
}

// GetConversation returns a conversation by id, nil if unknown.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, channel, contact, lead_id, last_inbound_at, blocked, unread
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Channel, &c.Contact, &c.LeadID, &c.LastInboundAt, &c.Blocked, &c.Unread)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsByLead returns the conversations linked to a lead.
func (db *DB) ListConversationsByLead(leadID string) ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT id, channel, contact, lead_id, last_inbound_at, blocked, unread
		FROM conversations WHERE lead_id = ?
		ORDER BY last_inbound_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Channel, &c.Contact, &c.LeadID, &c.LastInboundAt, &c.Blocked, &c.Unread); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
