package store

import (
	"database/sql"
	"time"
)

// SavePendingUpload stores or replaces the bytes of an unconfirmed upload.
func (db *DB) SavePendingUpload(u *PendingUpload) error {
	now := time.Now().UnixMilli()
	created := u.CreatedAt
	if created == 0 {
		created = now
	}
	_, err := db.Exec(`
		INSERT INTO pending_uploads (temp_id, conversation_id, kind, filename, caption, data, attempts, rejected, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(temp_id) DO UPDATE SET
			attempts = excluded.attempts,
			rejected = excluded.rejected,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		u.TempID, u.ConversationID, u.Kind, u.Filename, u.Caption, u.Data, u.Attempts, u.Rejected, u.LastError, created, now)
	return err
}

// MarkUploadAttempt records the outcome of one upload attempt.
func (db *DB) MarkUploadAttempt(tempID string, attempts int, rejected bool, lastError string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE pending_uploads SET attempts = ?, rejected = ?, last_error = ?, updated_at = ?
		WHERE temp_id = ?`, attempts, rejected, lastError, now, tempID)
	return err
}

// DeletePendingUpload releases the stored bytes of an upload.
func (db *DB) DeletePendingUpload(tempID string) error {
	_, err := db.Exec(`DELETE FROM pending_uploads WHERE temp_id = ?`, tempID)
	return err
}

// GetPendingUpload returns a pending upload by temp id, nil if unknown.
func (db *DB) GetPendingUpload(tempID string) (*PendingUpload, error) {
	var u PendingUpload
	err := db.QueryRow(`
		SELECT temp_id, conversation_id, kind, filename, caption, data, attempts, rejected, last_error, created_at
		FROM pending_uploads WHERE temp_id = ?`, tempID).
		Scan(&u.TempID, &u.ConversationID, &u.Kind, &u.Filename, &u.Caption, &u.Data, &u.Attempts, &u.Rejected, &u.LastError, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListPendingUploads returns the pending uploads of a conversation, oldest first.
func (db *DB) ListPendingUploads(conversationID string) ([]PendingUpload, error) {
	rows, err := db.Query(`
		SELECT temp_id, conversation_id, kind, filename, caption, data, attempts, rejected, last_error, created_at
		FROM pending_uploads WHERE conversation_id = ?
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PendingUpload
	for rows.Next() {
		var u PendingUpload
		if err := rows.Scan(&u.TempID, &u.ConversationID, &u.Kind, &u.Filename, &u.Caption, &u.Data, &u.Attempts, &u.Rejected, &u.LastError, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
