package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on conv_key + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conv_key, msg_id, sender_id, receiver_id, listing_id, body, read, delivered, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_key, msg_id) DO UPDATE SET
			body = excluded.body,
			read = excluded.read,
			delivered = excluded.delivered,
			status = excluded.status`,
		m.ConvKey, m.MsgID, m.SenderID, m.ReceiverID, m.ListingID, m.Body, m.Read, m.Delivered, m.Status, m.Timestamp, now)
	return err
}

// ReplaceMessageID swaps a provisional message id for the server-assigned
// one, preserving the row. Used when a pending entry is confirmed after
// it was already cached.
func (db *DB) ReplaceMessageID(convKey, tempID, serverID string) error {
	_, err := db.Exec(`UPDATE messages SET msg_id = ? WHERE conv_key = ? AND msg_id = ?`,
		serverID, convKey, tempID)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination
// by timestamp.
func (db *DB) ListMessages(convKey string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, conv_key, msg_id, sender_id, receiver_id, listing_id, body, read, delivered, status, timestamp
		FROM messages
		WHERE conv_key = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, convKey, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConvKey, &m.MsgID, &m.SenderID, &m.ReceiverID, &m.ListingID, &m.Body, &m.Read, &m.Delivered, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
