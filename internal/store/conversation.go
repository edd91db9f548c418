package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation record. The last
// message pointer only moves forward in time.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (key, user_id, user_name, user_avatar, listing_id, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			user_name = CASE WHEN excluded.user_name != '' THEN excluded.user_name ELSE conversations.user_name END,
			user_avatar = CASE WHEN excluded.user_avatar != '' THEN excluded.user_avatar ELSE conversations.user_avatar END,
			unread_count = excluded.unread_count,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.Key, c.UserID, c.UserName, c.UserAvatar, c.ListingID, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// ListConversations returns conversations sorted by most recent message.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT key, user_id, user_name, user_avatar, listing_id, unread_count, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Key, &c.UserID, &c.UserName, &c.UserAvatar, &c.ListingID, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by key, nil if absent.
func (db *DB) GetConversation(key string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT key, user_id, user_name, user_avatar, listing_id, unread_count, last_message_at, last_message_preview
		FROM conversations WHERE key = ?`, key).
		Scan(&c.Key, &c.UserID, &c.UserName, &c.UserAvatar, &c.ListingID, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkConversationRead zeroes the unread counter.
func (db *DB) MarkConversationRead(key string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET unread_count = 0, updated_at = ? WHERE key = ?`, now, key)
	return err
}

// IncrementUnread bumps the unread counter for an inbound message.
func (db *DB) IncrementUnread(key string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET unread_count = unread_count + 1, updated_at = ? WHERE key = ?`, now, key)
	return err
}

// ConversationCount returns the total number of cached conversations.
func (db *DB) ConversationCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}
