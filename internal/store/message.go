package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertMessage persists a message if no record with the same id exists.
// Returns true when a row was written, false when the id was already present.
func (db *DB) InsertMessage(m *Message) (bool, error) {
	refs, err := json.Marshal(m.AttachmentRefs)
	if err != nil {
		return false, fmt.Errorf("marshal attachment refs: %w", err)
	}
	if m.AttachmentRefs == nil {
		refs = []byte("[]")
	}
	res, err := db.Exec(`
		INSERT INTO messages (id, sender_id, receiver_id, body, attachment_refs, created_at, updated_at, read_at, conversation_key, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.SenderID, m.ReceiverID, m.Body, string(refs), m.CreatedAt, m.UpdatedAt, m.ReadAt, m.ConversationKey, m.CachedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMessage returns the cached message with the given id, or nil.
func (db *DB) GetMessage(id string) (*Message, error) {
	row := db.QueryRow(`
		SELECT id, sender_id, receiver_id, body, attachment_refs, created_at, updated_at, read_at, conversation_key, cached_at
		FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByConversation returns every message in a conversation partition,
// sorted ascending by created_at (id breaks ties for determinism).
func (db *DB) ListByConversation(conversationKey string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, sender_id, receiver_id, body, attachment_refs, created_at, updated_at, read_at, conversation_key, cached_at
		FROM messages
		WHERE conversation_key = ?
		ORDER BY created_at ASC, id ASC`, conversationKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// DeleteByConversation removes every message in a conversation partition and
// its sync metadata.
func (db *DB) DeleteByConversation(conversationKey string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE conversation_key = ?`, conversationKey); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM sync_state WHERE conversation_key = ?`, conversationKey)
	return err
}

// Clear removes every cached message and all sync metadata.
func (db *DB) Clear() error {
	if _, err := db.Exec(`DELETE FROM messages`); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM sync_state`)
	return err
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// ConversationCount returns the number of distinct conversation partitions.
func (db *DB) ConversationCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(DISTINCT conversation_key) FROM messages`).Scan(&n)
	return n, err
}

func scanMessage(scan func(dest ...any) error) (*Message, error) {
	var m Message
	var refs string
	if err := scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &refs, &m.CreatedAt, &m.UpdatedAt, &m.ReadAt, &m.ConversationKey, &m.CachedAt); err != nil {
		return nil, err
	}
	if refs != "" && refs != "[]" {
		if err := json.Unmarshal([]byte(refs), &m.AttachmentRefs); err != nil {
			return nil, fmt.Errorf("unmarshal attachment refs for %s: %w", m.ID, err)
		}
	}
	return &m, nil
}
