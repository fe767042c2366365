package store

import "database/sql"

// SetLastSync records the last successful sync time (unix ms) for a
// conversation. The value is advisory; nothing gates on it.
func (db *DB) SetLastSync(conversationKey string, ts int64) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (conversation_key, last_sync_at)
		VALUES (?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
		conversationKey, ts)
	return err
}

// LastSync returns the last successful sync time for a conversation, or zero
// if the conversation has never synced.
func (db *DB) LastSync(conversationKey string) (int64, error) {
	var ts int64
	err := db.QueryRow(`SELECT last_sync_at FROM sync_state WHERE conversation_key = ?`, conversationKey).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return ts, err
}
