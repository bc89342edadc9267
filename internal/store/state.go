package store

import (
	"database/sql"
	"time"
)

const keySelectedConversation = "selected_conversation"

// setValue writes a ui_state slot (idempotent upsert).
func (db *DB) setValue(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO ui_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// getValue reads a ui_state slot. A missing key is an empty value.
func (db *DB) getValue(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM ui_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SaveSelectedConversation persists the currently-open conversation id
// so a restart resumes the same open conversation. An empty id clears
// the slot.
func (db *DB) SaveSelectedConversation(id string) error {
	return db.setValue(keySelectedConversation, id)
}

// SelectedConversation returns the persisted open-conversation id, or
// "" when none was saved.
func (db *DB) SelectedConversation() (string, error) {
	return db.getValue(keySelectedConversation)
}
