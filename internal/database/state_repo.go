package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const telegramChatKey = "telegram_chat_id"

// GetTelegramChatID returns the registered delivery chat, or nil when none is registered
func (db *DB) GetTelegramChatID(ctx context.Context) (*int64, error) {
	var value string
	query := db.Rebind(`SELECT value FROM app_state WHERE state_key = ?`)
	err := db.GetContext(ctx, &value, query, telegramChatKey)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get telegram chat id: %w", err)
	}

	chatID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stored telegram chat id %q: %w", value, err)
	}
	return &chatID, nil
}

// SetTelegramChatID registers the delivery chat
func (db *DB) SetTelegramChatID(ctx context.Context, chatID int64) error {
	query := db.Rebind(`
		INSERT INTO app_state (state_key, value)
		VALUES (?, ?)
		ON CONFLICT (state_key) DO UPDATE
		   SET value = excluded.value,
		       updated_at = CURRENT_TIMESTAMP
	`)
	_, err := db.ExecContext(ctx, query, telegramChatKey, strconv.FormatInt(chatID, 10))
	if err != nil {
		return fmt.Errorf("failed to set telegram chat id: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
