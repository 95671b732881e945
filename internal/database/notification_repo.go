package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mixelka/gmailbot/pkg/models"
)

const notificationColumns = `
	id, account_id, gmail_message_id, gmail_thread_id, history_id,
	sender_email, sender_name, sender_key, subject, summary,
	category, confidence, importance, detected_codes, status,
	telegram_chat_id, telegram_message_id,
	created_at, updated_at, delivered_at, archived_at, trashed_at`

// NotificationExists reports whether a message was already claimed for an account
func (db *DB) NotificationExists(ctx context.Context, accountID int64, gmailMessageID string) (bool, error) {
	var exists bool
	query := db.Rebind(`SELECT EXISTS(SELECT 1 FROM notifications WHERE account_id = ? AND gmail_message_id = ?)`)
	if err := db.GetContext(ctx, &exists, query, accountID, gmailMessageID); err != nil {
		return false, fmt.Errorf("failed to check notification: %w", err)
	}
	return exists, nil
}

// InsertNotificationPlaceholder claims a message with a pending row.
// Returns ErrAlreadyExists if another delivery claimed it first.
func (db *DB) InsertNotificationPlaceholder(ctx context.Context, accountID int64, gmailMessageID, gmailThreadID string, historyID uint64) (int64, error) {
	query := db.Rebind(`
		INSERT INTO notifications (account_id, gmail_message_id, gmail_thread_id, history_id, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, gmail_message_id) DO NOTHING
		RETURNING id
	`)
	var id int64
	err := db.QueryRowxContext(ctx, query, accountID, gmailMessageID, gmailThreadID, int64(historyID), models.StatusPending).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAlreadyExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification placeholder: %w", err)
	}
	return id, nil
}

// UpdateNotificationDetails writes classification and delivery results
func (db *DB) UpdateNotificationDetails(ctx context.Context, id int64, d models.NotificationDetails) error {
	var chatID, messageID sql.NullInt64
	if d.TelegramChatID != nil {
		chatID = sql.NullInt64{Int64: *d.TelegramChatID, Valid: true}
	}
	if d.TelegramMessageID != nil {
		messageID = sql.NullInt64{Int64: *d.TelegramMessageID, Valid: true}
	}

	query := db.Rebind(`
		UPDATE notifications
		   SET sender_email = ?,
		       sender_name = ?,
		       sender_key = ?,
		       subject = ?,
		       summary = ?,
		       category = ?,
		       confidence = ?,
		       detected_codes = ?,
		       telegram_chat_id = ?,
		       telegram_message_id = ?,
		       status = ?,
		       delivered_at = CASE WHEN ? THEN CURRENT_TIMESTAMP ELSE delivered_at END,
		       updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?
	`)
	_, err := db.ExecContext(ctx, query,
		d.SenderEmail,
		d.SenderName,
		d.SenderKey,
		d.Subject,
		d.Summary,
		d.Category,
		d.Confidence,
		d.DetectedCodes,
		chatID,
		messageID,
		d.Status,
		d.Status == models.StatusNotified,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification details: %w", err)
	}
	return nil
}

// GetNotification returns a notification by ID
func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	var n models.Notification
	query := db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`)
	err := db.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// GetNotificationByMessageID returns the notification of a Gmail message
func (db *DB) GetNotificationByMessageID(ctx context.Context, accountID int64, gmailMessageID string) (*models.Notification, error) {
	var n models.Notification
	query := db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE account_id = ? AND gmail_message_id = ?`)
	err := db.GetContext(ctx, &n, query, accountID, gmailMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// CountNotifications returns the number of rows for an account
func (db *DB) CountNotifications(ctx context.Context, accountID int64) (int, error) {
	var count int
	query := db.Rebind(`SELECT COUNT(*) FROM notifications WHERE account_id = ?`)
	if err := db.GetContext(ctx, &count, query, accountID); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// UpdateNotificationStatus sets the lifecycle status and its timestamp
func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status models.NotificationStatus) error {
	query := db.Rebind(`
		UPDATE notifications
		   SET status = ?,
		       archived_at = CASE WHEN ? THEN CURRENT_TIMESTAMP ELSE archived_at END,
		       trashed_at = CASE WHEN ? THEN CURRENT_TIMESTAMP ELSE trashed_at END,
		       updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?
	`)
	_, err := db.ExecContext(ctx, query,
		status,
		status == models.StatusArchived,
		status == models.StatusTrashed,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}

// UpdateNotificationCategory sets category and confidence
func (db *DB) UpdateNotificationCategory(ctx context.Context, id int64, category string, confidence float64) error {
	query := db.Rebind(`UPDATE notifications SET category = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	_, err := db.ExecContext(ctx, query, category, confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update notification category: %w", err)
	}
	return nil
}

// UpdateNotificationImportance sets the importance flag
func (db *DB) UpdateNotificationImportance(ctx context.Context, id int64, importance string) error {
	query := db.Rebind(`UPDATE notifications SET importance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	_, err := db.ExecContext(ctx, query, importance, id)
	if err != nil {
		return fmt.Errorf("failed to update notification importance: %w", err)
	}
	return nil
}

// DeleteNotification deletes a notification
func (db *DB) DeleteNotification(ctx context.Context, id int64) error {
	query := db.Rebind(`DELETE FROM notifications WHERE id = ?`)
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}
