package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mixelka/gmailbot/pkg/models"
)

// zonelessLayout is how an expiration without offset is stored by older writers
const zonelessLayout = "2006-01-02 15:04:05"

// EnsureAccounts upserts configured accounts and returns their ids keyed by email
func (db *DB) EnsureAccounts(ctx context.Context, emails []string, watchLabelIDs []string) (map[string]int64, error) {
	query := db.Rebind(`
		INSERT INTO gmail_accounts (email, watch_label_ids)
		VALUES (?, ?)
		ON CONFLICT (email) DO UPDATE
		   SET watch_label_ids = excluded.watch_label_ids,
		       updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`)
	labels := strings.Join(watchLabelIDs, ",")

	ids := make(map[string]int64, len(emails))
	for _, email := range emails {
		var id int64
		if err := db.QueryRowxContext(ctx, query, email, labels).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to ensure account %s: %w", email, err)
		}
		ids[email] = id
	}
	return ids, nil
}

// GetAccountState returns the cursor and watch expiration of an account
func (db *DB) GetAccountState(ctx context.Context, accountID int64) (*models.AccountState, error) {
	var row struct {
		LastHistoryID   sql.NullInt64  `db:"last_history_id"`
		WatchExpiration sql.NullString `db:"watch_expiration"`
	}
	query := db.Rebind(`SELECT last_history_id, watch_expiration FROM gmail_accounts WHERE id = ?`)
	err := db.GetContext(ctx, &row, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account state: %w", err)
	}

	state := &models.AccountState{}
	if row.LastHistoryID.Valid {
		cursor := uint64(row.LastHistoryID.Int64)
		state.LastHistoryID = &cursor
	}
	if row.WatchExpiration.Valid && row.WatchExpiration.String != "" {
		expiration, zoned, err := parseExpiration(row.WatchExpiration.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse watch expiration: %w", err)
		}
		state.WatchExpiration = &expiration
		state.ExpirationZoned = zoned
	}
	return state, nil
}

// UpdateLastHistoryID overwrites the durable history cursor
func (db *DB) UpdateLastHistoryID(ctx context.Context, accountID int64, historyID uint64) error {
	query := db.Rebind(`UPDATE gmail_accounts SET last_history_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	_, err := db.ExecContext(ctx, query, int64(historyID), accountID)
	if err != nil {
		return fmt.Errorf("failed to update last history id: %w", err)
	}
	return nil
}

// UpdateWatchInfo stores a new watch expiration. The cursor is only written
// when the account has none yet.
func (db *DB) UpdateWatchInfo(ctx context.Context, accountID int64, historyID *uint64, expiration *time.Time) error {
	var cursor sql.NullInt64
	if historyID != nil {
		cursor = sql.NullInt64{Int64: int64(*historyID), Valid: true}
	}
	var expires sql.NullString
	if expiration != nil {
		expires = sql.NullString{String: expiration.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	query := db.Rebind(`
		UPDATE gmail_accounts
		   SET watch_expiration = ?,
		       last_history_id = COALESCE(last_history_id, ?),
		       updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?
	`)
	_, err := db.ExecContext(ctx, query, expires, cursor, accountID)
	if err != nil {
		return fmt.Errorf("failed to update watch info: %w", err)
	}
	return nil
}

func parseExpiration(value string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(zonelessLayout, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}
