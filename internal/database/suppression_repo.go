package database

import (
	"context"
	"fmt"

	"github.com/mixelka/gmailbot/pkg/models"
)

// InsertSuppression creates a suppression rule, ignoring duplicates
func (db *DB) InsertSuppression(ctx context.Context, accountID int64, scope models.SuppressionScope, value, category string) error {
	if scope != models.ScopeSenderCategory {
		category = ""
	}
	query := db.Rebind(`
		INSERT INTO suppressions (account_id, scope_key, scope_value, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, scope_key, scope_value, category) DO NOTHING
	`)
	_, err := db.ExecContext(ctx, query, accountID, scope, value, category)
	if err != nil {
		return fmt.Errorf("failed to insert suppression: %w", err)
	}
	return nil
}

// IsSuppressed reports whether any rule matches the sender, its domain, or the
// sender within the given category
func (db *DB) IsSuppressed(ctx context.Context, accountID int64, senderKey, category string) (bool, error) {
	var exists bool
	query := db.Rebind(`
		SELECT EXISTS(
			SELECT 1 FROM suppressions
			 WHERE account_id = ?
			   AND (
			        (scope_key = ? AND scope_value = ?)
			     OR (scope_key = ? AND scope_value = ?)
			     OR (scope_key = ? AND scope_value = ? AND category = ?)
			   )
		)
	`)
	err := db.GetContext(ctx, &exists, query,
		accountID,
		models.ScopeSender, senderKey,
		models.ScopeDomain, models.DomainOf(senderKey),
		models.ScopeSenderCategory, senderKey, category,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check suppression: %w", err)
	}
	return exists, nil
}

// ClearSuppressions removes every rule that would match the sender, domain
// and category. Returns the number of rules removed.
func (db *DB) ClearSuppressions(ctx context.Context, accountID int64, senderKey, domain, category string) (int64, error) {
	query := db.Rebind(`
		DELETE FROM suppressions
		 WHERE account_id = ?
		   AND (
		        (scope_key = ? AND scope_value = ?)
		     OR (scope_key = ? AND scope_value = ?)
		     OR (scope_key = ? AND scope_value = ? AND category = ?)
		   )
	`)
	result, err := db.ExecContext(ctx, query,
		accountID,
		models.ScopeSender, senderKey,
		models.ScopeDomain, domain,
		models.ScopeSenderCategory, senderKey, category,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear suppressions: %w", err)
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

// ListSuppressions returns all rules of an account
func (db *DB) ListSuppressions(ctx context.Context, accountID int64) ([]models.Suppression, error) {
	var rules []models.Suppression
	query := db.Rebind(`
		SELECT id, account_id, scope_key, scope_value, category
		  FROM suppressions
		 WHERE account_id = ?
		 ORDER BY id
	`)
	if err := db.SelectContext(ctx, &rules, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to list suppressions: %w", err)
	}
	return rules, nil
}
