package database

import (
	"context"
	"fmt"

	"github.com/mixelka/gmailbot/pkg/models"
)

// UpsertUsage merges a usage entry into the daily ledger additively
func (db *DB) UpsertUsage(ctx context.Context, u models.UsageEntry) error {
	query := db.Rebind(`
		INSERT INTO usage_daily (
			account_id, model, usage_date,
			input_tokens, cached_input_tokens, output_tokens,
			input_cost_usd, cached_input_cost_usd, output_cost_usd, total_cost_usd
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, model, usage_date) DO UPDATE SET
			input_tokens = usage_daily.input_tokens + excluded.input_tokens,
			cached_input_tokens = usage_daily.cached_input_tokens + excluded.cached_input_tokens,
			output_tokens = usage_daily.output_tokens + excluded.output_tokens,
			input_cost_usd = usage_daily.input_cost_usd + excluded.input_cost_usd,
			cached_input_cost_usd = usage_daily.cached_input_cost_usd + excluded.cached_input_cost_usd,
			output_cost_usd = usage_daily.output_cost_usd + excluded.output_cost_usd,
			total_cost_usd = usage_daily.total_cost_usd + excluded.total_cost_usd,
			updated_at = CURRENT_TIMESTAMP
	`)
	_, err := db.ExecContext(ctx, query,
		u.AccountID, u.Model, u.Date,
		u.InputTokens, u.CachedInputTokens, u.OutputTokens,
		u.InputCost, u.CachedInputCost, u.OutputCost, u.TotalCost,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}
	return nil
}

// GetUsage returns the ledger row for an account, model and day
func (db *DB) GetUsage(ctx context.Context, accountID int64, model, date string) (*models.UsageEntry, error) {
	var row struct {
		InputTokens       int64   `db:"input_tokens"`
		CachedInputTokens int64   `db:"cached_input_tokens"`
		OutputTokens      int64   `db:"output_tokens"`
		InputCost         float64 `db:"input_cost_usd"`
		CachedInputCost   float64 `db:"cached_input_cost_usd"`
		OutputCost        float64 `db:"output_cost_usd"`
		TotalCost         float64 `db:"total_cost_usd"`
	}
	query := db.Rebind(`
		SELECT input_tokens, cached_input_tokens, output_tokens,
		       input_cost_usd, cached_input_cost_usd, output_cost_usd, total_cost_usd
		  FROM usage_daily
		 WHERE account_id = ? AND model = ? AND usage_date = ?
	`)
	if err := db.GetContext(ctx, &row, query, accountID, model, date); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return &models.UsageEntry{
		AccountID:         accountID,
		Model:             model,
		Date:              date,
		InputTokens:       row.InputTokens,
		CachedInputTokens: row.CachedInputTokens,
		OutputTokens:      row.OutputTokens,
		InputCost:         row.InputCost,
		CachedInputCost:   row.CachedInputCost,
		OutputCost:        row.OutputCost,
		TotalCost:         row.TotalCost,
	}, nil
}
