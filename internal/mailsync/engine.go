package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/gmailbot/internal/gmail"
	"github.com/mixelka/gmailbot/internal/metrics"
	"github.com/mixelka/gmailbot/pkg/models"
)

// Processor handles a single new message
type Processor interface {
	Process(ctx context.Context, account models.Account, messageID string, fallbackCursor uint64) error
}

// Engine syncs an account's history cursor. Callers must serialize Sync per account.
type Engine struct {
	store     Store
	mailbox   Mailbox
	processor Processor
	labelID   string
	logger    *slog.Logger
}

// NewEngine creates a sync engine. labelID filters history, empty means all labels.
func NewEngine(store Store, mailbox Mailbox, processor Processor, labelID string, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		mailbox:   mailbox,
		processor: processor,
		labelID:   labelID,
		logger:    logger.With("component", "sync"),
	}
}

// Sync processes all messages added since the durable cursor and advances it.
// hint is the history ID from the push event, used when no cursor is stored yet.
func (e *Engine) Sync(ctx context.Context, account models.Account, hint uint64) error {
	start := time.Now()
	logger := e.logger.With("account", account.Email)

	state, err := e.store.GetAccountState(ctx, account.ID)
	if err != nil {
		metrics.RecordSync("failed", time.Since(start))
		return fmt.Errorf("failed to read cursor: %w", err)
	}
	cursor := hint
	if state.LastHistoryID != nil {
		cursor = *state.LastHistoryID
	}

	entries, newest, err := e.mailbox.ListHistorySince(ctx, account, cursor, e.labelID)
	if errors.Is(err, gmail.ErrCursorInvalid) {
		logger.Warn("history cursor invalid, resetting to current", "cursor", cursor)
		if err := e.resetCursor(ctx, account); err != nil {
			metrics.RecordSync("failed", time.Since(start))
			return err
		}
		metrics.RecordSync("cursor_reset", time.Since(start))
		return nil
	}
	if err != nil {
		metrics.RecordSync("failed", time.Since(start))
		return err
	}

	ids := distinctMessageIDs(entries)
	logger.Info("history sync", "cursor", cursor, "new_messages", len(ids))

	for _, id := range ids {
		if err := e.processor.Process(ctx, account, id, hint); err != nil {
			logger.Error("failed to process message", "message_id", id, "error", err)
		}
	}

	if newest != nil && (state.LastHistoryID == nil || *newest > *state.LastHistoryID) {
		if err := e.store.UpdateLastHistoryID(ctx, account.ID, *newest); err != nil {
			metrics.RecordSync("failed", time.Since(start))
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	metrics.RecordSync("ok", time.Since(start))
	return nil
}

// resetCursor jumps to the mailbox's current history ID. Messages that arrived
// in the expired range are not processed.
func (e *Engine) resetCursor(ctx context.Context, account models.Account) error {
	current, err := e.mailbox.CurrentCursor(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to get current cursor: %w", err)
	}
	if err := e.store.UpdateLastHistoryID(ctx, account.ID, current); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

// distinctMessageIDs keeps the first occurrence of each ID
func distinctMessageIDs(entries []gmail.HistoryEntry) []string {
	seen := make(map[string]bool, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if seen[entry.MessageID] {
			continue
		}
		seen[entry.MessageID] = true
		ids = append(ids, entry.MessageID)
	}
	return ids
}
