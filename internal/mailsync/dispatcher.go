package mailsync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mixelka/gmailbot/pkg/models"
)

// ErrUnknownAccount is returned for events of unconfigured mailboxes
var ErrUnknownAccount = errors.New("unknown account")

// Syncer runs one history sync
type Syncer interface {
	Sync(ctx context.Context, account models.Account, hint uint64) error
}

type accountSlot struct {
	account models.Account
	mu      sync.Mutex
	queued  atomic.Bool // an event is waiting for mu
}

// Dispatcher routes push events to the engine, one sync at a time per account.
// At most one event per account waits behind a running sync; later events are
// dropped because the queued sync reads the stored cursor and covers them.
// The account set is fixed at construction.
type Dispatcher struct {
	slots  map[string]*accountSlot
	syncer Syncer
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with one lock per account
func NewDispatcher(accounts []models.Account, syncer Syncer, logger *slog.Logger) *Dispatcher {
	slots := make(map[string]*accountSlot, len(accounts))
	for _, account := range accounts {
		slots[strings.ToLower(account.Email)] = &accountSlot{account: account}
	}
	return &Dispatcher{
		slots:  slots,
		syncer: syncer,
		logger: logger.With("component", "dispatcher"),
	}
}

// HandleEvent syncs the account that owns emailAddress
func (d *Dispatcher) HandleEvent(ctx context.Context, emailAddress string, hint uint64) error {
	slot, ok := d.slots[strings.ToLower(strings.TrimSpace(emailAddress))]
	if !ok {
		d.logger.Warn("no account configured for email", "email", emailAddress)
		return ErrUnknownAccount
	}

	if !slot.queued.CompareAndSwap(false, true) {
		d.logger.Debug("sync already queued, coalescing event", "account", slot.account.Email, "hint", hint)
		return nil
	}

	slot.mu.Lock()
	slot.queued.Store(false)
	defer slot.mu.Unlock()

	return d.syncer.Sync(ctx, slot.account, hint)
}
