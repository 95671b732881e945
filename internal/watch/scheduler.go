package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/gmailbot/internal/backoff"
	"github.com/mixelka/gmailbot/internal/gmail"
	"github.com/mixelka/gmailbot/internal/metrics"
	"github.com/mixelka/gmailbot/pkg/models"
)

// Watcher starts or renews Gmail push notifications for an account
type Watcher interface {
	Watch(ctx context.Context, account models.Account, topic string, labelIDs []string) (*gmail.WatchResult, error)
}

// Store holds the watch state of each account
type Store interface {
	GetAccountState(ctx context.Context, accountID int64) (*models.AccountState, error)
	UpdateWatchInfo(ctx context.Context, accountID int64, historyID *uint64, expiration *time.Time) error
}

// Config scheduler settings
type Config struct {
	Topic       string
	LabelIDs    []string
	Interval    time.Duration // Time between passes
	RenewWindow time.Duration // Renew when expiry is closer than this
	AuthBase    time.Duration
	AuthMax     time.Duration
}

// Scheduler keeps the watch of every account alive
type Scheduler struct {
	cfg      Config
	store    Store
	watcher  Watcher
	accounts []models.Account
	auth     *backoff.Keyed[int64]
	logger   *slog.Logger
	now      func() time.Time
}

const defaultInterval = 15 * time.Minute

// NewScheduler creates a watch renewal scheduler. A non-positive Interval
// falls back to 15 minutes.
func NewScheduler(cfg Config, store Store, watcher Watcher, accounts []models.Account, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		watcher:  watcher,
		accounts: accounts,
		auth:     backoff.NewKeyed[int64](cfg.AuthBase, cfg.AuthMax),
		logger:   logger.With("component", "watch_scheduler"),
		now:      time.Now,
	}
}

// Run renews watches immediately and then every interval until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("watch scheduler started", "interval", s.cfg.Interval, "accounts", len(s.accounts))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RenewAll(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("watch scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RenewAll runs one pass over all accounts. A failing account never
// stops the pass.
func (s *Scheduler) RenewAll(ctx context.Context) {
	for _, account := range s.accounts {
		if ctx.Err() != nil {
			return
		}
		if err := s.guard(ctx, account); err != nil {
			metrics.WatchRenewals.WithLabelValues("failed").Inc()
			s.logger.Error("watch renewal failed", "error", err, "account", account.Email)
		}
	}
}

func (s *Scheduler) guard(ctx context.Context, account models.Account) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.ensureWatch(ctx, account)
}

func (s *Scheduler) ensureWatch(ctx context.Context, account models.Account) error {
	if s.auth.ShouldSkip(account.ID) {
		until, _ := s.auth.NextReadyAt(account.ID)
		metrics.WatchRenewals.WithLabelValues("skipped").Inc()
		s.logger.Warn("skipping watch renewal due to auth backoff",
			"account", account.Email, "until", until.UTC().Format(time.RFC3339))
		return nil
	}

	state, err := s.store.GetAccountState(ctx, account.ID)
	if err != nil {
		return err
	}
	if !s.needsRenewal(state) {
		return nil
	}

	result, err := s.watcher.Watch(ctx, account, s.cfg.Topic, s.cfg.LabelIDs)
	if errors.Is(err, gmail.ErrAuth) {
		delay := s.auth.RecordFailure(account.ID)
		until, _ := s.auth.NextReadyAt(account.ID)
		metrics.WatchRenewals.WithLabelValues("auth_error").Inc()
		s.logger.Error("gmail auth error renewing watch, refresh token may be expired or revoked",
			"error", err,
			"account", account.Email,
			"backoff", delay,
			"until", until.UTC().Format(time.RFC3339),
		)
		return nil
	}
	if err != nil {
		return err
	}

	s.auth.Reset(account.ID)

	var historyID *uint64
	if result.HistoryID != 0 {
		historyID = &result.HistoryID
	}
	var expiration *time.Time
	if !result.Expiration.IsZero() {
		expiration = &result.Expiration
	}
	if err := s.store.UpdateWatchInfo(ctx, account.ID, historyID, expiration); err != nil {
		return err
	}

	metrics.WatchRenewals.WithLabelValues("ok").Inc()
	s.logger.Info("watch renewed", "account", account.Email, "expiration", result.Expiration)
	return nil
}

// needsRenewal is true when the expiry is unknown, zoneless or inside the renewal window
func (s *Scheduler) needsRenewal(state *models.AccountState) bool {
	if state.WatchExpiration == nil || !state.ExpirationZoned {
		return true
	}
	return !state.WatchExpiration.After(s.now().Add(s.cfg.RenewWindow))
}
