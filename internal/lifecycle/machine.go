package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/gmailbot/internal/database"
	"github.com/mixelka/gmailbot/internal/formatter"
	"github.com/mixelka/gmailbot/internal/metrics"
	"github.com/mixelka/gmailbot/pkg/models"
)

// ErrRejected is returned for actions that must be ignored without feedback
var ErrRejected = errors.New("action rejected")

// Mailbox performs the Gmail side of an action
type Mailbox interface {
	Archive(ctx context.Context, account models.Account, messageID, threadID string) error
	Unarchive(ctx context.Context, account models.Account, messageID, threadID string) error
	Trash(ctx context.Context, account models.Account, messageID, threadID string) error
	Untrash(ctx context.Context, account models.Account, messageID, threadID string) error
}

// Store is the notification state touched by actions
type Store interface {
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status models.NotificationStatus) error
	UpdateNotificationCategory(ctx context.Context, id int64, category string, confidence float64) error
	UpdateNotificationImportance(ctx context.Context, id int64, importance string) error
	InsertSuppression(ctx context.Context, accountID int64, scope models.SuppressionScope, value, category string) error
	ClearSuppressions(ctx context.Context, accountID int64, senderKey, domain, category string) (int64, error)
}

// Action is a button press bound to the Telegram message it came from
type Action struct {
	Data      models.CallbackData
	ChatID    int64
	MessageID int64
}

// Outcome describes how to update the Telegram message.
// An empty Text means only the keyboard changes.
type Outcome struct {
	Text   string
	Markup *tgmodels.InlineKeyboardMarkup
}

// Machine applies user actions to notifications
type Machine struct {
	store     Store
	mailbox   Mailbox
	accounts  map[int64]models.Account
	threshold float64
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
}

// NewMachine creates a lifecycle state machine
func NewMachine(store Store, mailbox Mailbox, accounts []models.Account, lowConfidenceThreshold float64, logger *slog.Logger) *Machine {
	byID := make(map[int64]models.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}
	return &Machine{
		store:     store,
		mailbox:   mailbox,
		accounts:  byID,
		threshold: lowConfidenceThreshold,
		formatter: formatter.NewTelegramFormatter(),
		logger:    logger.With("component", "lifecycle"),
	}
}

// Handle applies an action and returns the message update
func (m *Machine) Handle(ctx context.Context, action Action) (*Outcome, error) {
	name := string(action.Data.Action)
	outcome, err := m.handle(ctx, action)
	switch {
	case errors.Is(err, ErrRejected):
		metrics.UserActions.WithLabelValues(name, "rejected").Inc()
	case err != nil:
		metrics.UserActions.WithLabelValues(name, "failed").Inc()
	default:
		metrics.UserActions.WithLabelValues(name, "ok").Inc()
	}
	return outcome, err
}

func (m *Machine) handle(ctx context.Context, action Action) (*Outcome, error) {
	n, err := m.store.GetNotification(ctx, action.Data.NotificationID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: notification %d not found", ErrRejected, action.Data.NotificationID)
	}
	if err != nil {
		return nil, err
	}
	if !matchesMessage(n, action) {
		m.logger.Warn("callback does not match notification message",
			"notification_id", n.ID, "chat_id", action.ChatID, "message_id", action.MessageID)
		return nil, fmt.Errorf("%w: message mismatch", ErrRejected)
	}

	account, ok := m.accounts[n.AccountID]
	if !ok {
		m.logger.Warn("missing account for notification", "notification_id", n.ID, "account_id", n.AccountID)
		return nil, fmt.Errorf("%w: unknown account %d", ErrRejected, n.AccountID)
	}
	openURL := openURL(n, account)

	switch action.Data.Action {
	case models.CallbackCategory:
		return m.overrideCategory(ctx, n, action.Data.Arg, openURL)

	case models.CallbackArchive:
		if err := m.mailbox.Archive(ctx, account, n.GmailMessageID, n.GmailThreadID); err != nil {
			return nil, err
		}
		return m.settle(ctx, n, models.StatusArchived, formatter.StatusArchived, openURL, models.UndoArchive)

	case models.CallbackTrash:
		return &Outcome{Markup: formatter.BuildConfirmTrashKeyboard(n.ID)}, nil

	case models.CallbackTrashConfirm:
		if err := m.mailbox.Trash(ctx, account, n.GmailMessageID, n.GmailThreadID); err != nil {
			return nil, err
		}
		return m.settle(ctx, n, models.StatusTrashed, formatter.StatusTrashed, openURL, models.UndoTrash)

	case models.CallbackTrashCancel, models.CallbackMuteCancel:
		return &Outcome{Markup: formatter.BuildKeyboard(n.ID, openURL, m.lowConfidence(n))}, nil

	case models.CallbackNotInterested:
		return &Outcome{Markup: formatter.BuildNotInterestedPicker(n.ID)}, nil

	case models.CallbackMute:
		if err := m.mute(ctx, n, action.Data.Arg); err != nil {
			return nil, err
		}
		return m.settle(ctx, n, models.StatusNotInterested, formatter.StatusNotInterested, openURL, models.UndoNotInterested)

	case models.CallbackUndo:
		return m.undo(ctx, n, account, action.Data.Arg, openURL)

	case models.CallbackImportant:
		if err := m.store.UpdateNotificationImportance(ctx, n.ID, models.ImportanceHigh); err != nil {
			return nil, err
		}
		n.Importance = models.ImportanceHigh
		return &Outcome{
			Text:   m.render(n, formatter.StatusMarkedImportant),
			Markup: formatter.BuildKeyboard(n.ID, openURL, m.lowConfidence(n)),
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown action %q", ErrRejected, action.Data.Action)
}

// settle records a terminal status and offers undo
func (m *Machine) settle(ctx context.Context, n *models.Notification, status models.NotificationStatus, label, openURL, undoTarget string) (*Outcome, error) {
	if err := m.store.UpdateNotificationStatus(ctx, n.ID, status); err != nil {
		return nil, err
	}
	m.logger.Info("notification updated", "notification_id", n.ID, "status", status)
	return &Outcome{
		Text:   m.render(n, label),
		Markup: formatter.BuildOpenWithUndoKeyboard(n.ID, openURL, undoTarget),
	}, nil
}

func (m *Machine) overrideCategory(ctx context.Context, n *models.Notification, arg, openURL string) (*Outcome, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(models.Categories) {
		return nil, fmt.Errorf("%w: invalid category index %q", ErrRejected, arg)
	}
	category := models.Categories[idx]

	if err := m.store.UpdateNotificationCategory(ctx, n.ID, category, 1.0); err != nil {
		return nil, err
	}
	n.Category = category
	n.Confidence = 1.0

	return &Outcome{
		Text:   m.render(n, ""),
		Markup: formatter.BuildKeyboard(n.ID, openURL, false),
	}, nil
}

func (m *Machine) mute(ctx context.Context, n *models.Notification, scope string) error {
	senderKey := n.SuppressionSenderKey()
	domain := n.SenderDomain()

	switch {
	case scope == models.MuteSender && senderKey != "":
		return m.store.InsertSuppression(ctx, n.AccountID, models.ScopeSender, senderKey, "")
	case scope == models.MuteDomain && domain != "":
		return m.store.InsertSuppression(ctx, n.AccountID, models.ScopeDomain, domain, "")
	case scope == models.MuteSenderCategory && senderKey != "":
		return m.store.InsertSuppression(ctx, n.AccountID, models.ScopeSenderCategory, senderKey, n.CategoryOrOther())
	}
	return fmt.Errorf("%w: invalid mute scope %q", ErrRejected, scope)
}

func (m *Machine) undo(ctx context.Context, n *models.Notification, account models.Account, target, openURL string) (*Outcome, error) {
	switch target {
	case models.UndoArchive:
		if err := m.mailbox.Unarchive(ctx, account, n.GmailMessageID, n.GmailThreadID); err != nil {
			return nil, err
		}
	case models.UndoTrash:
		if err := m.mailbox.Untrash(ctx, account, n.GmailMessageID, n.GmailThreadID); err != nil {
			return nil, err
		}
	case models.UndoNotInterested:
		removed, err := m.store.ClearSuppressions(ctx, n.AccountID, n.SuppressionSenderKey(), n.SenderDomain(), n.CategoryOrOther())
		if err != nil {
			return nil, err
		}
		m.logger.Info("suppressions cleared", "notification_id", n.ID, "removed", removed)
	default:
		return nil, fmt.Errorf("%w: invalid undo target %q", ErrRejected, target)
	}

	if err := m.store.UpdateNotificationStatus(ctx, n.ID, models.StatusNotified); err != nil {
		return nil, err
	}
	return &Outcome{
		Text:   m.render(n, formatter.StatusRestored),
		Markup: formatter.BuildKeyboard(n.ID, openURL, m.lowConfidence(n)),
	}, nil
}

func (m *Machine) render(n *models.Notification, status string) string {
	view := formatter.ViewOf(n)
	view.Status = status
	return m.formatter.Format(view)
}

func (m *Machine) lowConfidence(n *models.Notification) bool {
	return n.Confidence < m.threshold
}

// matchesMessage requires the action to come from the exact delivered message
func matchesMessage(n *models.Notification, action Action) bool {
	if !n.TelegramChatID.Valid || !n.TelegramMessageID.Valid {
		return false
	}
	return n.TelegramChatID.Int64 == action.ChatID && n.TelegramMessageID.Int64 == action.MessageID
}

func openURL(n *models.Notification, account models.Account) string {
	target := n.GmailThreadID
	if target == "" {
		target = n.GmailMessageID
	}
	return formatter.OpenURL(target, account.Email)
}
