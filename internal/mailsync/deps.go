package mailsync

import (
	"context"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/gmailbot/internal/classifier"
	"github.com/mixelka/gmailbot/internal/gmail"
	"github.com/mixelka/gmailbot/pkg/models"
)

// Mailbox is the part of the Gmail client used by sync
type Mailbox interface {
	ListHistorySince(ctx context.Context, account models.Account, cursor uint64, labelID string) ([]gmail.HistoryEntry, *uint64, error)
	GetMessage(ctx context.Context, account models.Account, messageID string) (*gmail.Message, error)
	CurrentCursor(ctx context.Context, account models.Account) (uint64, error)
}

// Store is the durable state used by sync
type Store interface {
	GetAccountState(ctx context.Context, accountID int64) (*models.AccountState, error)
	UpdateLastHistoryID(ctx context.Context, accountID int64, historyID uint64) error
	NotificationExists(ctx context.Context, accountID int64, gmailMessageID string) (bool, error)
	InsertNotificationPlaceholder(ctx context.Context, accountID int64, gmailMessageID, gmailThreadID string, historyID uint64) (int64, error)
	UpdateNotificationDetails(ctx context.Context, id int64, d models.NotificationDetails) error
	DeleteNotification(ctx context.Context, id int64) error
	IsSuppressed(ctx context.Context, accountID int64, senderKey, category string) (bool, error)
	GetTelegramChatID(ctx context.Context) (*int64, error)
	UpsertUsage(ctx context.Context, u models.UsageEntry) error
}

// Classifier summarizes and classifies message text
type Classifier interface {
	Classify(ctx context.Context, text string, categories []string, maxInputTokens int) (*classifier.Result, error)
	Model() string
}

// Notifier delivers notifications to Telegram
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int64, error)
}
