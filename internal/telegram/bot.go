package telegram

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/gmailbot/internal/config"
	"github.com/mixelka/gmailbot/internal/lifecycle"
	appmodels "github.com/mixelka/gmailbot/pkg/models"
)

// ActionHandler applies button presses to notifications
type ActionHandler interface {
	Handle(ctx context.Context, action lifecycle.Action) (*lifecycle.Outcome, error)
}

// Store is the bot's view of the database
type Store interface {
	SetTelegramChatID(ctx context.Context, chatID int64) error
	GetAccountState(ctx context.Context, accountID int64) (*appmodels.AccountState, error)
	CountNotifications(ctx context.Context, accountID int64) (int, error)
}

// Bot represents the Telegram bot
type Bot struct {
	bot      *bot.Bot
	db       Store
	actions  ActionHandler
	accounts []appmodels.Account
	logger   *slog.Logger
	config   *config.Config
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config   *config.Config
	DB       Store
	Actions  ActionHandler
	Accounts []appmodels.Account
	Logger   *slog.Logger
	Options  []bot.Option // Extra options, e.g. a test server URL
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		db:       deps.DB,
		actions:  deps.Actions,
		accounts: deps.Accounts,
		logger:   deps.Logger.With("component", "telegram_bot"),
		config:   deps.Config,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}
	if deps.Config.TelegramWebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(deps.Config.TelegramWebhookSecret))
	}
	opts = append(opts, deps.Options...)

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, b.handleCallback)
}

// Start receives updates until ctx is done, via webhook or long polling
func (b *Bot) Start(ctx context.Context) error {
	if !b.config.WebhookEnabled() {
		// A leftover webhook blocks getUpdates
		if _, err := b.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			b.logger.Warn("failed to delete webhook", "error", err)
		}
		b.logger.Info("starting telegram bot", "mode", "polling")
		b.bot.Start(ctx)
		return nil
	}

	_, err := b.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:                b.config.TelegramWebhookURL,
		SecretToken:        b.config.TelegramWebhookSecret,
		DropPendingUpdates: true,
	})
	if err != nil {
		return err
	}

	b.logger.Info("starting telegram bot", "mode", "webhook", "url", b.config.TelegramWebhookURL)
	b.bot.StartWebhook(ctx)
	return nil
}

// WebhookHandler serves Telegram webhook requests
func (b *Bot) WebhookHandler() http.Handler {
	return b.bot.WebhookHandler()
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}
