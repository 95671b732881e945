package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/gmailbot/internal/formatter"
	"github.com/mixelka/gmailbot/internal/lifecycle"
)

// handleStart registers the chat as the notification destination
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	if !b.isAllowed(msg.From) {
		b.logger.Warn("unauthorized /start", "user_id", userID(msg.From))
		b.sendMessage(ctx, msg.Chat.ID, "Not authorized.")
		return
	}

	if err := b.db.SetTelegramChatID(ctx, msg.Chat.ID); err != nil {
		b.logger.Error("failed to register chat", "error", err, "chat_id", msg.Chat.ID)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to register chat, please try again.")
		return
	}

	b.logger.Info("chat registered", "chat_id", msg.Chat.ID)
	b.sendMessage(ctx, msg.Chat.ID, "Chat registered. You're all set.")
}

// handleHelp handles /help command
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	text := `<b>Gmail notifications</b>

New mail from the watched Gmail accounts is summarized and posted here.

<b>Commands:</b>
/start - deliver notifications to this chat
/status - show watched accounts

<b>Buttons:</b>
Archive, Trash and Not-Interested can be undone from the message.
Not-Interested mutes the sender, its domain, or the sender in this category.`

	b.sendMessage(ctx, msg.Chat.ID, text)
}

// handleStatus lists watched accounts with their sync state
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	if !b.isAllowed(msg.From) {
		b.sendMessage(ctx, msg.Chat.ID, "Not authorized.")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Watched accounts:</b>\n\n")

	for _, acc := range b.accounts {
		state, err := b.db.GetAccountState(ctx, acc.ID)
		if err != nil {
			b.logger.Error("failed to get account state", "error", err, "account", acc.Email)
			fmt.Fprintf(&sb, "🔴 <b>%s</b>\n   state unavailable\n\n", formatter.EscapeHTML(acc.Email))
			continue
		}
		count, err := b.db.CountNotifications(ctx, acc.ID)
		if err != nil {
			b.logger.Warn("failed to count notifications", "error", err, "account", acc.Email)
		}

		statusEmoji := "🟢"
		watch := "not set"
		if state.WatchExpiration != nil {
			watch = "until " + state.WatchExpiration.UTC().Format("2006-01-02 15:04 MST")
		} else {
			statusEmoji = "🟡"
		}
		cursor := "none"
		if state.LastHistoryID != nil {
			cursor = fmt.Sprintf("%d", *state.LastHistoryID)
		}

		fmt.Fprintf(&sb, "%s <b>%s</b>\n", statusEmoji, formatter.EscapeHTML(acc.Email))
		fmt.Fprintf(&sb, "   Watch: %s\n", watch)
		fmt.Fprintf(&sb, "   History ID: %s\n", cursor)
		fmt.Fprintf(&sb, "   Notifications: %d\n\n", count)
	}

	b.sendMessage(ctx, msg.Chat.ID, sb.String())
}

// handleCallback handles inline button callbacks
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	if !b.isAllowed(&callback.From) {
		b.logger.Warn("unauthorized callback", "user_id", callback.From.ID)
		b.answerCallback(ctx, callback.ID, "")
		return
	}

	source := callback.Message.Message
	if source == nil {
		// Too old to edit
		b.answerCallback(ctx, callback.ID, "")
		return
	}

	data, err := formatter.DecodeCallback(callback.Data)
	if err != nil {
		b.logger.Debug("failed to decode callback", "error", err, "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "")
		return
	}

	outcome, err := b.actions.Handle(ctx, lifecycle.Action{
		Data:      data,
		ChatID:    source.Chat.ID,
		MessageID: int64(source.ID),
	})
	switch {
	case errors.Is(err, lifecycle.ErrRejected):
		b.logger.Debug("callback rejected", "reason", err, "notification_id", data.NotificationID)
		b.answerCallback(ctx, callback.ID, "")
		return
	case err != nil:
		b.logger.Error("callback action failed", "error", err, "action", data.Action, "notification_id", data.NotificationID)
		b.answerCallback(ctx, callback.ID, "Action failed, please try again.")
		return
	}

	b.answerCallback(ctx, callback.ID, "")

	if outcome.Text == "" {
		err = b.editMessageReplyMarkup(ctx, source.Chat.ID, source.ID, outcome.Markup)
	} else {
		err = b.editMessage(ctx, source.Chat.ID, source.ID, outcome.Text, outcome.Markup)
	}
	if err != nil {
		b.logger.Warn("failed to update message", "error", err, "notification_id", data.NotificationID)
	}
}
