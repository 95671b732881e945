package telegram

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// isAllowed checks the user against the configured allow list
func (b *Bot) isAllowed(user *models.User) bool {
	if user == nil {
		return len(b.config.TelegramAllowedUserIDs) == 0
	}
	return b.config.IsUserAllowed(user.ID)
}

func userID(user *models.User) string {
	if user == nil {
		return "unknown"
	}
	return strconv.FormatInt(user.ID, 10)
}

func noPreview() *models.LinkPreviewOptions {
	disabled := true
	return &models.LinkPreviewOptions{IsDisabled: &disabled}
}

// sendMessage sends a plain HTML message, logging failures
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		b.logger.Error("failed to send message", "error", err, "chat_id", chatID)
	}
}

// editMessage replaces text and keyboard of a message
func (b *Bot) editMessage(ctx context.Context, chatID int64, msgID int, text string, keyboard *models.InlineKeyboardMarkup) error {
	params := &bot.EditMessageTextParams{
		ChatID:             chatID,
		MessageID:          msgID,
		Text:               text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: noPreview(),
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	_, err := b.bot.EditMessageText(ctx, params)
	return err
}

// editMessageReplyMarkup edits the reply markup of a message
func (b *Bot) editMessageReplyMarkup(ctx context.Context, chatID int64, msgID int, keyboard *models.InlineKeyboardMarkup) error {
	_, err := b.bot.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   msgID,
		ReplyMarkup: keyboard,
	})
	return err
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(ctx context.Context, callbackID, text string) {
	_, err := b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		b.logger.Debug("failed to answer callback", "error", err)
	}
}
