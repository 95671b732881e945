package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Send delivers a notification and returns the Telegram message id
func (b *Bot) Send(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) (int64, error) {
	params := &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: noPreview(),
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	msg, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}

	b.logger.Debug("notification sent", "chat_id", chatID, "telegram_msg_id", msg.ID)
	return int64(msg.ID), nil
}
