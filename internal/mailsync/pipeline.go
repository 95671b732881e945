package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/gmailbot/internal/classifier"
	"github.com/mixelka/gmailbot/internal/database"
	"github.com/mixelka/gmailbot/internal/formatter"
	"github.com/mixelka/gmailbot/internal/gmail"
	"github.com/mixelka/gmailbot/internal/metrics"
	"github.com/mixelka/gmailbot/internal/parser"
	"github.com/mixelka/gmailbot/pkg/models"
)

// PipelineConfig tuning of the processing pipeline
type PipelineConfig struct {
	MaxInputTokens         int
	LowConfidenceThreshold float64
	Prices                 classifier.Prices
}

// Pipeline turns one new Gmail message into a notification
type Pipeline struct {
	cfg          PipelineConfig
	store        Store
	mailbox      Mailbox
	classifier   Classifier
	notifier     Notifier
	formatter    *formatter.TelegramFormatter
	codeDetector *parser.CodeDetector
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline creates a processing pipeline
func NewPipeline(cfg PipelineConfig, store Store, mailbox Mailbox, cls Classifier, notifier Notifier, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		store:        store,
		mailbox:      mailbox,
		classifier:   cls,
		notifier:     notifier,
		formatter:    formatter.NewTelegramFormatter(),
		codeDetector: parser.NewCodeDetector(),
		logger:       logger.With("component", "pipeline"),
		now:          time.Now,
	}
}

// Process handles one message ID. Processing is idempotent per (account, message).
// A placeholder row claims the message before any expensive work and is removed
// again if processing fails before the notification settles.
func (p *Pipeline) Process(ctx context.Context, account models.Account, messageID string, fallbackCursor uint64) (err error) {
	logger := p.logger.With("account", account.Email, "message_id", messageID)

	exists, err := p.store.NotificationExists(ctx, account.ID, messageID)
	if err != nil {
		return err
	}
	if exists {
		metrics.MessagesProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}

	msg, err := p.mailbox.GetMessage(ctx, account, messageID)
	if err != nil {
		return err
	}

	placeholderID, err := p.store.InsertNotificationPlaceholder(ctx, account.ID, msg.ID, msg.ThreadID, fallbackCursor)
	if errors.Is(err, database.ErrAlreadyExists) {
		logger.Debug("message claimed by a concurrent delivery")
		metrics.MessagesProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	defer func() {
		if err == nil {
			return
		}
		metrics.MessagesProcessed.WithLabelValues("failed").Inc()
		// Roll back even when ctx is what failed
		if delErr := p.store.DeleteNotification(context.WithoutCancel(ctx), placeholderID); delErr != nil {
			logger.Error("failed to delete placeholder", "notification_id", placeholderID, "error", delErr)
		}
	}()

	details, err := p.classify(ctx, account, msg)
	if err != nil {
		return err
	}
	low := details.Confidence < p.cfg.LowConfidenceThreshold

	suppressed, err := p.store.IsSuppressed(ctx, account.ID, details.SenderKey, details.Category)
	if err != nil {
		return err
	}
	if suppressed && !low {
		details.Status = models.StatusSuppressed
		if err := p.store.UpdateNotificationDetails(ctx, placeholderID, details); err != nil {
			return err
		}
		logger.Info("notification suppressed", "category", details.Category, "confidence", details.Confidence)
		metrics.MessagesProcessed.WithLabelValues("suppressed").Inc()
		return nil
	}

	chatID, err := p.store.GetTelegramChatID(ctx)
	if err != nil {
		return err
	}
	if chatID == nil {
		details.Status = models.StatusPending
		if err := p.store.UpdateNotificationDetails(ctx, placeholderID, details); err != nil {
			return err
		}
		logger.Warn("telegram chat not registered, notification left pending")
		metrics.MessagesProcessed.WithLabelValues("awaiting_chat").Inc()
		return nil
	}

	view := formatter.View{
		SenderName:  details.SenderName,
		SenderEmail: details.SenderEmail,
		Summary:     details.Summary,
		Category:    details.Category,
		Codes:       strings.Fields(details.DetectedCodes),
	}
	if low {
		view.Note = formatter.LowConfidenceNote
	}
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = msg.ID
	}
	keyboard := formatter.BuildKeyboard(placeholderID, formatter.OpenURL(threadID, account.Email), low)

	messageRef, err := p.notifier.Send(ctx, *chatID, p.formatter.Format(view), keyboard)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	details.Status = models.StatusNotified
	details.TelegramChatID = chatID
	details.TelegramMessageID = &messageRef
	if err := p.store.UpdateNotificationDetails(ctx, placeholderID, details); err != nil {
		return err
	}

	logger.Info("notification sent", "notification_id", placeholderID, "category", details.Category)
	metrics.MessagesProcessed.WithLabelValues("notified").Inc()
	return nil
}

// classify runs the classifier and records its token usage
func (p *Pipeline) classify(ctx context.Context, account models.Account, msg *gmail.Message) (models.NotificationDetails, error) {
	start := time.Now()
	result, err := p.classifier.Classify(ctx, BuildEmailText(msg), models.Categories, p.cfg.MaxInputTokens)
	if err != nil {
		metrics.RecordLLMCall("error", time.Since(start))
		if result != nil {
			p.recordUsage(ctx, account, result.Usage)
		}
		return models.NotificationDetails{}, fmt.Errorf("failed to classify message: %w", err)
	}
	metrics.RecordLLMCall("ok", time.Since(start))
	p.recordUsage(ctx, account, result.Usage)

	codes := p.codeDetector.Detect(msg.Subject + "\n" + msg.BodyText)

	return models.NotificationDetails{
		SenderEmail:   msg.SenderEmail,
		SenderName:    msg.SenderName,
		SenderKey:     strings.ToLower(msg.SenderEmail),
		Subject:       msg.Subject,
		Summary:       result.Summary,
		Category:      models.ResolveCategory(result.Category),
		Confidence:    result.Confidence,
		DetectedCodes: strings.Join(codes, " "),
	}, nil
}

// recordUsage merges usage into the daily ledger. Ledger failures are logged only.
func (p *Pipeline) recordUsage(ctx context.Context, account models.Account, usage classifier.Usage) {
	if usage.IsZero() {
		return
	}
	metrics.RecordTokens(usage.InputTokens, usage.CachedInputTokens, usage.OutputTokens)

	cost := p.cfg.Prices.Cost(usage)
	entry := models.UsageEntry{
		AccountID:         account.ID,
		Model:             p.classifier.Model(),
		Date:              p.now().UTC().Format(time.DateOnly),
		InputTokens:       usage.InputTokens,
		CachedInputTokens: usage.CachedInputTokens,
		OutputTokens:      usage.OutputTokens,
		InputCost:         cost.Input,
		CachedInputCost:   cost.CachedInput,
		OutputCost:        cost.Output,
		TotalCost:         cost.Total,
	}
	if err := p.store.UpsertUsage(ctx, entry); err != nil {
		p.logger.Warn("failed to record usage", "account", account.Email, "error", err)
	}
}

// BuildEmailText is the classifier input: sender line, snippet and body
func BuildEmailText(msg *gmail.Message) string {
	var sb strings.Builder
	if msg.SenderName != "" {
		fmt.Fprintf(&sb, "From: %s <%s>", msg.SenderName, msg.SenderEmail)
	} else {
		fmt.Fprintf(&sb, "From: %s", msg.SenderEmail)
	}
	if msg.Snippet != "" {
		fmt.Fprintf(&sb, "\nSnippet: %s", msg.Snippet)
	}
	if msg.BodyText != "" {
		sb.WriteString("\nBody:\n")
		sb.WriteString(msg.BodyText)
	}
	return sb.String()
}
