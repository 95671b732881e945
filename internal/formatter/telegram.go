package formatter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mixelka/gmailbot/pkg/models"
)

// Status labels shown after a user action
const (
	StatusArchived        = "Archived"
	StatusTrashed         = "Trashed"
	StatusNotInterested   = "Not-Interested"
	StatusRestored        = "Restored"
	StatusMarkedImportant = "Marked Important"
)

// LowConfidenceNote asks the operator to pick a category
const LowConfidenceNote = "Low confidence - please choose a category below."

// View is what a notification message displays
type View struct {
	SenderName  string
	SenderEmail string
	Summary     string
	Category    string
	Importance  string
	Status      string
	Note        string
	Codes       []string
}

// ViewOf builds a view from a stored notification
func ViewOf(n *models.Notification) View {
	var codes []string
	if n.DetectedCodes != "" {
		codes = strings.Fields(n.DetectedCodes)
	}
	return View{
		SenderName:  n.SenderName,
		SenderEmail: n.SenderEmail,
		Summary:     n.Summary,
		Category:    n.CategoryOrOther(),
		Importance:  n.Importance,
		Codes:       codes,
	}
}

// TelegramFormatter formats notifications as Telegram HTML
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// Format renders a notification message
func (f *TelegramFormatter) Format(v View) string {
	var sb strings.Builder

	sender := strings.TrimSpace(v.SenderName)
	if sender == "" {
		sender = v.SenderEmail
	}
	if sender == "" {
		sender = "Unknown Sender"
	}
	category := v.Category
	if category == "" {
		category = models.CategoryOther
	}

	fmt.Fprintf(&sb, "📩 <b>From:</b> %s\n", EscapeHTML(sender))
	fmt.Fprintf(&sb, "🏷️ <b>Category:</b> %s\n", EscapeHTML(category))
	if v.Importance != "" {
		fmt.Fprintf(&sb, "🔥 <b>Importance:</b> %s\n", EscapeHTML(v.Importance))
	}
	if v.Status != "" {
		fmt.Fprintf(&sb, "%s <b>Status:</b> %s\n", statusIcon(v.Status), EscapeHTML(v.Status))
	}
	if v.Note != "" {
		fmt.Fprintf(&sb, "⚠️ %s\n", EscapeHTML(v.Note))
	}
	if len(v.Codes) > 0 {
		sb.WriteString("🔑 <b>Codes:</b>")
		for _, code := range v.Codes {
			fmt.Fprintf(&sb, " <code>%s</code>", EscapeHTML(code))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n🤖 ")
	sb.WriteString(EscapeHTML(truncate(v.Summary, f.maxLength-sb.Len())))

	return sb.String()
}

func statusIcon(status string) string {
	lowered := strings.ToLower(status)
	switch {
	case strings.Contains(lowered, "trash"):
		return "🗑️"
	case strings.Contains(lowered, "archive"):
		return "🗂️"
	case strings.Contains(lowered, "not-interested"):
		return "🚫"
	default:
		return "✅"
	}
}

// OpenURL returns the Gmail web link of a thread, scoped to the account
func OpenURL(threadID, accountEmail string) string {
	base := "https://mail.google.com/mail/u/0/"
	if accountEmail != "" {
		base += "?authuser=" + url.QueryEscape(accountEmail)
	}
	return base + "#inbox/" + threadID
}

// EscapeHTML escapes HTML special characters for Telegram
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate truncates text to maxLen characters
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}
