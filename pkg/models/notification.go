package models

import (
	"database/sql"
	"strings"
	"time"
)

// NotificationStatus lifecycle status of a notification
type NotificationStatus string

const (
	StatusPending       NotificationStatus = "pending"
	StatusSuppressed    NotificationStatus = "suppressed"
	StatusNotified      NotificationStatus = "notified"
	StatusArchived      NotificationStatus = "archived"
	StatusTrashed       NotificationStatus = "trashed"
	StatusNotInterested NotificationStatus = "not_interested"
)

// Importance values
const (
	ImportanceHigh = "high"
)

// Notification represents one processed Gmail message
type Notification struct {
	ID                int64              `db:"id"`
	AccountID         int64              `db:"account_id"`
	GmailMessageID    string             `db:"gmail_message_id"`
	GmailThreadID     string             `db:"gmail_thread_id"`
	HistoryID         int64              `db:"history_id"`
	SenderEmail       string             `db:"sender_email"`
	SenderName        string             `db:"sender_name"`
	SenderKey         string             `db:"sender_key"` // Lowercase sender address
	Subject           string             `db:"subject"`
	Summary           string             `db:"summary"`
	Category          string             `db:"category"`
	Confidence        float64            `db:"confidence"`
	Importance        string             `db:"importance"`
	DetectedCodes     string             `db:"detected_codes"` // Space separated verification codes
	Status            NotificationStatus `db:"status"`
	TelegramChatID    sql.NullInt64      `db:"telegram_chat_id"`
	TelegramMessageID sql.NullInt64      `db:"telegram_message_id"`
	CreatedAt         time.Time          `db:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at"`
	DeliveredAt       sql.NullTime       `db:"delivered_at"`
	ArchivedAt        sql.NullTime       `db:"archived_at"`
	TrashedAt         sql.NullTime       `db:"trashed_at"`
}

// NotificationDetails is the classification outcome written onto a placeholder
type NotificationDetails struct {
	SenderEmail       string
	SenderName        string
	SenderKey         string
	Subject           string
	Summary           string
	Category          string
	Confidence        float64
	DetectedCodes     string
	TelegramChatID    *int64
	TelegramMessageID *int64
	Status            NotificationStatus
}

// SenderDomain returns the lowercase domain of the sender address
func (n *Notification) SenderDomain() string {
	return DomainOf(n.SenderEmail)
}

// SuppressionSenderKey returns the sender key, deriving it from the address if unset
func (n *Notification) SuppressionSenderKey() string {
	if n.SenderKey != "" {
		return n.SenderKey
	}
	return strings.ToLower(n.SenderEmail)
}

// CategoryOrOther returns the category, falling back to CategoryOther
func (n *Notification) CategoryOrOther() string {
	if n.Category == "" {
		return CategoryOther
	}
	return n.Category
}

// DomainOf returns the lowercase domain part of an address
func DomainOf(address string) string {
	value := strings.ToLower(address)
	if _, domain, ok := strings.Cut(value, "@"); ok {
		return domain
	}
	return value
}
