package models

// SuppressionScope scope of a suppression rule
type SuppressionScope string

const (
	ScopeSender         SuppressionScope = "sender"
	ScopeDomain         SuppressionScope = "domain"
	ScopeSenderCategory SuppressionScope = "sender_category"
)

// Suppression blocks delivery for a sender, domain or sender+category
type Suppression struct {
	ID         int64            `db:"id"`
	AccountID  int64            `db:"account_id"`
	ScopeKey   SuppressionScope `db:"scope_key"`
	ScopeValue string           `db:"scope_value"`
	Category   string           `db:"category"` // Empty unless scope is sender_category
}

// UsageEntry token usage and cost for one classification call
type UsageEntry struct {
	AccountID         int64
	Model             string
	Date              string // YYYY-MM-DD, UTC
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
	InputCost         float64
	CachedInputCost   float64
	OutputCost        float64
	TotalCost         float64
}
