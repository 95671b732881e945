package models

import "time"

// Account represents a configured Gmail account
type Account struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	RefreshToken string `db:"-"` // From configuration, never persisted
}

// AccountState is the durable sync state of an account
type AccountState struct {
	LastHistoryID   *uint64    // nil until the first sync or watch
	WatchExpiration *time.Time // nil until the first watch
	// ExpirationZoned is false when the stored expiration carried no zone
	// offset and therefore cannot be compared reliably.
	ExpirationZoned bool
}
