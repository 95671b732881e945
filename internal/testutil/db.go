package testutil

import (
	"context"
	"testing"

	"github.com/mixelka/gmailbot/internal/database"
)

// NewTestDB creates an in-memory SQLite database with the schema applied.
// It automatically closes the database when the test completes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})

	return db
}

// NewTestAccount inserts an account and returns its ID
func NewTestAccount(t *testing.T, db *database.DB, email string) int64 {
	t.Helper()

	ids, err := db.EnsureAccounts(context.Background(), []string{email}, []string{"INBOX"})
	if err != nil {
		t.Fatalf("creating test account: %v", err)
	}
	return ids[email]
}
