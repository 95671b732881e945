package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mixelka/gmailbot/internal/database"
	"github.com/mixelka/gmailbot/internal/testutil"
	"github.com/mixelka/gmailbot/pkg/models"
)

func TestEnsureAccountsIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	first, err := db.EnsureAccounts(ctx, []string{"a@example.com", "b@example.com"}, nil)
	if err != nil {
		t.Fatalf("EnsureAccounts: %v", err)
	}
	second, err := db.EnsureAccounts(ctx, []string{"a@example.com", "b@example.com"}, []string{"INBOX"})
	if err != nil {
		t.Fatalf("EnsureAccounts again: %v", err)
	}
	for email, id := range first {
		if second[email] != id {
			t.Fatalf("account %s id changed from %d to %d", email, id, second[email])
		}
	}
	if first["a@example.com"] == first["b@example.com"] {
		t.Fatalf("expected distinct ids, got %v", first)
	}
}

func TestAccountStateCursorAndWatch(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	accountID := testutil.NewTestAccount(t, db, "x@example.com")

	state, err := db.GetAccountState(ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccountState: %v", err)
	}
	if state.LastHistoryID != nil || state.WatchExpiration != nil {
		t.Fatalf("expected empty state, got %+v", state)
	}

	cursor := uint64(100)
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := db.UpdateWatchInfo(ctx, accountID, &cursor, &expires); err != nil {
		t.Fatalf("UpdateWatchInfo: %v", err)
	}

	// An existing cursor is never overwritten by watch renewal
	later := uint64(900)
	if err := db.UpdateWatchInfo(ctx, accountID, &later, &expires); err != nil {
		t.Fatalf("UpdateWatchInfo: %v", err)
	}

	state, err = db.GetAccountState(ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccountState: %v", err)
	}
	if state.LastHistoryID == nil || *state.LastHistoryID != 100 {
		t.Fatalf("expected cursor 100, got %v", state.LastHistoryID)
	}
	if state.WatchExpiration == nil || !state.WatchExpiration.Equal(expires) || !state.ExpirationZoned {
		t.Fatalf("unexpected expiration %v zoned=%v", state.WatchExpiration, state.ExpirationZoned)
	}

	if err := db.UpdateLastHistoryID(ctx, accountID, 105); err != nil {
		t.Fatalf("UpdateLastHistoryID: %v", err)
	}
	state, _ = db.GetAccountState(ctx, accountID)
	if *state.LastHistoryID != 105 {
		t.Fatalf("expected cursor 105, got %d", *state.LastHistoryID)
	}
}

func TestAccountStateZonelessExpiration(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	accountID := testutil.NewTestAccount(t, db, "x@example.com")

	_, err := db.ExecContext(ctx, `UPDATE gmail_accounts SET watch_expiration = ? WHERE id = ?`, "2030-01-02 03:04:05", accountID)
	if err != nil {
		t.Fatalf("seed expiration: %v", err)
	}

	state, err := db.GetAccountState(ctx, accountID)
	if err != nil {
		t.Fatalf("GetAccountState: %v", err)
	}
	if state.WatchExpiration == nil || state.ExpirationZoned {
		t.Fatalf("expected zoneless expiration, got %v zoned=%v", state.WatchExpiration, state.ExpirationZoned)
	}
}

func TestGetAccountStateNotFound(t *testing.T) {
	db := testutil.NewTestDB(t)

	_, err := db.GetAccountState(context.Background(), 42)
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertNotificationPlaceholderClaimsOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	accountID := testutil.NewTestAccount(t, db, "x@example.com")

	id, err := db.InsertNotificationPlaceholder(ctx, accountID, "m1", "t1", 100)
	if err != nil {
		t.Fatalf("InsertNotificationPlaceholder: %v", err)
	}

	_, err = db.InsertNotificationPlaceholder(ctx, accountID, "m1", "t1", 100)
	if !errors.Is(err, database.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	exists, err := db.NotificationExists(ctx, accountID, "m1")
	if err != nil || !exists {
		t.Fatalf("expected m1 to exist, got %v %v", exists, err)
	}

	n, err := db.GetNotification(ctx, id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if n.Status != models.StatusPending || n.GmailThreadID != "t1" || n.HistoryID != 100 {
		t.Fatalf("unexpected placeholder %+v", n)
	}

	count, _ := db.CountNotifications(ctx, accountID)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestNotificationLifecycleColumns(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	accountID := testutil.NewTestAccount(t, db, "x@example.com")

	id, err := db.InsertNotificationPlaceholder(ctx, accountID, "m1", "t1", 100)
	if err != nil {
		t.Fatalf("InsertNotificationPlaceholder: %v", err)
	}

	chatID, messageID := int64(10), int64(20)
	err = db.UpdateNotificationDetails(ctx, id, models.NotificationDetails{
		SenderEmail:       "Sender@X.com",
		SenderKey:         "sender@x.com",
		Subject:           "Hello",
		Category:          "Work",
		Confidence:        0.8,
		TelegramChatID:    &chatID,
		TelegramMessageID: &messageID,
		Status:            models.StatusNotified,
	})
	if err != nil {
		t.Fatalf("UpdateNotificationDetails: %v", err)
	}

	n, _ := db.GetNotification(ctx, id)
	if !n.DeliveredAt.Valid || n.TelegramMessageID.Int64 != 20 || n.Status != models.StatusNotified {
		t.Fatalf("unexpected delivered row %+v", n)
	}

	if err := db.UpdateNotificationStatus(ctx, id, models.StatusArchived); err != nil {
		t.Fatalf("UpdateNotificationStatus: %v", err)
	}
	if err := db.UpdateNotificationCategory(ctx, id, "Finance", 1.0); err != nil {
		t.Fatalf("UpdateNotificationCategory: %v", err)
	}
	if err := db.UpdateNotificationImportance(ctx, id, models.ImportanceHigh); err != nil {
		t.Fatalf("UpdateNotificationImportance: %v", err)
	}

	n, _ = db.GetNotification(ctx, id)
	if !n.ArchivedAt.Valid || n.TrashedAt.Valid {
		t.Fatalf("expected only archived_at set, got %+v", n)
	}
	if n.Category != "Finance" || n.Confidence != 1.0 || n.Importance != models.ImportanceHigh {
		t.Fatalf("unexpected row %+v", n)
	}

	if err := db.DeleteNotification(ctx, id); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	if _, err := db.GetNotification(ctx, id); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSuppressionScopes(t *testing.T) {
	tests := []struct {
		name     string
		scope    models.SuppressionScope
		value    string
		category string
		sender   string
		checkCat string
		want     bool
	}{
		{"sender matches any category", models.ScopeSender, "a@x.com", "", "a@x.com", "Promo", true},
		{"sender does not match other sender", models.ScopeSender, "a@x.com", "", "b@x.com", "Promo", false},
		{"domain matches every sender", models.ScopeDomain, "x.com", "", "b@x.com", "Work", true},
		{"sender category matches", models.ScopeSenderCategory, "a@x.com", "Promo", "a@x.com", "Promo", true},
		{"sender category ignores other category", models.ScopeSenderCategory, "a@x.com", "Promo", "a@x.com", "Work", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDB(t)
			ctx := context.Background()
			accountID := testutil.NewTestAccount(t, db, "me@example.com")

			if err := db.InsertSuppression(ctx, accountID, tt.scope, tt.value, tt.category); err != nil {
				t.Fatalf("InsertSuppression: %v", err)
			}
			got, err := db.IsSuppressed(ctx, accountID, tt.sender, tt.checkCat)
			if err != nil {
				t.Fatalf("IsSuppressed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IsSuppressed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClearSuppressionsRemovesMatchingRules(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	accountID := testutil.NewTestAccount(t, db, "me@example.com")

	_ = db.InsertSuppression(ctx, accountID, models.ScopeSenderCategory, "a@x.com", "Promo")
	_ = db.InsertSuppression(ctx, accountID, models.ScopeDomain, "x.com", "")
	_ = db.InsertSuppression(ctx, accountID, models.ScopeSender, "other@y.com", "")
	// Duplicate is ignored
	if err := db.InsertSuppression(ctx, accountID, models.ScopeDomain, "x.com", ""); err != nil {
		t.Fatalf("duplicate InsertSuppression: %v", err)
	}

	removed, err := db.ClearSuppressions(ctx, accountID, "a@x.com", "x.com", "Promo")
	if err != nil {
		t.Fatalf("ClearSuppressions: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rules removed, got %d", removed)
	}

	rules, _ := db.ListSuppressions(ctx, accountID)
	if len(rules) != 1 || rules[0].ScopeValue != "other@y.com" {
		t.Fatalf("unexpected remaining rules %+v", rules)
	}
}

func TestUpsertUsageIsAdditive(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	entry := models.UsageEntry{
		AccountID:    1,
		Model:        "gpt-4o-mini",
		Date:         "2026-10-18",
		InputTokens:  100,
		OutputTokens: 10,
		InputCost:    0.5,
		TotalCost:    0.75,
	}
	for i := 0; i < 2; i++ {
		if err := db.UpsertUsage(ctx, entry); err != nil {
			t.Fatalf("UpsertUsage: %v", err)
		}
	}

	got, err := db.GetUsage(ctx, 1, "gpt-4o-mini", "2026-10-18")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if got.InputTokens != 200 || got.OutputTokens != 20 || got.TotalCost != 1.5 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestTelegramChatID(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	chatID, err := db.GetTelegramChatID(ctx)
	if err != nil || chatID != nil {
		t.Fatalf("expected no chat, got %v %v", chatID, err)
	}

	if err := db.SetTelegramChatID(ctx, 111); err != nil {
		t.Fatalf("SetTelegramChatID: %v", err)
	}
	if err := db.SetTelegramChatID(ctx, 222); err != nil {
		t.Fatalf("SetTelegramChatID: %v", err)
	}

	chatID, err = db.GetTelegramChatID(ctx)
	if err != nil || chatID == nil || *chatID != 222 {
		t.Fatalf("expected chat 222, got %v %v", chatID, err)
	}
}
