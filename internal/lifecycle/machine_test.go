package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/gmailbot/internal/database"
	"github.com/mixelka/gmailbot/internal/formatter"
	"github.com/mixelka/gmailbot/internal/lifecycle"
	"github.com/mixelka/gmailbot/internal/testutil"
	"github.com/mixelka/gmailbot/pkg/models"
)

const (
	chatID    int64 = 42
	messageID int64 = 7
)

type fakeMailbox struct {
	calls []string
	err   error
}

func (f *fakeMailbox) record(op, messageID, threadID string) error {
	f.calls = append(f.calls, op+":"+messageID+":"+threadID)
	return f.err
}

func (f *fakeMailbox) Archive(_ context.Context, _ models.Account, messageID, threadID string) error {
	return f.record("archive", messageID, threadID)
}

func (f *fakeMailbox) Unarchive(_ context.Context, _ models.Account, messageID, threadID string) error {
	return f.record("unarchive", messageID, threadID)
}

func (f *fakeMailbox) Trash(_ context.Context, _ models.Account, messageID, threadID string) error {
	return f.record("trash", messageID, threadID)
}

func (f *fakeMailbox) Untrash(_ context.Context, _ models.Account, messageID, threadID string) error {
	return f.record("untrash", messageID, threadID)
}

type harness struct {
	db      *database.DB
	mailbox *fakeMailbox
	machine *lifecycle.Machine
	account int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	accountID := testutil.NewTestAccount(t, db, "me@example.com")
	mailbox := &fakeMailbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.NewMachine(db, mailbox, []models.Account{{ID: accountID, Email: "me@example.com"}}, 0.6, logger)
	return &harness{db: db, mailbox: mailbox, machine: machine, account: accountID}
}

// seed stores a delivered notification
func (h *harness) seed(t *testing.T, gmailID string, confidence float64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := h.db.InsertNotificationPlaceholder(ctx, h.account, gmailID, "thread-"+gmailID, 100)
	if err != nil {
		t.Fatalf("InsertNotificationPlaceholder: %v", err)
	}
	chat, msg := chatID, messageID
	err = h.db.UpdateNotificationDetails(ctx, id, models.NotificationDetails{
		SenderEmail:       "News@Shop.example",
		SenderName:        "Shop",
		SenderKey:         "news@shop.example",
		Summary:           "Weekly deals",
		Category:          "Promo",
		Confidence:        confidence,
		TelegramChatID:    &chat,
		TelegramMessageID: &msg,
		Status:            models.StatusNotified,
	})
	if err != nil {
		t.Fatalf("UpdateNotificationDetails: %v", err)
	}
	return id
}

func (h *harness) do(t *testing.T, id int64, action models.CallbackAction, arg string) *lifecycle.Outcome {
	t.Helper()
	out, err := h.machine.Handle(context.Background(), lifecycle.Action{
		Data:      models.CallbackData{Action: action, NotificationID: id, Arg: arg},
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		t.Fatalf("Handle(%s %s): %v", action, arg, err)
	}
	return out
}

func (h *harness) status(t *testing.T, id int64) models.NotificationStatus {
	t.Helper()
	n, err := h.db.GetNotification(context.Background(), id)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	return n.Status
}

func callbackActions(markup *tgmodels.InlineKeyboardMarkup) []string {
	var out []string
	for _, row := range markup.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData == "" {
				continue
			}
			data, err := formatter.DecodeCallback(b.CallbackData)
			if err != nil {
				continue
			}
			entry := string(data.Action)
			if data.Arg != "" {
				entry += ":" + data.Arg
			}
			out = append(out, entry)
		}
	}
	return out
}

func hasCategoryPicker(markup *tgmodels.InlineKeyboardMarkup) bool {
	for _, a := range callbackActions(markup) {
		if strings.HasPrefix(a, string(models.CallbackCategory)+":") {
			return true
		}
	}
	return false
}

func TestArchiveThenUndo(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.9)

	out := h.do(t, id, models.CallbackArchive, "")
	if got := h.status(t, id); got != models.StatusArchived {
		t.Fatalf("status = %s, want archived", got)
	}
	if !strings.Contains(out.Text, formatter.StatusArchived) {
		t.Errorf("text missing status: %q", out.Text)
	}
	if got := callbackActions(out.Markup); len(got) != 1 || got[0] != "u:a" {
		t.Errorf("undo keyboard = %v", got)
	}

	out = h.do(t, id, models.CallbackUndo, models.UndoArchive)
	if got := h.status(t, id); got != models.StatusNotified {
		t.Fatalf("status after undo = %s, want notified", got)
	}
	if !strings.Contains(out.Text, formatter.StatusRestored) {
		t.Errorf("text missing restored status: %q", out.Text)
	}
	if hasCategoryPicker(out.Markup) {
		t.Error("confident notification should not show category picker")
	}

	want := []string{"archive:m1:thread-m1", "unarchive:m1:thread-m1"}
	if strings.Join(h.mailbox.calls, ",") != strings.Join(want, ",") {
		t.Errorf("mailbox calls = %v, want %v", h.mailbox.calls, want)
	}
}

func TestTrashRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.9)

	out := h.do(t, id, models.CallbackTrash, "")
	if out.Text != "" {
		t.Errorf("confirm step should only change markup, got text %q", out.Text)
	}
	if got := callbackActions(out.Markup); strings.Join(got, ",") != "tc,tcan" {
		t.Errorf("confirm keyboard = %v", got)
	}
	if len(h.mailbox.calls) != 0 || h.status(t, id) != models.StatusNotified {
		t.Fatal("trash must not happen before confirmation")
	}

	out = h.do(t, id, models.CallbackTrashCancel, "")
	if out.Text != "" || len(out.Markup.InlineKeyboard) != 2 {
		t.Errorf("cancel should restore the full keyboard, got %v", callbackActions(out.Markup))
	}

	h.do(t, id, models.CallbackTrashConfirm, "")
	if got := h.status(t, id); got != models.StatusTrashed {
		t.Fatalf("status = %s, want trashed", got)
	}
	h.do(t, id, models.CallbackUndo, models.UndoTrash)
	if got := h.status(t, id); got != models.StatusNotified {
		t.Fatalf("status after undo = %s, want notified", got)
	}
	if got := strings.Join(h.mailbox.calls, ","); got != "trash:m1:thread-m1,untrash:m1:thread-m1" {
		t.Errorf("mailbox calls = %s", got)
	}
}

func TestMuteScopesAndUndo(t *testing.T) {
	tests := []struct {
		scope    string
		sender   string
		category string
		muted    bool
	}{
		{scope: models.MuteSender, sender: "news@shop.example", category: "Work", muted: true},
		{scope: models.MuteDomain, sender: "other@shop.example", category: "Work", muted: true},
		{scope: models.MuteSenderCategory, sender: "news@shop.example", category: "Promo", muted: true},
		{scope: models.MuteSenderCategory, sender: "news@shop.example", category: "Work", muted: false},
	}

	for _, tt := range tests {
		t.Run(tt.scope+"/"+tt.category, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			id := h.seed(t, "m1", 0.9)

			if out := h.do(t, id, models.CallbackNotInterested, ""); len(out.Markup.InlineKeyboard) != 4 {
				t.Fatalf("picker rows = %d, want 4", len(out.Markup.InlineKeyboard))
			}

			out := h.do(t, id, models.CallbackMute, tt.scope)
			if got := h.status(t, id); got != models.StatusNotInterested {
				t.Fatalf("status = %s, want not_interested", got)
			}
			if !strings.Contains(out.Text, formatter.StatusNotInterested) {
				t.Errorf("text missing status: %q", out.Text)
			}

			muted, err := h.db.IsSuppressed(ctx, h.account, tt.sender, tt.category)
			if err != nil {
				t.Fatalf("IsSuppressed: %v", err)
			}
			if muted != tt.muted {
				t.Errorf("IsSuppressed(%s, %s) = %v, want %v", tt.sender, tt.category, muted, tt.muted)
			}

			h.do(t, id, models.CallbackUndo, models.UndoNotInterested)
			rules, err := h.db.ListSuppressions(ctx, h.account)
			if err != nil {
				t.Fatalf("ListSuppressions: %v", err)
			}
			if len(rules) != 0 {
				t.Errorf("undo left %d suppressions", len(rules))
			}
			if got := h.status(t, id); got != models.StatusNotified {
				t.Errorf("status after undo = %s, want notified", got)
			}
		})
	}
}

func TestMuteCancelRestoresKeyboard(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.3)

	out := h.do(t, id, models.CallbackMuteCancel, "")
	if out.Text != "" {
		t.Errorf("cancel should only change markup")
	}
	if !hasCategoryPicker(out.Markup) {
		t.Error("low confidence keyboard should include category picker")
	}
}

func TestCategoryOverride(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.3)
	workIdx := models.CategoryIndex("Work")

	out := h.do(t, id, models.CallbackCategory, strconv.Itoa(workIdx))

	n, err := h.db.GetNotification(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if n.Category != "Work" || n.Confidence != 1.0 {
		t.Errorf("category = %s (%v), want Work (1.0)", n.Category, n.Confidence)
	}
	if n.Status != models.StatusNotified {
		t.Errorf("status = %s, want notified", n.Status)
	}
	if hasCategoryPicker(out.Markup) {
		t.Error("picker should be removed after override")
	}
	if !strings.Contains(out.Text, "Work") {
		t.Errorf("text missing new category: %q", out.Text)
	}

	// Undo recomputes the picker from the overridden confidence
	h.do(t, id, models.CallbackArchive, "")
	out = h.do(t, id, models.CallbackUndo, models.UndoArchive)
	if hasCategoryPicker(out.Markup) {
		t.Error("undo should use current confidence")
	}
}

func TestMarkImportant(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.3)

	out := h.do(t, id, models.CallbackImportant, "")
	n, err := h.db.GetNotification(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if n.Importance != models.ImportanceHigh {
		t.Errorf("importance = %q, want high", n.Importance)
	}
	if !strings.Contains(out.Text, formatter.StatusMarkedImportant) {
		t.Errorf("text missing status: %q", out.Text)
	}
	if !hasCategoryPicker(out.Markup) {
		t.Error("low confidence keyboard should keep the picker")
	}
}

func TestRejectsForeignMessage(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.9)
	ctx := context.Background()

	cases := []lifecycle.Action{
		{Data: models.CallbackData{Action: models.CallbackArchive, NotificationID: id}, ChatID: chatID + 1, MessageID: messageID},
		{Data: models.CallbackData{Action: models.CallbackArchive, NotificationID: id}, ChatID: chatID, MessageID: messageID + 1},
		{Data: models.CallbackData{Action: models.CallbackArchive, NotificationID: id + 100}, ChatID: chatID, MessageID: messageID},
		{Data: models.CallbackData{Action: models.CallbackCategory, NotificationID: id, Arg: "99"}, ChatID: chatID, MessageID: messageID},
		{Data: models.CallbackData{Action: models.CallbackMute, NotificationID: id, Arg: "zz"}, ChatID: chatID, MessageID: messageID},
		{Data: models.CallbackData{Action: models.CallbackUndo, NotificationID: id, Arg: "zz"}, ChatID: chatID, MessageID: messageID},
		{Data: models.CallbackData{Action: "bogus", NotificationID: id}, ChatID: chatID, MessageID: messageID},
	}
	for _, action := range cases {
		if _, err := h.machine.Handle(ctx, action); !errors.Is(err, lifecycle.ErrRejected) {
			t.Errorf("Handle(%+v) error = %v, want ErrRejected", action, err)
		}
	}
	if len(h.mailbox.calls) != 0 {
		t.Errorf("rejected actions touched the mailbox: %v", h.mailbox.calls)
	}
	if got := h.status(t, id); got != models.StatusNotified {
		t.Errorf("status = %s, want notified", got)
	}
}

func TestRejectsUndeliveredNotification(t *testing.T) {
	h := newHarness(t)
	id, err := h.db.InsertNotificationPlaceholder(context.Background(), h.account, "m9", "t9", 1)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.machine.Handle(context.Background(), lifecycle.Action{
		Data:   models.CallbackData{Action: models.CallbackArchive, NotificationID: id},
		ChatID: chatID, MessageID: messageID,
	})
	if !errors.Is(err, lifecycle.ErrRejected) {
		t.Errorf("error = %v, want ErrRejected", err)
	}
}

func TestMailboxFailureKeepsStatus(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "m1", 0.9)
	h.mailbox.err = errors.New("gmail down")

	_, err := h.machine.Handle(context.Background(), lifecycle.Action{
		Data:   models.CallbackData{Action: models.CallbackArchive, NotificationID: id},
		ChatID: chatID, MessageID: messageID,
	})
	if err == nil || errors.Is(err, lifecycle.ErrRejected) {
		t.Fatalf("error = %v, want mailbox failure", err)
	}
	if got := h.status(t, id); got != models.StatusNotified {
		t.Errorf("status = %s, want notified", got)
	}
}
