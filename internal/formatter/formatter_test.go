package formatter

import (
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/gmailbot/pkg/models"
)

func TestFormatEscapesAndDecorates(t *testing.T) {
	f := NewTelegramFormatter()

	got := f.Format(View{
		SenderName: "Tom & <Jerry>",
		Summary:    "Pay <now>",
		Category:   "Bills",
		Importance: appmodels.ImportanceHigh,
		Status:     StatusTrashed,
		Note:       LowConfidenceNote,
		Codes:      []string{"123456"},
	})

	for _, want := range []string{
		"📩 <b>From:</b> Tom &amp; &lt;Jerry&gt;",
		"🏷️ <b>Category:</b> Bills",
		"🔥 <b>Importance:</b> high",
		"🗑️ <b>Status:</b> Trashed",
		"⚠️ " + LowConfidenceNote,
		"<code>123456</code>",
		"🤖 Pay &lt;now&gt;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
}

func TestFormatFallbacks(t *testing.T) {
	got := NewTelegramFormatter().Format(View{})
	if !strings.Contains(got, "Unknown Sender") || !strings.Contains(got, "Category:</b> Other") {
		t.Fatalf("unexpected fallback text %q", got)
	}
	if strings.Contains(got, "Status") || strings.Contains(got, "Importance") {
		t.Fatalf("optional lines must be omitted: %q", got)
	}
}

func TestStatusIcon(t *testing.T) {
	tests := map[string]string{
		StatusArchived:        "🗂️",
		StatusTrashed:         "🗑️",
		StatusNotInterested:   "🚫",
		StatusRestored:        "✅",
		StatusMarkedImportant: "✅",
	}
	for status, want := range tests {
		if got := statusIcon(status); got != want {
			t.Errorf("statusIcon(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestOpenURL(t *testing.T) {
	if got := OpenURL("t1", "me+x@gmail.com"); got != "https://mail.google.com/mail/u/0/?authuser=me%2Bx%40gmail.com#inbox/t1" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := OpenURL("t1", ""); got != "https://mail.google.com/mail/u/0/#inbox/t1" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestBuildKeyboardCategoryRows(t *testing.T) {
	plain := BuildKeyboard(7, "https://x", false)
	if len(plain.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(plain.InlineKeyboard))
	}
	if plain.InlineKeyboard[0][0].URL != "https://x" {
		t.Fatalf("first button must open the message")
	}

	withPicker := BuildKeyboard(7, "https://x", true)
	wantRows := 2 + (len(appmodels.Categories)+categoriesPerRow-1)/categoriesPerRow
	if len(withPicker.InlineKeyboard) != wantRows {
		t.Fatalf("expected %d rows, got %d", wantRows, len(withPicker.InlineKeyboard))
	}

	last := withPicker.InlineKeyboard[len(withPicker.InlineKeyboard)-1]
	data, err := DecodeCallback(last[len(last)-1].CallbackData)
	if err != nil {
		t.Fatalf("DecodeCallback: %v", err)
	}
	if data.Action != appmodels.CallbackCategory || data.Arg != "11" || data.NotificationID != 7 {
		t.Fatalf("unexpected last category callback %+v", data)
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	id := int64(9_223_372_036_854_775_807)
	for _, kb := range [][]string{
		callbacks(BuildKeyboard(id, "u", true).InlineKeyboard),
		callbacks(BuildNotInterestedPicker(id).InlineKeyboard),
		callbacks(BuildOpenWithUndoKeyboard(id, "u", appmodels.UndoNotInterested).InlineKeyboard),
		callbacks(BuildConfirmTrashKeyboard(id).InlineKeyboard),
	} {
		for _, data := range kb {
			if len(data) > 64 {
				t.Errorf("callback data %q is %d bytes", data, len(data))
			}
		}
	}
}

func TestDecodeCallbackRejectsGarbage(t *testing.T) {
	if _, err := DecodeCallback("a:1"); err == nil {
		t.Fatal("expected error for non JSON data")
	}
}

func callbacks(rows [][]models.InlineKeyboardButton) []string {
	var out []string
	for _, row := range rows {
		for _, b := range row {
			if b.CallbackData != "" {
				out = append(out, b.CallbackData)
			}
		}
	}
	return out
}
