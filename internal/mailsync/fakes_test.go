package mailsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/gmailbot/internal/classifier"
	"github.com/mixelka/gmailbot/internal/gmail"
	"github.com/mixelka/gmailbot/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMailbox struct {
	mu        sync.Mutex
	entries   []gmail.HistoryEntry
	newest    *uint64
	listErr   error
	current   uint64
	messages  map[string]*gmail.Message
	listCalls []uint64
	gets      []string
}

func (f *fakeMailbox) ListHistorySince(_ context.Context, _ models.Account, cursor uint64, _ string) ([]gmail.HistoryEntry, *uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, cursor)
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	return f.entries, f.newest, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, _ models.Account, id string) (*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return msg, nil
}

func (f *fakeMailbox) CurrentCursor(context.Context, models.Account) (uint64, error) {
	return f.current, nil
}

type fakeClassifier struct {
	results map[string]*classifier.Result // keyed by sender email
	err     error
	partial *classifier.Result // returned alongside err
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, text string, _ []string, _ int) (*classifier.Result, error) {
	f.calls++
	if f.err != nil {
		return f.partial, f.err
	}
	for sender, result := range f.results {
		if strings.Contains(text, sender) {
			r := *result
			return &r, nil
		}
	}
	return &classifier.Result{Category: "Other", Confidence: 0.9, Summary: "summary"}, nil
}

func (f *fakeClassifier) Model() string { return "gpt-test" }

type sentMessage struct {
	chatID int64
	text   string
	markup *tgmodels.InlineKeyboardMarkup
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn string // text substring that makes Send fail
	nextID int64
}

var errSendFailed = errors.New("telegram unavailable")

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return 0, errSendFailed
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, markup: markup})
	return 1000 + f.nextID, nil
}
