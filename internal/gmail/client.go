package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mixelka/gmailbot/internal/parser"
	"github.com/mixelka/gmailbot/pkg/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	userID     = "me"
	inboxLabel = "INBOX"
)

// HistoryEntry is a message added to the mailbox
type HistoryEntry struct {
	MessageID string
	ThreadID  string
}

// WatchResult response of a watch request
type WatchResult struct {
	HistoryID  uint64
	Expiration time.Time // Zero if Gmail returned none
}

// Client Gmail API client shared by all configured accounts
type Client struct {
	oauth      *oauth2.Config
	htmlParser *parser.HTMLParser
	logger     *slog.Logger
	options    []option.ClientOption

	mu       sync.Mutex
	services map[string]*gmailapi.Service
}

// NewClient creates a Gmail client from an OAuth client secret file
func NewClient(clientSecretPath string, htmlParser *parser.HTMLParser, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	data, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth client secret: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(data, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse oauth client secret: %w", err)
	}

	return &Client{
		oauth:      oauthConfig,
		htmlParser: htmlParser,
		logger:     logger.With("component", "gmail"),
		options:    opts,
		services:   make(map[string]*gmailapi.Service),
	}, nil
}

// service returns the cached API service of an account
func (c *Client) service(ctx context.Context, account models.Account) (*gmailapi.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if srv, ok := c.services[account.Email]; ok {
		return srv, nil
	}

	opts := c.options
	if len(opts) == 0 {
		// Token source must outlive the request context
		ts := c.oauth.TokenSource(context.Background(), &oauth2.Token{RefreshToken: account.RefreshToken})
		opts = []option.ClientOption{option.WithTokenSource(ts)}
	}

	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	c.services[account.Email] = srv
	return srv, nil
}

// ListHistorySince returns messages added since cursor, following all pages,
// and the newest history ID reported by Gmail.
func (c *Client) ListHistorySince(ctx context.Context, account models.Account, cursor uint64, labelID string) ([]HistoryEntry, *uint64, error) {
	srv, err := c.service(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	var (
		entries   []HistoryEntry
		newest    *uint64
		pageToken string
	)
	for {
		call := srv.Users.History.List(userID).
			StartHistoryId(cursor).
			HistoryTypes("messageAdded").
			Context(ctx)
		if labelID != "" {
			call = call.LabelId(labelID)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list history: %w", classifyHistory(err))
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || added.Message.Id == "" {
					continue
				}
				entries = append(entries, HistoryEntry{
					MessageID: added.Message.Id,
					ThreadID:  added.Message.ThreadId,
				})
			}
		}
		if resp.HistoryId != 0 {
			id := resp.HistoryId
			newest = &id
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return entries, newest, nil
}

// GetMessage fetches and parses a message
func (c *Client) GetMessage(ctx context.Context, account models.Account, messageID string) (*Message, error) {
	srv, err := c.service(ctx, account)
	if err != nil {
		return nil, err
	}

	raw, err := srv.Users.Messages.Get(userID, messageID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", classify(err))
	}

	msg := &Message{
		ID:       raw.Id,
		ThreadID: raw.ThreadId,
		Snippet:  raw.Snippet,
	}
	if msg.ID == "" {
		msg.ID = messageID
	}

	data, err := decodeRaw(raw.Raw)
	if err != nil {
		return nil, err
	}
	if err := parseRFC822(data, msg, c.logger); err != nil {
		return nil, err
	}

	if msg.BodyText == "" && msg.BodyHTML != "" {
		text, err := c.htmlParser.Parse(msg.BodyHTML)
		if err != nil {
			c.logger.Warn("failed to parse html body", "message_id", msg.ID, "error", err)
		}
		msg.BodyText = text
	} else {
		msg.BodyText = c.htmlParser.Clean(msg.BodyText)
	}

	return msg, nil
}

// Archive removes the message or its thread from the inbox
func (c *Client) Archive(ctx context.Context, account models.Account, messageID, threadID string) error {
	return c.modifyInbox(ctx, account, messageID, threadID, nil, []string{inboxLabel})
}

// Unarchive puts the message or its thread back into the inbox
func (c *Client) Unarchive(ctx context.Context, account models.Account, messageID, threadID string) error {
	return c.modifyInbox(ctx, account, messageID, threadID, []string{inboxLabel}, nil)
}

func (c *Client) modifyInbox(ctx context.Context, account models.Account, messageID, threadID string, add, remove []string) error {
	srv, err := c.service(ctx, account)
	if err != nil {
		return err
	}

	if threadID != "" {
		req := &gmailapi.ModifyThreadRequest{AddLabelIds: add, RemoveLabelIds: remove}
		_, err = srv.Users.Threads.Modify(userID, threadID, req).Context(ctx).Do()
	} else {
		req := &gmailapi.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
		_, err = srv.Users.Messages.Modify(userID, messageID, req).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("failed to modify labels: %w", classify(err))
	}
	return nil
}

// Trash moves the message or its thread to trash
func (c *Client) Trash(ctx context.Context, account models.Account, messageID, threadID string) error {
	srv, err := c.service(ctx, account)
	if err != nil {
		return err
	}

	if threadID != "" {
		_, err = srv.Users.Threads.Trash(userID, threadID).Context(ctx).Do()
	} else {
		_, err = srv.Users.Messages.Trash(userID, messageID).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("failed to trash: %w", classify(err))
	}
	return nil
}

// Untrash restores the message or its thread from trash
func (c *Client) Untrash(ctx context.Context, account models.Account, messageID, threadID string) error {
	srv, err := c.service(ctx, account)
	if err != nil {
		return err
	}

	if threadID != "" {
		_, err = srv.Users.Threads.Untrash(userID, threadID).Context(ctx).Do()
	} else {
		_, err = srv.Users.Messages.Untrash(userID, messageID).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("failed to untrash: %w", classify(err))
	}
	return nil
}

// Watch starts or renews push notifications to a Pub/Sub topic
func (c *Client) Watch(ctx context.Context, account models.Account, topic string, labelIDs []string) (*WatchResult, error) {
	srv, err := c.service(ctx, account)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.Watch(userID, &gmailapi.WatchRequest{
		TopicName: topic,
		LabelIds:  labelIDs,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to watch mailbox: %w", classify(err))
	}

	result := &WatchResult{HistoryID: resp.HistoryId}
	if resp.Expiration > 0 {
		result.Expiration = time.UnixMilli(resp.Expiration).UTC()
	}
	return result, nil
}

// CurrentCursor returns the mailbox's current history ID
func (c *Client) CurrentCursor(ctx context.Context, account models.Account) (uint64, error) {
	srv, err := c.service(ctx, account)
	if err != nil {
		return 0, err
	}

	profile, err := srv.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get profile: %w", classify(err))
	}
	return profile.HistoryId, nil
}
