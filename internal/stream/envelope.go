package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned for push payloads that cannot be dispatched
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the Gmail push notification payload
type Envelope struct {
	EmailAddress string
	HistoryID    uint64
}

// ParseEnvelope decodes {"emailAddress": ..., "historyId": ...}.
// historyId may be a JSON number or a numeric string.
func ParseEnvelope(data []byte) (Envelope, error) {
	var raw struct {
		EmailAddress string          `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	email := strings.TrimSpace(raw.EmailAddress)
	if email == "" {
		return Envelope{}, fmt.Errorf("%w: missing emailAddress", ErrMalformed)
	}

	historyID, err := parseHistoryID(raw.HistoryID)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return Envelope{EmailAddress: email, HistoryID: historyID}, nil
}

func parseHistoryID(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing historyId")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
	}

	id, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid historyId %q", text)
	}
	if id == 0 {
		return 0, errors.New("zero historyId")
	}
	return id, nil
}
