package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is a fetched Gmail message reduced to what notifications need
type Message struct {
	ID          string
	ThreadID    string
	SenderEmail string
	SenderName  string
	Subject     string
	Snippet     string
	BodyText    string
	BodyHTML    string
}

// decodeRaw decodes the base64url "raw" field of a message
func decodeRaw(raw string) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(raw)
	if err == nil {
		return data, nil
	}
	data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw message: %w", err)
	}
	return data, nil
}

// parseRFC822 fills sender, subject and bodies from an RFC 822 message
func parseRFC822(data []byte, msg *Message, logger *slog.Logger) error {
	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.SenderName = from[0].Name
		msg.SenderEmail = from[0].Address
	} else {
		msg.SenderName, msg.SenderEmail = splitSender(mr.Header.Get("From"))
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("failed to read part", "message_id", msg.ID, "error", err)
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		// First part of each type wins; later ones are usually quoted alternatives
		switch {
		case strings.HasPrefix(ct, "text/plain") && msg.BodyText == "":
			msg.BodyText = string(body)
		case strings.HasPrefix(ct, "text/html") && msg.BodyHTML == "":
			msg.BodyHTML = string(body)
		}
	}

	return nil
}

// splitSender handles From values that net/mail rejects, like `Name <addr` or bare addresses
func splitSender(from string) (name, address string) {
	from = strings.TrimSpace(from)
	if i := strings.Index(from, "<"); i >= 0 {
		name = strings.Trim(strings.TrimSpace(from[:i]), `"`)
		address = strings.Trim(strings.TrimSpace(from[i+1:]), "> ")
		return name, address
	}
	return "", from
}
