// Package email defines the message model shared by the dispatcher, the
// transports and the capture sink.
package email

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/mail-merge-lite/internal/address"
)

// ContentTypeTextPlain is the only body type the dispatcher produces.
const ContentTypeTextPlain = "text/plain"

// ErrHeaderInjection is returned when a header value contains a line break.
var ErrHeaderInjection = errors.New("header value contains a line break")

// Message is one rendered, addressed email, built fresh for each recipient.
type Message struct {
	ID          string
	From        address.Mailbox
	To          address.Mailbox
	Subject     string
	Body        string
	ContentType string
}

// NewMessage builds a plain-text Message with a fresh Message-ID.
func NewMessage(from, to address.Mailbox, subject, body string) (*Message, error) {
	if from.IsZero() {
		return nil, errors.New("message has no sender")
	}
	if to.IsZero() {
		return nil, errors.New("message has no recipient")
	}
	if strings.ContainsAny(subject, "\r\n") {
		return nil, fmt.Errorf("subject: %w", ErrHeaderInjection)
	}

	return &Message{
		ID:          NewMessageID(from.Domain()),
		From:        from,
		To:          to,
		Subject:     subject,
		Body:        body,
		ContentType: ContentTypeTextPlain,
	}, nil
}

// NewMessageID returns an RFC 5322 Message-ID such as <uuid@domain>.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Received is a message as accepted by the capture sink.
type Received struct {
	From        string
	To          []string
	Subject     string
	TextBody    string
	ContentType string
	RawHeaders  map[string][]string
	MessageID   string
}
