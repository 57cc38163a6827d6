// Package resend implements a Transport that sends emails via the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/transport"
)

// errMissingAPIKey is returned by Dial when no API key is configured.
var errMissingAPIKey = errors.New("resend API key is empty")

// EmailsAPI is the subset of the Resend emails service used by the transport.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for delivery details. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport sends through the Resend API.
type Transport struct {
	apiKey string
	emails EmailsAPI
	logger *slog.Logger
}

// New creates a Resend Transport.
func New(apiKey string, opts ...Option) *Transport {
	return NewWithClient(apiKey, resend.NewClient(apiKey).Emails, opts...)
}

// NewWithClient creates a Transport with a custom emails client, used for
// testing.
func NewWithClient(apiKey string, emails EmailsAPI, opts ...Option) *Transport {
	t := &Transport{apiKey: apiKey, emails: emails, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial only checks that a key is configured. Resend has no endpoint that a
// sending-only key may call to verify itself, so a bad key surfaces on the
// first Send.
func (t *Transport) Dial(_ context.Context) (transport.Session, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: %v", transport.ErrAuthentication, errMissingAPIKey)
	}
	return &session{emails: t.emails, logger: t.logger}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "resend"
}

type session struct {
	emails EmailsAPI
	logger *slog.Logger
}

func (s *session) Send(ctx context.Context, msg *email.Message) error {
	req := &resend.SendEmailRequest{
		From:    msg.From.String(),
		To:      []string{msg.To.String()},
		Subject: msg.Subject,
		Text:    msg.Body,
	}

	resp, err := s.emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	s.logger.Debug("resend accepted message",
		"to", msg.To.Address(),
		"resend_id", resp.Id,
	)
	return nil
}

func (s *session) Close() error {
	return nil
}
