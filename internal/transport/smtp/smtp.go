// Package smtp implements a Transport that submits messages to an SMTP relay
// through gomail, keeping one authenticated connection open for the run.
package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/shineum/mail-merge-lite/internal/email"
	smtptls "github.com/shineum/mail-merge-lite/internal/tls"
	"github.com/shineum/mail-merge-lite/internal/transport"
)

// Config holds the relay connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// ImplicitTLS dials with TLS from the first byte (SMTPS, usually port
	// 465). Otherwise STARTTLS is used when the server offers it.
	ImplicitTLS bool

	// CAFile is an optional PEM bundle trusted in addition to the system roots.
	CAFile string

	// SkipVerify disables certificate verification.
	SkipVerify bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for connection events. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport dials an SMTP relay.
type Transport struct {
	dialer *gomail.Dialer
	logger *slog.Logger
}

// New creates an SMTP Transport. No connection is made until Dial.
func New(cfg Config, opts ...Option) (*Transport, error) {
	tlsConfig, err := smtptls.ClientConfig(cfg.Host, cfg.CAFile, cfg.SkipVerify)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.ImplicitTLS
	d.TLSConfig = tlsConfig

	t := &Transport{dialer: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Dial connects, upgrades to TLS and authenticates.
func (t *Transport) Dial(_ context.Context) (transport.Session, error) {
	sc, err := t.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("%w: smtp %s:%d: %v", transport.ErrAuthentication, t.dialer.Host, t.dialer.Port, err)
	}
	return &Session{dialer: t.dialer, logger: t.logger, sender: sc}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Session is an open SMTP connection. gomail never sends RSET, so a failed
// send leaves the SMTP transaction open; the session then drops the
// connection and the next Send dials a fresh one.
type Session struct {
	mu     sync.Mutex
	dialer *gomail.Dialer
	logger *slog.Logger

	// sender is nil between a failed send and the next reconnect.
	sender gomail.SendCloser
}

// Send submits msg on the open connection. The context is not consulted;
// gomail has no cancellation hook.
func (s *Session) Send(_ context.Context, msg *email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sender == nil {
		sc, err := s.dialer.Dial()
		if err != nil {
			return fmt.Errorf("smtp reconnect for %s: %w", msg.To.Address(), err)
		}
		s.logger.Debug("smtp session reconnected", "host", s.dialer.Host)
		s.sender = sc
	}

	if err := gomail.Send(s.sender, buildMessage(msg)); err != nil {
		s.drop()
		return fmt.Errorf("smtp send to %s: %w", msg.To.Address(), err)
	}
	return nil
}

// drop closes the current connection after a failed send.
func (s *Session) drop() {
	if err := s.sender.Close(); err != nil {
		s.logger.Debug("failed to close smtp connection", "error", err)
	}
	s.sender = nil
}

// Close sends QUIT and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sender == nil {
		return nil
	}
	err := s.sender.Close()
	s.sender = nil
	return err
}

// buildMessage converts a Message into a gomail message.
func buildMessage(msg *email.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From.Address(), msg.From.Name())
	m.SetAddressHeader("To", msg.To.Address(), msg.To.Name())
	m.SetHeader("Subject", msg.Subject)
	if msg.ID != "" {
		m.SetHeader("Message-ID", msg.ID)
	}
	contentType := msg.ContentType
	if contentType == "" {
		contentType = email.ContentTypeTextPlain
	}
	m.SetBody(contentType, msg.Body)
	return m
}
