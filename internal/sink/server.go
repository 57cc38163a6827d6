// Package sink implements a local SMTP endpoint that accepts submissions and
// hands each received message to a callback instead of relaying it. It is used
// to rehearse a campaign end to end and to test the SMTP transport.
package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shineum/mail-merge-lite/internal/email"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// defaultMaxMessageSize is 25 MB.
const defaultMaxMessageSize = 25 * 1024 * 1024

// Handler receives every accepted message. Returning an error makes the sink
// answer the DATA command with a temporary failure.
type Handler func(ctx context.Context, msg *email.Received) error

// Config holds the configuration for a sink Server.
type Config struct {
	// Hostname is used in the greeting and EHLO responses.
	Hostname string

	// Username and Password enable AUTH PLAIN/LOGIN when either is set.
	Username string
	Password string

	// TLSConfig enables STARTTLS. If nil, STARTTLS is not advertised.
	TLSConfig *tls.Config

	// MaxMessageSize caps DATA in bytes.
	MaxMessageSize int64

	// RejectRecipient, if set, makes RCPT TO answer 550 for matching addresses.
	RejectRecipient func(addr string) bool

	// Handler is required.
	Handler Handler
}

// Server accepts SMTP connections, one goroutine per connection.
type Server struct {
	cfg   Config
	creds credentials

	mu       sync.Mutex
	listener net.Listener

	// wg tracks in-flight session goroutines for graceful shutdown.
	wg sync.WaitGroup
}

// New creates a sink Server.
func New(cfg Config) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.Handler == nil {
		cfg.Handler = func(context.Context, *email.Received) error { return nil }
	}

	return &Server{
		cfg:   cfg,
		creds: credentials{username: cfg.Username, password: cfg.Password},
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits up to
// 30 seconds for in-flight sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("sink listening",
		"addr", ln.Addr().String(),
		"auth_enabled", s.creds.enabled(),
		"tls_enabled", s.cfg.TLSConfig != nil,
	)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down sink")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.waitForSessions()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Error("accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(s, conn).handle(ctx)
		}()
	}
}

// waitForSessions waits for all in-flight sessions to complete,
// with a maximum timeout to prevent indefinite blocking.
func (s *Server) waitForSessions() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all sink sessions completed")
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown timeout reached, forcing close")
	}
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
