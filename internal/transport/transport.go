// Package transport defines the delivery backends a mail-merge run sends
// through. A Transport authenticates once and hands out a Session that the
// dispatcher reuses for every recipient.
package transport

import (
	"context"
	"errors"

	"github.com/shineum/mail-merge-lite/internal/email"
)

// ErrAuthentication is wrapped by every Dial failure.
var ErrAuthentication = errors.New("transport authentication failed")

// Transport opens authenticated sessions against a delivery backend.
type Transport interface {
	// Dial authenticates and returns a session ready to send.
	Dial(ctx context.Context) (Session, error)

	// Name returns the human-readable name of this transport.
	Name() string
}

// Session sends one message at a time over an authenticated channel.
// Implementations do not retry.
type Session interface {
	Send(ctx context.Context, msg *email.Message) error
	Close() error
}
