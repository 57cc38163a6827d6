// Package dispatch runs a mail merge: it pulls recipient records in order,
// renders and addresses a message for each, and sends it over a single
// transport session. A bad record never stops the run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shineum/mail-merge-lite/internal/address"
	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/recipient"
	"github.com/shineum/mail-merge-lite/internal/render"
	"github.com/shineum/mail-merge-lite/internal/transport"
)

// DefaultName replaces an absent recipient name.
const DefaultName = "Friend"

// SubjectPrefix is followed by the sender's display name.
const SubjectPrefix = "Hello its "

// Source yields recipient records in order. Next returns io.EOF at the end,
// a *recipient.RowError for a row that cannot be read, and any other error
// when the source itself is broken.
type Source interface {
	Next() (recipient.Record, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOnOutcome registers a callback invoked for every record, in source
// order, after it has been processed.
func WithOnOutcome(fn func(Outcome)) Option {
	return func(d *Dispatcher) {
		d.onOutcome = fn
	}
}

// WithLogger sets the logger used for progress lines. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher owns the transport session for the duration of a run.
type Dispatcher struct {
	session   transport.Session
	tmpl      *render.Template
	sender    address.Mailbox
	subject   string
	logger    *slog.Logger
	onOutcome func(Outcome)
}

// New creates a Dispatcher that sends from sender using tmpl for every body.
func New(session transport.Session, tmpl *render.Template, sender address.Mailbox, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		session: session,
		tmpl:    tmpl,
		sender:  sender,
		subject: SubjectPrefix + sender.Name(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes every record of src. It returns a non-nil error only when the
// source fails or ctx is cancelled; the summary then covers the records
// processed so far. Cancellation is observed between records.
func (d *Dispatcher) Run(ctx context.Context, src Source) (Summary, error) {
	var sum Summary

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}

		var rowErr *recipient.RowError
		if errors.As(err, &rowErr) {
			d.report(&sum, Outcome{Row: rowErr.Row, Status: Skipped, Err: err})
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("recipient source: %w", err)
		}

		d.report(&sum, d.deliver(ctx, rec))
	}
}

// deliver makes exactly one delivery attempt for rec.
func (d *Dispatcher) deliver(ctx context.Context, rec recipient.Record) Outcome {
	out := Outcome{Row: rec.Row, Recipient: rec.Email}

	name := rec.Name
	if name == "" {
		name = DefaultName
	}

	d.logger.Info("processing recipient",
		"row", rec.Row,
		"name", name,
		"email", rec.Email,
	)

	to, err := address.Parse(rec.Email)
	if err != nil {
		out.Status = Skipped
		out.Err = err
		return out
	}

	body := d.tmpl.Render(render.Values{
		Name:        name,
		Company:     rec.Company,
		SenderEmail: d.sender.Address(),
	})

	msg, err := email.NewMessage(d.sender, to, d.subject, body)
	if err != nil {
		out.Status = Failed
		out.Err = fmt.Errorf("failed to build message: %w", err)
		return out
	}

	if err := d.session.Send(ctx, msg); err != nil {
		out.Status = Failed
		out.Err = err
		return out
	}

	out.Status = Sent
	return out
}

func (d *Dispatcher) report(sum *Summary, o Outcome) {
	sum.add(o)

	switch o.Status {
	case Sent:
		d.logger.Info("email sent", "row", o.Row, "email", o.Recipient)
	case Skipped:
		d.logger.Warn("recipient skipped", "row", o.Row, "email", o.Recipient, "error", o.Err)
	case Failed:
		d.logger.Error("failed to send email", "row", o.Row, "email", o.Recipient, "error", o.Err)
	}

	if d.onOutcome != nil {
		d.onOutcome(o)
	}
}
