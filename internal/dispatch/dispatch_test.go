package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mail-merge-lite/internal/address"
	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/recipient"
	"github.com/shineum/mail-merge-lite/internal/render"
)

const testTemplate = "Hi {name} from {company_name}, contact {sender_email}"

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Send(ctx context.Context, msg *email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockSession) Close() error {
	return m.Called().Error(0)
}

type item struct {
	rec recipient.Record
	err error
}

// stubSource replays items, then io.EOF.
type stubSource struct {
	items []item
	pos   int
}

func (s *stubSource) Next() (recipient.Record, error) {
	if s.pos >= len(s.items) {
		return recipient.Record{}, io.EOF
	}
	it := s.items[s.pos]
	s.pos++
	return it.rec, it.err
}

func records(recs ...recipient.Record) *stubSource {
	src := &stubSource{}
	for _, r := range recs {
		src.items = append(src.items, item{rec: r})
	}
	return src
}

func newDispatcher(t *testing.T, sess *mockSession, outcomes *[]Outcome) *Dispatcher {
	t.Helper()
	sender, err := address.Sender("Shop", "sales@shop.com")
	require.NoError(t, err)
	return New(sess, render.New(testTemplate), sender,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOnOutcome(func(o Outcome) { *outcomes = append(*outcomes, o) }),
	)
}

// captureSends records every message passed to Send.
func captureSends(sess *mockSession, sent *[]*email.Message, err error) {
	sess.On("Send", mock.Anything, mock.AnythingOfType("*email.Message")).
		Run(func(args mock.Arguments) {
			*sent = append(*sent, args.Get(1).(*email.Message))
		}).
		Return(err)
}

func TestRun_RendersAndSends(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var sent []*email.Message
	captureSends(sess, &sent, nil)

	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	sum, err := d.Run(context.Background(), records(
		recipient.Record{Row: 1, Name: "Ana", Email: "ana@x.com", Company: "Acme"},
	))
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Sent: 1}, sum)

	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "Hi Ana from Acme, contact sales@shop.com", msg.Body)
	assert.Equal(t, "Hello its Shop", msg.Subject)
	assert.Equal(t, email.ContentTypeTextPlain, msg.ContentType)
	assert.Equal(t, "ana@x.com", msg.To.Address())
	assert.Equal(t, "sales@shop.com", msg.From.Address())
	assert.Equal(t, "Shop", msg.From.Name())

	require.Len(t, outcomes, 1)
	assert.Equal(t, Outcome{Row: 1, Recipient: "ana@x.com", Status: Sent}, outcomes[0])
}

func TestRun_DefaultsForAbsentFields(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var sent []*email.Message
	captureSends(sess, &sent, nil)

	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	_, err := d.Run(context.Background(), records(
		recipient.Record{Row: 1, Email: "bo@y.com"},
	))
	require.NoError(t, err)

	require.Len(t, sent, 1)
	assert.Equal(t, "Hi Friend from , contact sales@shop.com", sent[0].Body)
}

func TestRun_MalformedAddressIsSkipped(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var sent []*email.Message
	captureSends(sess, &sent, nil)

	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	sum, err := d.Run(context.Background(), records(
		recipient.Record{Row: 1, Name: "Ana", Email: "ana@x.com"},
		recipient.Record{Row: 2, Name: "Bad", Email: "not-an-email"},
		recipient.Record{Row: 3, Name: "Cy", Email: "cy@z.com"},
	))
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 3, Sent: 2, Skipped: 1}, sum)

	require.Len(t, sent, 2)
	assert.Equal(t, "ana@x.com", sent[0].To.Address())
	assert.Equal(t, "cy@z.com", sent[1].To.Address())
	sess.AssertNumberOfCalls(t, "Send", 2)

	require.Len(t, outcomes, 3)
	assert.Equal(t, 2, outcomes[1].Row)
	assert.Equal(t, Skipped, outcomes[1].Status)
	assert.ErrorIs(t, outcomes[1].Err, address.ErrInvalidAddressFormat)
	assert.Contains(t, outcomes[1].Err.Error(), "not-an-email")
}

func TestRun_EmptyAddressIsSkipped(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	sum, err := d.Run(context.Background(), records(recipient.Record{Row: 1, Name: "Ana"}))
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Skipped: 1}, sum)
	sess.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRun_DeliveryFailureContinues(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("550 mailbox unavailable")
	sess := &mockSession{}
	sess.On("Send", mock.Anything, mock.MatchedBy(func(m *email.Message) bool {
		return m.To.Address() == "ana@x.com"
	})).Return(sendErr).Once()
	sess.On("Send", mock.Anything, mock.MatchedBy(func(m *email.Message) bool {
		return m.To.Address() == "bo@y.com"
	})).Return(nil).Once()

	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	sum, err := d.Run(context.Background(), records(
		recipient.Record{Row: 1, Email: "ana@x.com"},
		recipient.Record{Row: 2, Email: "bo@y.com"},
	))
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Sent: 1, Failed: 1}, sum)

	require.Len(t, outcomes, 2)
	assert.Equal(t, Failed, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, sendErr)
	assert.Equal(t, Sent, outcomes[1].Status)
	sess.AssertExpectations(t)
}

func TestRun_MessageBuildFailureIsFailed(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	sender, err := address.Sender("Shop\r\nBcc: victim@x.com", "sales@shop.com")
	require.NoError(t, err)

	var outcomes []Outcome
	d := New(sess, render.New(testTemplate), sender,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOnOutcome(func(o Outcome) { outcomes = append(outcomes, o) }),
	)

	sum, err := d.Run(context.Background(), records(recipient.Record{Row: 1, Email: "ana@x.com"}))
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Failed: 1}, sum)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, email.ErrHeaderInjection)
	sess.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRun_RowErrorIsSkipped(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var sent []*email.Message
	captureSends(sess, &sent, nil)

	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	src := &stubSource{items: []item{
		{err: &recipient.RowError{Row: 1, Err: errors.New("bare quote")}},
		{rec: recipient.Record{Row: 2, Email: "bo@y.com"}},
	}}

	sum, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Sent: 1, Skipped: 1}, sum)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, outcomes[0].Row)
	assert.Equal(t, Skipped, outcomes[0].Status)
	assert.Len(t, sent, 1)
}

func TestRun_SourceFailureIsFatal(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var sent []*email.Message
	captureSends(sess, &sent, nil)

	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	ioErr := errors.New("read: input/output error")
	src := &stubSource{items: []item{
		{rec: recipient.Record{Row: 1, Email: "ana@x.com"}},
		{err: ioErr},
		{rec: recipient.Record{Row: 3, Email: "cy@z.com"}},
	}}

	sum, err := d.Run(context.Background(), src)
	require.ErrorIs(t, err, ioErr)
	assert.Equal(t, Summary{Total: 1, Sent: 1}, sum)
	assert.Len(t, sent, 1)
}

func TestRun_CancelledBetweenRecords(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var sent []*email.Message
	captureSends(sess, &sent, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender, err := address.Sender("Shop", "sales@shop.com")
	require.NoError(t, err)
	d := New(sess, render.New(testTemplate), sender,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOnOutcome(func(Outcome) { cancel() }),
	)

	sum, err := d.Run(ctx, records(
		recipient.Record{Row: 1, Email: "ana@x.com"},
		recipient.Record{Row: 2, Email: "bo@y.com"},
	))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Summary{Total: 1, Sent: 1}, sum)
	assert.Len(t, sent, 1)
}

func TestRun_EmptySource(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	var outcomes []Outcome
	d := newDispatcher(t, sess, &outcomes)

	sum, err := d.Run(context.Background(), records())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, outcomes)
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		want   string
	}{
		{Sent, "sent"},
		{Skipped, "skipped"},
		{Failed, "failed"},
		{Status(0), "Status(0)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}
