package dispatch

import "fmt"

// Status is the result of processing one recipient record.
type Status int

const (
	// Sent means the transport accepted the message.
	Sent Status = iota + 1
	// Skipped means the record was never handed to the transport: its
	// address was invalid or its row could not be parsed.
	Skipped
	// Failed means a message was built for the record but could not be
	// delivered.
	Failed
)

func (s Status) String() string {
	switch s {
	case Sent:
		return "sent"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome reports what happened to one record. Err is nil only for Sent.
type Outcome struct {
	Row       int
	Recipient string
	Status    Status
	Err       error
}

// Summary counts outcomes over a run.
type Summary struct {
	Total   int
	Sent    int
	Skipped int
	Failed  int
}

func (s *Summary) add(o Outcome) {
	s.Total++
	switch o.Status {
	case Sent:
		s.Sent++
	case Skipped:
		s.Skipped++
	case Failed:
		s.Failed++
	}
}
