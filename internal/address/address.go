// Package address parses free-text email strings into validated mailboxes.
package address

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidAddressFormat is returned when a string does not contain a
// syntactically valid local@domain address.
var ErrInvalidAddressFormat = errors.New("invalid address format")

// Mailbox is an email identity with an optional display name.
// The zero value is not a valid mailbox; use Parse or Sender.
type Mailbox struct {
	name    string
	address string
}

// Parse parses either "Display Name <local@domain>" or a bare local@domain.
func Parse(raw string) (Mailbox, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Mailbox{}, fmt.Errorf("%w: empty address", ErrInvalidAddressFormat)
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return Mailbox{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddressFormat, trimmed, err)
	}

	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" || domain == "" {
		return Mailbox{}, fmt.Errorf("%w: %q", ErrInvalidAddressFormat, trimmed)
	}

	return Mailbox{name: addr.Name, address: addr.Address}, nil
}

// Sender builds the From identity out of a display name and a bare address.
func Sender(displayName, addr string) (Mailbox, error) {
	mb, err := Parse(addr)
	if err != nil {
		return Mailbox{}, err
	}
	if displayName != "" {
		mb.name = displayName
	}
	return mb, nil
}

// Address returns the bare local@domain part.
func (m Mailbox) Address() string {
	return m.address
}

// Name returns the display name, or an empty string if there is none.
func (m Mailbox) Name() string {
	return m.name
}

// Domain returns the part after the @.
func (m Mailbox) Domain() string {
	_, domain, _ := strings.Cut(m.address, "@")
	return domain
}

// IsZero reports whether m was never populated by Parse or Sender.
func (m Mailbox) IsZero() bool {
	return m.address == ""
}

// String formats the mailbox as an RFC 5322 address, quoting and encoding the
// display name where needed.
func (m Mailbox) String() string {
	return (&mail.Address{Name: m.name, Address: m.address}).String()
}
