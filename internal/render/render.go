// Package render substitutes recipient values into a plain-text template.
//
// Only three literal tokens are recognized: {name}, {company_name} and
// {sender_email}. Anything else in braces is left as it is, since the format
// has no escaping mechanism.
package render

import (
	"fmt"
	"os"
	"strings"
)

// Recognized placeholder tokens.
const (
	TokenName        = "{name}"
	TokenCompanyName = "{company_name}"
	TokenSenderEmail = "{sender_email}"
)

// tokens is the fixed substitution order.
var tokens = []string{TokenName, TokenCompanyName, TokenSenderEmail}

// Values holds the per-recipient substitution values.
type Values struct {
	Name        string
	Company     string
	SenderEmail string
}

// pairs returns the (token, value) list in substitution order.
func (v Values) pairs() []string {
	return []string{
		TokenName, v.Name,
		TokenCompanyName, v.Company,
		TokenSenderEmail, v.SenderEmail,
	}
}

// Template is a read-only message body template.
type Template struct {
	raw string
}

// New wraps raw template text.
func New(raw string) *Template {
	return &Template{raw: raw}
}

// Load reads a template from disk.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return New(string(data)), nil
}

// Raw returns the unrendered template text.
func (t *Template) Raw() string {
	return t.raw
}

// Tokens returns the recognized tokens present in the template, in
// substitution order.
func (t *Template) Tokens() []string {
	var found []string
	for _, tok := range tokens {
		if strings.Contains(t.raw, tok) {
			found = append(found, tok)
		}
	}
	return found
}

// Render replaces every occurrence of each recognized token with its value.
// Substitution is a single pass over the template, so values are never
// themselves scanned for tokens.
func (t *Template) Render(v Values) string {
	return strings.NewReplacer(v.pairs()...).Replace(t.raw)
}
