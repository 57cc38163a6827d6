package render

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tmpl   string
		values Values
		want   string
	}{
		{
			name:   "all tokens",
			tmpl:   "Hi {name} from {company_name}, contact {sender_email}",
			values: Values{Name: "Ana", Company: "Acme", SenderEmail: "sales@shop.com"},
			want:   "Hi Ana from Acme, contact sales@shop.com",
		},
		{
			name:   "defaulted fields",
			tmpl:   "Hi {name} from {company_name}!",
			values: Values{Name: "Friend", Company: "", SenderEmail: "sales@shop.com"},
			want:   "Hi Friend from !",
		},
		{
			name:   "repeated tokens",
			tmpl:   "{name}, {name}, {name}",
			values: Values{Name: "Bo"},
			want:   "Bo, Bo, Bo",
		},
		{
			name:   "unknown tokens pass through",
			tmpl:   "Dear {name}, your {order_id} ships {soon",
			values: Values{Name: "Ana"},
			want:   "Dear Ana, your {order_id} ships {soon",
		},
		{
			name:   "no tokens",
			tmpl:   "static body {}",
			values: Values{Name: "Ana"},
			want:   "static body {}",
		},
		{
			name:   "values are not rescanned",
			tmpl:   "Hi {name} at {company_name}",
			values: Values{Name: "{company_name}", Company: "Acme"},
			want:   "Hi {company_name} at Acme",
		},
		{
			name:   "empty template",
			tmpl:   "",
			values: Values{Name: "Ana"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := New(tt.tmpl).Render(tt.values)
			if got != tt.want {
				t.Errorf("Render(): got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NoRecognizedTokensRemain(t *testing.T) {
	t.Parallel()

	tmpl := New("{name}{company_name}{sender_email} and again {name} {company_name} {sender_email}")
	got := tmpl.Render(Values{Name: "Ana", Company: "Acme", SenderEmail: "s@shop.com"})

	for _, tok := range []string{TokenName, TokenCompanyName, TokenSenderEmail} {
		if strings.Contains(got, tok) {
			t.Errorf("rendered output still contains %s: %q", tok, got)
		}
	}
}

func TestRender_Idempotent(t *testing.T) {
	t.Parallel()

	tmpl := New("Hello {name} of {company_name} ({sender_email})")
	values := Values{Name: "Ana", Company: "Acme", SenderEmail: "s@shop.com"}

	first := tmpl.Render(values)
	second := tmpl.Render(values)
	if first != second {
		t.Errorf("rendering twice differs: %q vs %q", first, second)
	}
	if tmpl.Raw() != "Hello {name} of {company_name} ({sender_email})" {
		t.Errorf("template mutated by Render: %q", tmpl.Raw())
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	got := New("Hi {sender_email} and {name} {unknown}").Tokens()
	want := []string{TokenName, TokenSenderEmail}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens(): got %v, want %v", got, want)
	}
	if got := New("plain").Tokens(); len(got) != 0 {
		t.Errorf("Tokens(): got %v, want none", got)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mail.txt")
	if err := os.WriteFile(path, []byte("Hi {name}\n"), 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	tmpl, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tmpl.Render(Values{Name: "Ana"}); got != "Hi Ana\n" {
		t.Errorf("Render(): got %q, want %q", got, "Hi Ana\n")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/mail.txt")
	if err == nil {
		t.Error("expected error for missing template, got nil")
	}
}
