package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shineum/mail-merge-lite/internal/address"
	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/transport"
)

func testMessage(t *testing.T) *email.Message {
	t.Helper()
	from, err := address.Sender("Shop", "sales@shop.com")
	if err != nil {
		t.Fatalf("failed to parse sender: %v", err)
	}
	to, err := address.Parse("Ana <ana@x.com>")
	if err != nil {
		t.Fatalf("failed to parse recipient: %v", err)
	}
	msg, err := email.NewMessage(from, to, "Hello its Shop", "Hi Ana")
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	return msg
}

// newTokenServer issues "test-token" and counts requests.
func newTokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type: got %q, want %q", r.FormValue("grant_type"), "client_credentials")
		}
		if r.FormValue("client_id") != "test-client" {
			t.Errorf("client_id: got %q, want %q", r.FormValue("client_id"), "test-client")
		}
		if r.FormValue("scope") != graphScope {
			t.Errorf("scope: got %q, want %q", r.FormValue("scope"), graphScope)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() Config {
	return Config{TenantID: "test-tenant", ClientID: "test-client", ClientSecret: "test-secret"}
}

func TestBuildSendMailRequest(t *testing.T) {
	t.Parallel()

	req := buildSendMailRequest(testMessage(t))

	if req.Message.Subject != "Hello its Shop" {
		t.Errorf("Subject: got %q, want %q", req.Message.Subject, "Hello its Shop")
	}
	if req.Message.Body.ContentType != "text" {
		t.Errorf("Body.ContentType: got %q, want %q", req.Message.Body.ContentType, "text")
	}
	if req.Message.Body.Content != "Hi Ana" {
		t.Errorf("Body.Content: got %q, want %q", req.Message.Body.Content, "Hi Ana")
	}
	if len(req.Message.ToRecipients) != 1 {
		t.Fatalf("ToRecipients count: got %d, want 1", len(req.Message.ToRecipients))
	}
	got := req.Message.ToRecipients[0].EmailAddress
	if got.Address != "ana@x.com" || got.Name != "Ana" {
		t.Errorf("ToRecipients[0]: got %+v", got)
	}
	if req.SaveToSentItems {
		t.Error("SaveToSentItems: got true, want false")
	}
}

func TestTransport_Name(t *testing.T) {
	t.Parallel()

	if got := New(testConfig()).Name(); got != "msgraph" {
		t.Errorf("Name: got %q, want %q", got, "msgraph")
	}
}

func TestDial_TokenRejected(t *testing.T) {
	t.Parallel()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
	}))
	defer tokenServer.Close()

	tr := newWithOverrides(testConfig(), "http://unused.invalid", tokenServer.URL, tokenServer.Client())

	_, err := tr.Dial(context.Background())
	if !errors.Is(err, transport.ErrAuthentication) {
		t.Fatalf("Dial(): got %v, want ErrAuthentication", err)
	}
}

func TestSession_SendSuccess(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenServer := newTokenServer(t, &tokenCalls)

	var graphCalls atomic.Int32
	graphServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		graphCalls.Add(1)
		if r.URL.Path != "/users/sales@shop.com/sendMail" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization header: got %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type header: got %q, want %q", r.Header.Get("Content-Type"), "application/json")
		}

		var body sendMailRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body.Message.Subject != "Hello its Shop" {
			t.Errorf("Subject in body: got %q", body.Message.Subject)
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer graphServer.Close()

	tr := newWithOverrides(testConfig(), graphServer.URL, tokenServer.URL, graphServer.Client())

	sess, err := tr.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	defer sess.Close()

	for i := 0; i < 2; i++ {
		if err := sess.Send(context.Background(), testMessage(t)); err != nil {
			t.Fatalf("Send(): %v", err)
		}
	}

	if graphCalls.Load() != 2 {
		t.Errorf("graph call count: got %d, want 2", graphCalls.Load())
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token call count: got %d, want 1", tokenCalls.Load())
	}
}

func TestSession_SendHonorsClientTimeout(t *testing.T) {
	t.Parallel()

	tokenServer := newTokenServer(t, nil)

	graphServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer graphServer.Close()

	tr := newWithOverrides(testConfig(), graphServer.URL, tokenServer.URL, &http.Client{Timeout: 100 * time.Millisecond})

	sess, err := tr.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	defer sess.Close()

	if got := sess.(*session).client.Timeout; got != 100*time.Millisecond {
		t.Errorf("session client Timeout: got %v, want %v", got, 100*time.Millisecond)
	}

	start := time.Now()
	if err := sess.Send(context.Background(), testMessage(t)); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Send() took %v, want it bounded by the client timeout", elapsed)
	}
}

func TestSession_ErrorResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantSubstr string
	}{
		{
			name:       "graph error envelope",
			status:     http.StatusBadRequest,
			body:       `{"error":{"code":"ErrorInvalidRecipients","message":"Invalid recipient"}}`,
			wantSubstr: "Graph API error (HTTP 400, ErrorInvalidRecipients): Invalid recipient",
		},
		{
			name:       "plain body",
			status:     http.StatusServiceUnavailable,
			body:       "down",
			wantSubstr: "Graph API error (HTTP 503): down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tokenServer := newTokenServer(t, nil)

			var graphCalls atomic.Int32
			graphServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				graphCalls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer graphServer.Close()

			tr := newWithOverrides(testConfig(), graphServer.URL, tokenServer.URL, graphServer.Client())
			sess, err := tr.Dial(context.Background())
			if err != nil {
				t.Fatalf("Dial(): %v", err)
			}

			err = sess.Send(context.Background(), testMessage(t))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error: got %q, want to contain %q", err.Error(), tt.wantSubstr)
			}
			var sendErr *sendError
			if !errors.As(err, &sendErr) || sendErr.statusCode != tt.status {
				t.Errorf("expected *sendError with status %d, got %T", tt.status, err)
			}
			if graphCalls.Load() != 1 {
				t.Errorf("graph call count: got %d, want 1", graphCalls.Load())
			}
		})
	}
}
