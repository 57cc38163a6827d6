// Package graph implements a Transport that sends emails via the Microsoft
// Graph API using OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/transport"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	tokenURLFormat  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope      = "https://graph.microsoft.com/.default"
)

// Config holds the app registration used to send mail.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Transport sends through the Graph sendMail endpoint.
type Transport struct {
	graphURL   string
	httpClient *http.Client
	oauth      *clientcredentials.Config
}

// New creates a Graph Transport. The token is acquired on Dial.
func New(cfg Config) *Transport {
	return newWithOverrides(cfg, defaultGraphURL, fmt.Sprintf(tokenURLFormat, cfg.TenantID), &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a Transport with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Transport {
	return &Transport{
		graphURL:   graphURL,
		httpClient: client,
		oauth: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

// Dial acquires an access token. The returned session refreshes it when it
// expires.
func (t *Transport) Dial(ctx context.Context) (transport.Session, error) {
	ctx = context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, t.httpClient)

	ts := t.oauth.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("%w: graph token: %v", transport.ErrAuthentication, err)
	}

	// oauth2.NewClient keeps only the base transport.
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = t.httpClient.Timeout

	return &session{
		graphURL: t.graphURL,
		client:   client,
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "msgraph"
}

type session struct {
	graphURL string
	client   *http.Client
}

// Send performs a single sendMail request for the message's sender.
func (s *session) Send(ctx context.Context, msg *email.Message) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", s.graphURL, url.PathEscape(msg.From.Address()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return &sendError{statusCode: resp.StatusCode, code: graphErrResp.Error.Code, message: graphErrResp.Error.Message}
	}
	return &sendError{statusCode: resp.StatusCode, message: string(body)}
}

func (s *session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// sendError is a non-2xx answer from the sendMail endpoint.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}
