// Package ses implements a Transport that sends emails via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/transport"
)

// charset is declared on every content block.
const charset = "UTF-8"

// errSendingDisabled is returned by Dial when the account cannot send.
var errSendingDisabled = errors.New("sending is disabled for this SES account")

// Config holds the configuration for creating an SES Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// API is the subset of the SES v2 client used by the transport.
// Used for testing with mock implementations.
type API interface {
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for account and delivery details.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport sends through the SES v2 API.
type Transport struct {
	client API
	logger *slog.Logger
}

// New creates an SES Transport. Static credentials are used when both keys
// are set, otherwise the default AWS credential chain applies. SDK retries
// are disabled.
func New(ctx context.Context, cfg Config, opts ...Option) (*Transport, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error

	loadOpts = append(loadOpts,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	)

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(sesv2.NewFromConfig(awsCfg), opts...), nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(client API, opts ...Option) *Transport {
	t := &Transport{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dial checks the credentials by reading the account's sending status.
func (t *Transport) Dial(ctx context.Context) (transport.Session, error) {
	out, err := t.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return nil, fmt.Errorf("%w: ses: %v", transport.ErrAuthentication, err)
	}
	if !out.SendingEnabled {
		return nil, fmt.Errorf("%w: %v", transport.ErrAuthentication, errSendingDisabled)
	}

	t.logger.Debug("SES account ready",
		"production_access", out.ProductionAccessEnabled,
	)

	return &session{client: t.client, logger: t.logger}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

type session struct {
	client API
	logger *slog.Logger
}

// Send issues one SendEmail call. The client is built with a single attempt,
// so throttling errors are returned as is.
func (s *session) Send(ctx context.Context, msg *email.Message) error {
	out, err := s.client.SendEmail(ctx, buildInput(msg))
	if err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}

	s.logger.Debug("SES accepted message",
		"to", msg.To.Address(),
		"ses_message_id", aws.ToString(out.MessageId),
	)
	return nil
}

func (s *session) Close() error {
	return nil
}

// buildInput creates a simple-content SendEmailInput.
func buildInput(msg *email.Message) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.String()),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To.String()},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String(charset),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(msg.Body),
						Charset: aws.String(charset),
					},
				},
			},
		},
	}
}
