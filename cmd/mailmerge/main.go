// Package main is the entry point for the mail-merge dispatcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/shineum/mail-merge-lite/internal/address"
	"github.com/shineum/mail-merge-lite/internal/config"
	"github.com/shineum/mail-merge-lite/internal/dispatch"
	"github.com/shineum/mail-merge-lite/internal/recipient"
	"github.com/shineum/mail-merge-lite/internal/render"
	"github.com/shineum/mail-merge-lite/internal/transport"
	"github.com/shineum/mail-merge-lite/internal/transport/graph"
	"github.com/shineum/mail-merge-lite/internal/transport/resend"
	"github.com/shineum/mail-merge-lite/internal/transport/ses"
	"github.com/shineum/mail-merge-lite/internal/transport/smtp"
	"github.com/shineum/mail-merge-lite/internal/transport/stdout"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a .env file, ignored if missing")
	recipientsFile := flag.String("recipients", "", "recipient CSV file (overrides RECIPIENTS_FILE)")
	templateFile := flag.String("template", "", "message template file (overrides TEMPLATE_FILE)")
	transportName := flag.String("transport", "", "smtp, ses, graph, resend or stdout (overrides TRANSPORT)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *recipientsFile != "" {
		cfg.Input.RecipientsFile = *recipientsFile
	}
	if *templateFile != "" {
		cfg.Input.TemplateFile = *templateFile
	}
	if *transportName != "" {
		cfg.Transport = *transportName
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		slog.Error("configuration rejected", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default().With("run_id", uuid.NewString())

	sum, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Error("mail merge aborted", "error", err,
			"total", sum.Total,
			"sent", sum.Sent,
			"skipped", sum.Skipped,
			"failed", sum.Failed,
		)
		stop()
		os.Exit(1)
	}

	logger.Info("mail merge finished",
		"total", sum.Total,
		"sent", sum.Sent,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
}

// run performs one campaign. Every error it returns happened before or
// instead of reaching the end of the recipient list.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Summary, error) {
	sender, err := address.Sender(cfg.Sender.DisplayName, cfg.Sender.FromEmail)
	if err != nil {
		return dispatch.Summary{}, fmt.Errorf("invalid FROM_EMAIL: %w", err)
	}
	logger.Info("sending as",
		"from", sender.Address(),
		"display_name", sender.Name(),
	)

	tmpl, err := render.Load(cfg.Input.TemplateFile)
	if err != nil {
		return dispatch.Summary{}, err
	}
	logger.Info("template loaded",
		"path", cfg.Input.TemplateFile,
		"tokens", tmpl.Tokens(),
	)

	src, err := recipient.Open(cfg.Input.RecipientsFile)
	if err != nil {
		return dispatch.Summary{}, err
	}
	defer src.Close()

	tr, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return dispatch.Summary{}, err
	}

	sess, err := tr.Dial(ctx)
	if err != nil {
		return dispatch.Summary{}, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close transport session", "error", err)
		}
	}()

	logger.Info("transport ready", "transport", tr.Name())

	d := dispatch.New(sess, tmpl, sender, dispatch.WithLogger(logger))
	return d.Run(ctx, src)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with the specified level,
// writing JSON unless format is "text".
func setupLogger(level, format string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// newTransport builds the delivery backend named by cfg.Transport.
func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		return smtp.New(smtp.Config{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			ImplicitTLS: cfg.SMTP.UseImplicitTLS(),
			CAFile:      cfg.SMTP.CAFile,
			SkipVerify:  cfg.SMTP.SkipVerify,
		}, smtp.WithLogger(logger))

	case config.TransportSES:
		return ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		}, ses.WithLogger(logger))

	case config.TransportGraph:
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
		}), nil

	case config.TransportResend:
		return resend.New(cfg.Resend.APIKey, resend.WithLogger(logger)), nil

	case config.TransportStdout:
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
