// Package main is the entry point for the local capture SMTP server. It
// accepts what the mail-merge dispatcher sends and logs every message instead
// of delivering it.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/mail-merge-lite/internal/config"
	"github.com/shineum/mail-merge-lite/internal/email"
	"github.com/shineum/mail-merge-lite/internal/sink"
	smtptls "github.com/shineum/mail-merge-lite/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a .env file, ignored if missing")
	listen := flag.String("listen", "", "listen address (overrides SINK_LISTEN)")
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
	if *listen != "" {
		cfg.Sink.Listen = *listen
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	// Load or generate TLS certificates
	tlsConfig, err := smtptls.ServerConfig(cfg.Sink.CertFile, cfg.Sink.KeyFile)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	tlsMode := "self-signed"
	if cfg.Sink.CertFile != "" && cfg.Sink.KeyFile != "" {
		tlsMode = "file"
	}

	server := sink.New(sink.Config{
		Hostname:  "localhost",
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		TLSConfig: tlsConfig,
		Handler:   logMessage,
	})

	slog.Info("starting smtp-sink",
		"listen", cfg.Sink.Listen,
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
	)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Start the server (blocks until context is cancelled)
	if err := server.ListenAndServe(ctx, cfg.Sink.Listen); err != nil {
		slog.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}

	slog.Info("smtp-sink stopped")
}

// logMessage is the sink handler: it records the envelope and content of
// each accepted message.
func logMessage(_ context.Context, msg *email.Received) error {
	slog.Info("message captured",
		"message_id", msg.MessageID,
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"content_type", msg.ContentType,
		"body_bytes", len(msg.TextBody),
	)
	slog.Debug("message body", "message_id", msg.MessageID, "body", msg.TextBody)
	return nil
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
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
}
