// Package config provides environment-variable-first configuration loading
// with optional .env and YAML file layers for the mail-merge tools.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// implicitTLSPort is the SMTPS port; dialing it defaults to implicit TLS.
const implicitTLSPort = 465

// DefaultDisplayName is the sender display name when none is configured.
const DefaultDisplayName = "Sender"

// Transport names accepted by TRANSPORT.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportGraph  = "graph"
	TransportResend = "resend"
	TransportStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Transport string        `yaml:"transport" env:"TRANSPORT"`
	SMTP      SMTPConfig    `yaml:"smtp"`
	Sender    SenderConfig  `yaml:"sender"`
	SES       SESConfig     `yaml:"ses"`
	Graph     GraphConfig   `yaml:"graph"`
	Resend    ResendConfig  `yaml:"resend"`
	Input     InputConfig   `yaml:"input"`
	Sink      SinkConfig    `yaml:"sink"`
	Logging   LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the relay the smtp transport submits to. Username and
// Password are also the credentials the capture sink accepts.
type SMTPConfig struct {
	Host        string `yaml:"host" env:"SMTP_HOST" validate:"required"`
	Port        int    `yaml:"port" env:"SMTP_PORT" validate:"min=1,max=65535"`
	Username    string `yaml:"username" env:"SMTP_USERNAME" validate:"required"`
	Password    string `yaml:"password" env:"SMTP_PASSWORD" validate:"required"`
	ImplicitTLS *bool  `yaml:"implicit_tls" env:"SMTP_IMPLICIT_TLS"`
	CAFile      string `yaml:"ca_file" env:"SMTP_CA_FILE"`
	SkipVerify  bool   `yaml:"tls_skip_verify" env:"SMTP_TLS_SKIP_VERIFY"`
}

// UseImplicitTLS reports whether to dial with TLS from the first byte.
// Unless set explicitly, it is true only for port 465.
func (s SMTPConfig) UseImplicitTLS() bool {
	if s.ImplicitTLS != nil {
		return *s.ImplicitTLS
	}
	return s.Port == implicitTLSPort
}

// SenderConfig is the From identity of every message.
type SenderConfig struct {
	FromEmail   string `yaml:"from_email" env:"FROM_EMAIL" validate:"required"`
	DisplayName string `yaml:"display_name" env:"DISPLAY_NAME"`
}

// SESConfig holds AWS SES v2 configuration. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region          string `yaml:"region" env:"SES_REGION" validate:"required"`
	AccessKeyID     string `yaml:"access_key_id" env:"SES_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SES_SECRET_ACCESS_KEY"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id" env:"GRAPH_TENANT_ID" validate:"required"`
	ClientID     string `yaml:"client_id" env:"GRAPH_CLIENT_ID" validate:"required"`
	ClientSecret string `yaml:"client_secret" env:"GRAPH_CLIENT_SECRET" validate:"required"`
}

// ResendConfig holds the Resend API key.
type ResendConfig struct {
	APIKey string `yaml:"api_key" env:"RESEND_API_KEY" validate:"required"`
}

// InputConfig holds the campaign input files.
type InputConfig struct {
	RecipientsFile string `yaml:"recipients_file" env:"RECIPIENTS_FILE" validate:"required"`
	TemplateFile   string `yaml:"template_file" env:"TEMPLATE_FILE" validate:"required"`
}

// SinkConfig holds the capture sink listener.
type SinkConfig struct {
	Listen   string `yaml:"listen" env:"SINK_LISTEN"`
	CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"oneof=json text"`
}

// LoadDotEnv exports the variables of a .env file into the process
// environment. Variables already set are left alone, and a missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	cfg.fillBlanks()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()
	cfg.fillBlanks()

	return cfg, nil
}

// AuthEnabled returns true if either SMTP credential is set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" || c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Transport = TransportSMTP
	c.SMTP.Port = implicitTLSPort
	c.Sender.DisplayName = DefaultDisplayName
	c.Input.RecipientsFile = "data.csv"
	c.Input.TemplateFile = "mail.txt"
	c.Sink.Listen = "127.0.0.1:2525"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// fillBlanks restores defaults that a YAML file set to an empty value.
func (c *Config) fillBlanks() {
	if strings.TrimSpace(c.Sender.DisplayName) == "" {
		c.Sender.DisplayName = DefaultDisplayName
	}
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values; values that
// fail to parse are ignored.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_IMPLICIT_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.ImplicitTLS = &b
		}
	}
	if v := os.Getenv("SMTP_CA_FILE"); v != "" {
		c.SMTP.CAFile = v
	}
	if v := os.Getenv("SMTP_TLS_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.SkipVerify = b
		}
	}

	if v := os.Getenv("FROM_EMAIL"); v != "" {
		c.Sender.FromEmail = v
	}
	if v := os.Getenv("DISPLAY_NAME"); v != "" {
		c.Sender.DisplayName = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}

	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Resend.APIKey = v
	}

	if v := os.Getenv("RECIPIENTS_FILE"); v != "" {
		c.Input.RecipientsFile = v
	}
	if v := os.Getenv("TEMPLATE_FILE"); v != "" {
		c.Input.TemplateFile = v
	}

	if v := os.Getenv("SINK_LISTEN"); v != "" {
		c.Sink.Listen = v
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.Sink.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.Sink.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}
