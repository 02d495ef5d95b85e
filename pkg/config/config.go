package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"wagate/pkg/client"
	"wagate/pkg/whatsapp"
)

const (
	envConfigPath = "WAGATE_CONFIG"
	envEnvFile    = "WAGATE_ENV_FILE"

	defaultEnvFile         = ".env"
	defaultWebhookHost     = "0.0.0.0"
	defaultWebhookPort     = 5000
	defaultWebhookPath     = "/webhook"
	defaultDedupTTL        = 300
	defaultQueueSize       = 100
	defaultMaxBodyBytes    = 16 << 20
	defaultQRPath          = "qrcode.png"
	defaultRecentWindow    = 60
	defaultTimeout         = 10
	defaultDownloadTimeout = 15
	defaultPollInterval    = 1
	defaultWaitTimeout     = 60
	defaultLogFormat       = "text"
	defaultLogLevel        = "info"
)

// Config is the root runtime configuration. Sources in increasing precedence:
// built-in defaults, config.json, .env, the process environment.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Webhook WebhookConfig `json:"webhook"`
	QR      QRConfig      `json:"qr"`
	Media   MediaConfig   `json:"media"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" env:"WAGATE_LOG_FORMAT"`
	Level     string `json:"level,omitempty" env:"WAGATE_LOG_LEVEL"`
	AddSource bool   `json:"add_source,omitempty" env:"WAGATE_LOG_ADD_SOURCE"`

	// Redact lists attribute keys masked on top of the built-in credential keys.
	Redact []string `json:"redact,omitempty" env:"WAGATE_LOG_REDACT" envSeparator:","`
}

// GatewayConfig addresses the WhatsApp gateway server and its session.
type GatewayConfig struct {
	Backend   string `json:"backend" env:"WPP_BACKEND"`
	APIURL    string `json:"api_url" env:"WPP_API_URL"`
	Session   string `json:"session" env:"WPP_SESSION"`
	Token     string `json:"token" env:"WPP_TOKEN"`
	SecretKey string `json:"secret_key" env:"WPP_SECRET_KEY"`

	TimeoutSeconds         float64 `json:"timeout_seconds" env:"WPP_TIMEOUT_SECONDS"`
	DownloadTimeoutSeconds float64 `json:"download_timeout_seconds" env:"WPP_DOWNLOAD_TIMEOUT_SECONDS"`
	PollIntervalSeconds    float64 `json:"poll_interval_seconds" env:"WPP_POLL_INTERVAL_SECONDS"`
	WaitTimeoutSeconds     float64 `json:"wait_timeout_seconds" env:"WPP_WAIT_TIMEOUT_SECONDS"`

	// AutoRegister defaults to true when unset.
	AutoRegister *bool `json:"auto_register,omitempty" env:"WPP_AUTO_REGISTER"`
}

// WebhookConfig configures the inbound listener and the URL registered with the gateway.
type WebhookConfig struct {
	Host          string `json:"host" env:"WEBHOOK_HOST"`
	Port          int    `json:"port" env:"WEBHOOK_PORT"`
	Path          string `json:"path" env:"WEBHOOK_PATH"`
	URL           string `json:"url" env:"WPP_WEBHOOK_URL"`
	IncludeFromMe bool   `json:"include_from_me" env:"WEBHOOK_INCLUDE_FROM_ME"`

	DedupTTLSeconds int   `json:"dedup_ttl_seconds" env:"WEBHOOK_DEDUP_TTL_SECONDS"`
	QueueSize       int   `json:"queue_size" env:"WEBHOOK_QUEUE_SIZE"`
	MaxBodyBytes    int64 `json:"max_body_bytes" env:"WEBHOOK_MAX_BODY_BYTES"`
}

// QRConfig controls where QR images go and whether they are opened.
type QRConfig struct {
	Path string `json:"path" env:"QR_PATH"`
	Open bool   `json:"open" env:"QR_OPEN"`
}

// MediaConfig configures the folder scanned for files to send.
type MediaConfig struct {
	Dir                 string `json:"dir" env:"WPP_FILES_DIR"`
	RecentWindowSeconds int    `json:"recent_window_seconds" env:"WPP_RECENT_WINDOW_SECONDS"`
}

// LoadConfig reads .env (without overriding the real environment), the optional
// config file, and environment overrides, then applies defaults and validates.
func LoadConfig() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var cfg Config

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EnvFile returns the .env path used for loading and saving credentials.
func EnvFile() string {
	if value := strings.TrimSpace(os.Getenv(envEnvFile)); value != "" {
		return value
	}

	return defaultEnvFile
}

func loadEnvFile() error {
	path := EnvFile()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	g := &c.Gateway
	if strings.TrimSpace(g.Backend) == "" {
		g.Backend = string(whatsapp.BackendWPPConnect)
	}
	g.APIURL = strings.TrimRight(strings.TrimSpace(g.APIURL), "/")
	if g.TimeoutSeconds == 0 {
		g.TimeoutSeconds = defaultTimeout
	}
	if g.DownloadTimeoutSeconds == 0 {
		g.DownloadTimeoutSeconds = defaultDownloadTimeout
	}
	if g.PollIntervalSeconds == 0 {
		g.PollIntervalSeconds = defaultPollInterval
	}
	if g.WaitTimeoutSeconds == 0 {
		g.WaitTimeoutSeconds = defaultWaitTimeout
	}

	l := &c.Logging
	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = defaultLogLevel
	}

	w := &c.Webhook
	if strings.TrimSpace(w.Host) == "" {
		w.Host = defaultWebhookHost
	}
	if w.Port == 0 {
		w.Port = defaultWebhookPort
	}
	if strings.TrimSpace(w.Path) == "" {
		w.Path = defaultWebhookPath
	}
	if !strings.HasPrefix(w.Path, "/") {
		w.Path = "/" + w.Path
	}
	if w.DedupTTLSeconds == 0 {
		w.DedupTTLSeconds = defaultDedupTTL
	}
	if w.QueueSize == 0 {
		w.QueueSize = defaultQueueSize
	}
	if w.MaxBodyBytes == 0 {
		w.MaxBodyBytes = defaultMaxBodyBytes
	}

	if strings.TrimSpace(c.QR.Path) == "" {
		c.QR.Path = defaultQRPath
	}
	if strings.TrimSpace(c.Media.Dir) == "" {
		c.Media.Dir = "files"
	}
	if c.Media.RecentWindowSeconds == 0 {
		c.Media.RecentWindowSeconds = defaultRecentWindow
	}
}

// Validate checks structural settings. Gateway addressing is checked separately
// by RequireGateway since the listener can run without it.
func (c *Config) Validate() error {
	if _, ok := whatsapp.ParseBackend(c.Gateway.Backend); !ok {
		return fmt.Errorf("unsupported backend %q (want wppconnect or wwebjs)", c.Gateway.Backend)
	}
	if c.Gateway.TimeoutSeconds < 0 || c.Gateway.DownloadTimeoutSeconds < 0 {
		return errors.New("gateway timeouts must be positive")
	}
	if c.Gateway.PollIntervalSeconds < 0 || c.Gateway.WaitTimeoutSeconds < 0 {
		return errors.New("gateway poll interval and wait timeout must be positive")
	}
	if c.Webhook.Port < 1 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook port %d out of range", c.Webhook.Port)
	}
	if c.Webhook.QueueSize < 0 || c.Webhook.DedupTTLSeconds < 0 || c.Webhook.MaxBodyBytes < 0 {
		return errors.New("webhook queue size, dedup ttl and body limit must be positive")
	}
	switch c.Logging.Format {
	case "text", "logfmt", "json":
	default:
		return fmt.Errorf("unsupported log format %q (want text, logfmt or json)", c.Logging.Format)
	}

	return nil
}

// RequireGateway reports missing settings needed to talk to the gateway.
func (c *Config) RequireGateway() error {
	var missing []string
	if c.Gateway.APIURL == "" {
		missing = append(missing, "WPP_API_URL")
	}
	if strings.TrimSpace(c.Gateway.Session) == "" {
		missing = append(missing, "WPP_SESSION")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing gateway settings: %s", strings.Join(missing, ", "))
	}

	return nil
}

// BackendKind returns the parsed backend; Validate guarantees it parses.
func (g GatewayConfig) BackendKind() whatsapp.Backend {
	kind, _ := whatsapp.ParseBackend(g.Backend)
	return kind
}

// ShouldAutoRegister resolves the AutoRegister default.
func (g GatewayConfig) ShouldAutoRegister() bool {
	return g.AutoRegister == nil || *g.AutoRegister
}

func (g GatewayConfig) PollInterval() time.Duration {
	return seconds(g.PollIntervalSeconds)
}

func (g GatewayConfig) WaitTimeout() time.Duration {
	return seconds(g.WaitTimeoutSeconds)
}

// ClientOptions maps gateway settings onto client construction options.
func (g GatewayConfig) ClientOptions() client.Options {
	return client.Options{
		Backend:         g.BackendKind(),
		APIURL:          g.APIURL,
		Session:         g.Session,
		Token:           g.Token,
		SecretKey:       g.SecretKey,
		Timeout:         seconds(g.TimeoutSeconds),
		DownloadTimeout: seconds(g.DownloadTimeoutSeconds),
	}
}

// Addr is the listener bind address.
func (w WebhookConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

func (w WebhookConfig) DedupTTL() time.Duration {
	return time.Duration(w.DedupTTLSeconds) * time.Second
}

func (m MediaConfig) RecentWindow() time.Duration {
	return time.Duration(m.RecentWindowSeconds) * time.Second
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

// findConfigPath resolves the optional config file location.
//
// Precedence is WAGATE_CONFIG first, then cwd-local fallback paths. An empty
// result means no file is present.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
