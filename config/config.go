// Package config loads receiptd settings from an optional YAML file and
// RECEIPTS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/creastat/receipts"
)

// DefaultPath is read when no config path is given.
const DefaultPath = "receipts.yaml"

const envPrefix = "RECEIPTS_"

// Config is the service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Fetch     FetchConfig     `koanf:"fetch"`
	OCR       OCRConfig       `koanf:"ocr"`
	PDF       PDFConfig       `koanf:"pdf"`
	CAPI      CAPIConfig      `koanf:"capi"`
	Notify    NotifyConfig    `koanf:"notify"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	Timeout      time.Duration `koanf:"timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text, json, logfmt
	File   string `koanf:"file"`
}

// LedgerConfig selects and configures the session store.
type LedgerConfig struct {
	Driver          string       `koanf:"driver"` // memory, redis, sqlite
	ConflictRetries int          `koanf:"conflict_retries"`
	Redis           RedisConfig  `koanf:"redis"`
	SQLite          SQLiteConfig `koanf:"sqlite"`
}

// RedisConfig holds the redis driver settings.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// SQLiteConfig holds the sqlite driver settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// FetchConfig bounds attachment downloads.
type FetchConfig struct {
	Timeout      time.Duration `koanf:"timeout"`
	MaxBytes     int64         `koanf:"max_bytes"`
	BlockPrivate bool          `koanf:"block_private"`
}

// OCRConfig configures the vision model used for image receipts.
type OCRConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	Prompt  string        `koanf:"prompt"`
	Timeout time.Duration `koanf:"timeout"`
}

// PDFConfig bounds PDF text extraction.
type PDFConfig struct {
	MaxPages int `koanf:"max_pages"`
}

// CAPIConfig holds the Meta Conversions API credentials and event settings.
type CAPIConfig struct {
	PixelID       string        `koanf:"pixel_id"`
	AccessToken   string        `koanf:"access_token"`
	BaseURL       string        `koanf:"base_url"`
	APIVersion    string        `koanf:"api_version"`
	TestEventCode string        `koanf:"test_event_code"`
	EventPrefix   string        `koanf:"event_prefix"`
	ActionSource  string        `koanf:"action_source"`
	Timeout       time.Duration `koanf:"timeout"`
}

// NotifyConfig configures the reply webhook.
type NotifyConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// ArchiveConfig configures where finalized purchases are archived.
type ArchiveConfig struct {
	Supabase SupabaseConfig `koanf:"supabase"`
}

// SupabaseConfig holds the Supabase project URL and key.
type SupabaseConfig struct {
	URL    string `koanf:"url"`
	APIKey string `koanf:"api_key"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":             3000,
	"server.max_body_bytes":   int64(25 << 20),
	"server.timeout":          "60s",
	"log.level":               "info",
	"log.format":              "text",
	"ledger.driver":           "memory",
	"ledger.conflict_retries": 3,
	"ledger.redis.addr":       "localhost:6379",
	"ledger.redis.ttl":        "24h",
	"ledger.sqlite.path":      "data/receipts.db",
	"fetch.timeout":           "30s",
	"fetch.max_bytes":         int64(25 << 20),
	"fetch.block_private":     true,
	"ocr.model":               "gpt-4o-mini",
	"ocr.timeout":             "30s",
	"pdf.max_pages":           5,
	"capi.api_version":        "v19.0",
	"capi.event_prefix":       "kinbox-",
	"capi.action_source":      "customer_chat",
	"capi.timeout":            "20s",
	"notify.timeout":          "30s",
	"telemetry.service_name":  "receiptd",
}

// Variables the service read before it had a config file.
var legacyEnv = map[string]string{
	"capi.pixel_id":        "FB_PIXEL_ID",
	"capi.access_token":    "FB_CAPI_TOKEN",
	"capi.test_event_code": "FB_TEST_EVENT_CODE",
	"server.port":          "PORT",
	"ocr.api_key":          "OPENAI_API_KEY",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then RECEIPTS_ variables, where
// "__" separates levels: RECEIPTS_LEDGER__DRIVER=redis. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, name := range legacyEnv {
		if v := os.Getenv(name); v != "" && !k.Exists(key) {
			k.Set(key, v)
		}
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for _, s := range []*string{
		&cfg.Ledger.Redis.Password,
		&cfg.OCR.APIKey,
		&cfg.CAPI.AccessToken,
		&cfg.Notify.Token,
		&cfg.Archive.Supabase.APIKey,
	} {
		*s = substituteEnvVars(*s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values Load cannot default.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Ledger.Driver {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("ledger.driver %q: want memory, redis or sqlite", c.Ledger.Driver))
	}
	if c.Ledger.Driver == "redis" && c.Ledger.Redis.Addr == "" {
		errs = append(errs, errors.New("ledger.redis.addr is required"))
	}
	if c.Ledger.Driver == "sqlite" && c.Ledger.SQLite.Path == "" {
		errs = append(errs, errors.New("ledger.sqlite.path is required"))
	}
	if c.Ledger.ConflictRetries < 0 {
		errs = append(errs, errors.New("ledger.conflict_retries must not be negative"))
	}
	switch c.Log.Format {
	case "", "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text, json or logfmt", c.Log.Format))
	}
	if (c.Archive.Supabase.URL == "") != (c.Archive.Supabase.APIKey == "") {
		errs = append(errs, errors.New("archive.supabase needs both url and api_key"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", receipts.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ReportingEnabled reports whether conversion reports can be sent.
func (c *Config) ReportingEnabled() bool {
	return c.CAPI.PixelID != "" && c.CAPI.AccessToken != ""
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
