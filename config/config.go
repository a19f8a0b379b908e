// Package config provides YAML configuration parsing for playerwatch.
//
// Example configuration:
//
//	log_level: info
//	interval: 2m
//	state_file: player_state.toml
//
//	page:
//	  url_template: https://www.battlemetrics.com/players/{id}
//	  settle_delay: 7s
//
//	extractor:
//	  server_label: Current Server
//	  last_seen_label: Last Seen
//	  placeholders: [Not online]
//
//	telegram:
//	  token: ${TELEGRAM_TOKEN}
//	  chat_id: 123456789
//
//	api:
//	  addr: 127.0.0.1:8080
//
// Every key is optional. TELEGRAM_TOKEN and TELEGRAM_CHAT_ID, when set in
// the environment (or a .env file, see [LoadEnvFile]), override the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/internal/fetcher"
	"github.com/jpalmerr/playerwatch/internal/telegram"
)

// minInterval is the minimum allowed check interval. Each check launches a
// browser.
const minInterval = 10 * time.Second

// DefaultStateFile is where the identifier and language are persisted.
const DefaultStateFile = "player_state.toml"

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Interval is the time between checks. Defaults to 2m.
	Interval Duration `yaml:"interval"`

	// FirstCheckDelay is the wait before the first check after a start.
	// Defaults to 1s.
	FirstCheckDelay Duration `yaml:"first_check_delay"`

	// CheckTimeout bounds one fetch. Defaults to 90s.
	CheckTimeout Duration `yaml:"check_timeout"`

	// Autostart arms monitoring at startup when an identifier is stored.
	Autostart bool `yaml:"autostart"`

	// StateFile is the settings file path.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	StateFile string `yaml:"state_file"`

	Page      PageConfig      `yaml:"page"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	API       APIConfig       `yaml:"api"`
}

// PageConfig configures the headless browser that renders profile pages.
type PageConfig struct {
	// URLTemplate is the profile URL with {id} where the player id goes.
	URLTemplate string `yaml:"url_template"`

	// SettleDelay is the wait after page load for client-side rendering.
	SettleDelay Duration `yaml:"settle_delay"`

	// BrowserBin is the Chromium binary. Empty auto-detects.
	BrowserBin string `yaml:"browser_bin"`

	UserAgent string `yaml:"user_agent"`
	Headless  bool   `yaml:"headless"`
}

// ExtractorConfig names the page labels the status is read from.
type ExtractorConfig struct {
	ServerLabel   string `yaml:"server_label"`
	LastSeenLabel string `yaml:"last_seen_label"`

	// Placeholders are server texts that mean "not online". An empty list
	// disables placeholder filtering.
	Placeholders []string `yaml:"placeholders"`
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	// Token is the bot token. Supports environment variable substitution.
	Token string `yaml:"token"`

	// ChatID is the destination chat for notifications.
	ChatID int64 `yaml:"chat_id"`

	// RequestTimeout bounds each Bot API request. Defaults to 60s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// RestrictToChat ignores commands from any other chat. Defaults to true.
	RestrictToChat bool `yaml:"restrict_to_chat"`
}

// APIConfig configures the HTTP control API.
type APIConfig struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `yaml:"addr"`

	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string `yaml:"cors_origins"`
}

// envOverrides are read from the process environment after the file.
type envOverrides struct {
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string such as "2m0s".
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used for absent keys.
func Default() Config {
	return Config{
		LogLevel:        "info",
		Interval:        Duration(2 * time.Minute),
		FirstCheckDelay: Duration(time.Second),
		CheckTimeout:    Duration(90 * time.Second),
		StateFile:       DefaultStateFile,
		Page: PageConfig{
			URLTemplate: fetcher.DefaultURLTemplate,
			SettleDelay: Duration(fetcher.DefaultSettleDelay),
			UserAgent:   fetcher.DefaultUserAgent,
			Headless:    true,
		},
		Extractor: ExtractorConfig{
			ServerLabel:   playerwatch.DefaultServerLabel,
			LastSeenLabel: playerwatch.DefaultLastSeenLabel,
			Placeholders:  []string{playerwatch.DefaultPlaceholder},
		},
		Telegram: TelegramConfig{
			RequestTimeout: Duration(telegram.DefaultRequestTimeout),
			RestrictToChat: true,
		},
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// LoadEnvFile loads KEY=value lines from path into the process environment.
// Variables that are already set keep their value. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a YAML configuration file. A missing file yields
// the defaults, still subject to environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = nil
	}
	return Parse(data)
}

// Parse parses YAML configuration data on top of [Default].
//
// Environment variables are expanded in string values that document
// support for it, then TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) expand() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"state_file", &c.StateFile},
		{"page.url_template", &c.Page.URLTemplate},
		{"page.browser_bin", &c.Page.BrowserBin},
		{"telegram.token", &c.Telegram.Token},
		{"api.addr", &c.API.Addr},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if env.TelegramToken != "" {
		c.Telegram.Token = env.TelegramToken
	}
	if env.TelegramChatID != 0 {
		c.Telegram.ChatID = env.TelegramChatID
	}
	return nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.FirstCheckDelay.Duration() < 0 {
		return fmt.Errorf("first_check_delay cannot be negative, got %s", c.FirstCheckDelay.Duration())
	}
	if c.CheckTimeout.Duration() < time.Second {
		return fmt.Errorf("check_timeout must be at least 1s, got %s", c.CheckTimeout.Duration())
	}
	if strings.TrimSpace(c.StateFile) == "" {
		return errors.New("state_file is required")
	}

	if err := c.Page.validate(); err != nil {
		return fmt.Errorf("page: %w", err)
	}

	if strings.TrimSpace(c.Extractor.ServerLabel) == "" {
		return errors.New("extractor: server_label is required")
	}
	if strings.TrimSpace(c.Extractor.LastSeenLabel) == "" {
		return errors.New("extractor: last_seen_label is required")
	}

	if c.Telegram.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("telegram: request_timeout must be at least 1s, got %s", c.Telegram.RequestTimeout.Duration())
	}

	if c.API.Addr != "" {
		if _, _, err := net.SplitHostPort(c.API.Addr); err != nil {
			return fmt.Errorf("api: invalid addr %q: %w", c.API.Addr, err)
		}
	}

	return nil
}

func (p *PageConfig) validate() error {
	if !strings.Contains(p.URLTemplate, fetcher.IDPlaceholder) {
		return fmt.Errorf("url_template must contain %s", fetcher.IDPlaceholder)
	}
	parsedURL, err := url.Parse(strings.ReplaceAll(p.URLTemplate, fetcher.IDPlaceholder, "0"))
	if err != nil {
		return fmt.Errorf("invalid url_template: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url_template scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if p.SettleDelay.Duration() < 0 {
		return fmt.Errorf("settle_delay cannot be negative, got %s", p.SettleDelay.Duration())
	}
	return nil
}

// RequireTelegram reports whether the chat transport is fully configured.
// The run command needs it; check and validate do not.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is not set (telegram.token or TELEGRAM_TOKEN)")
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram chat id is not set (telegram.chat_id or TELEGRAM_CHAT_ID)")
	}
	return nil
}
