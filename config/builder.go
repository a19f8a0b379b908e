package config

import (
	"log/slog"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/internal/fetcher"
	"github.com/jpalmerr/playerwatch/internal/server"
	"github.com/jpalmerr/playerwatch/internal/telegram"
)

// BuildMonitorOptions converts parsed configuration into monitor options.
//
// ids may be nil, in which case the monitor keeps its identifier in memory
// only.
func BuildMonitorOptions(cfg *Config, ids playerwatch.IdentifierStore, logger *slog.Logger) []playerwatch.Option {
	opts := []playerwatch.Option{
		playerwatch.WithInterval(cfg.Interval.Duration()),
		playerwatch.WithFirstCheckDelay(cfg.FirstCheckDelay.Duration()),
		playerwatch.WithCheckTimeout(cfg.CheckTimeout.Duration()),
		playerwatch.WithExtractor(BuildExtractor(cfg)),
	}
	if ids != nil {
		opts = append(opts, playerwatch.WithIdentifierStore(ids))
	}
	if logger != nil {
		opts = append(opts, playerwatch.WithLogger(logger))
	}
	return opts
}

// BuildExtractor returns the label extractor described by cfg.
func BuildExtractor(cfg *Config) playerwatch.StatusExtractor {
	return playerwatch.LabelExtractor(playerwatch.ExtractorConfig{
		ServerLabel:   cfg.Extractor.ServerLabel,
		LastSeenLabel: cfg.Extractor.LastSeenLabel,
		Placeholders:  cfg.Extractor.Placeholders,
	})
}

// BuildFetcherConfig returns the page renderer settings.
func BuildFetcherConfig(cfg *Config) fetcher.Config {
	return fetcher.Config{
		URLTemplate: cfg.Page.URLTemplate,
		SettleDelay: cfg.Page.SettleDelay.Duration(),
		BrowserBin:  cfg.Page.BrowserBin,
		UserAgent:   cfg.Page.UserAgent,
		Headless:    cfg.Page.Headless,
	}
}

// BuildTelegramConfig returns the bot settings. Call [Config.RequireTelegram]
// first; the bot rejects an empty token or chat id.
func BuildTelegramConfig(cfg *Config) telegram.Config {
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		ChatID:         cfg.Telegram.ChatID,
		RequestTimeout: cfg.Telegram.RequestTimeout.Duration(),
	}
}

// BuildGatewayConfig returns the command gateway settings.
func BuildGatewayConfig(cfg *Config) telegram.GatewayConfig {
	return telegram.GatewayConfig{RestrictToChat: cfg.Telegram.RestrictToChat}
}

// BuildServerConfig returns the HTTP API settings. The API is disabled
// when the second result is false.
func BuildServerConfig(cfg *Config, version string) (server.Config, bool) {
	if cfg.API.Addr == "" {
		return server.Config{}, false
	}
	return server.Config{
		Addr:        cfg.API.Addr,
		CORSOrigins: cfg.API.CORSOrigins,
		Version:     version,
	}, true
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
