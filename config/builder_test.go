package config

import (
	"context"
	"testing"
	"time"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/internal/fetcher"
)

type memoryIDs struct {
	id string
}

func (m *memoryIDs) LoadIdentifier() (string, bool, error) { return m.id, m.id != "", nil }
func (m *memoryIDs) SaveIdentifier(id string) error       { m.id = id; return nil }

func TestBuildMonitorOptions(t *testing.T) {
	cfg := Default()
	cfg.Extractor.ServerLabel = "Server"
	ids := &memoryIDs{id: "100"}

	fetch := playerwatch.PageFetcherFunc(func(context.Context, string) (playerwatch.Fields, error) {
		return playerwatch.Fields{{Label: "Server", Text: "Rust EU"}}, nil
	})
	notify := playerwatch.NotifierFunc(func(context.Context, string) error { return nil })

	m, err := playerwatch.New(fetch, notify, BuildMonitorOptions(&cfg, ids, nil)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	if id, ok := m.Identifier(); !ok || id != "100" {
		t.Errorf("Identifier() = %q, %v; want loaded 100", id, ok)
	}

	// the configured label drives extraction
	status, err := m.Probe(context.Background(), "100")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if status != playerwatch.Online("Rust EU") {
		t.Errorf("Probe() = %v, want Online (Rust EU)", status)
	}
}

func TestBuildMonitorOptions_InvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.CheckTimeout = 0

	_, err := playerwatch.New(
		playerwatch.PageFetcherFunc(func(context.Context, string) (playerwatch.Fields, error) { return nil, nil }),
		playerwatch.NotifierFunc(func(context.Context, string) error { return nil }),
		BuildMonitorOptions(&cfg, nil, nil)...,
	)
	if err == nil {
		t.Fatal("New() should reject a zero check timeout")
	}
}

func TestBuildExtractor_Placeholders(t *testing.T) {
	fields := playerwatch.Fields{{Label: "Current Server", Text: "Not online"}}

	cfg := Default()
	if got := BuildExtractor(&cfg)(fields); got != playerwatch.Offline() {
		t.Errorf("default placeholders: got %v, want Offline", got)
	}

	cfg.Extractor.Placeholders = []string{}
	if got := BuildExtractor(&cfg)(fields); got != playerwatch.Online("Not online") {
		t.Errorf("disabled placeholders: got %v, want Online (Not online)", got)
	}
}

func TestBuildFetcherConfig(t *testing.T) {
	cfg := Default()
	cfg.Page.SettleDelay = Duration(2 * time.Second)
	cfg.Page.BrowserBin = "/opt/chromium"

	fc := BuildFetcherConfig(&cfg)

	want := fetcher.Config{
		URLTemplate: fetcher.DefaultURLTemplate,
		SettleDelay: 2 * time.Second,
		BrowserBin:  "/opt/chromium",
		UserAgent:   fetcher.DefaultUserAgent,
		Headless:    true,
	}
	if fc != want {
		t.Errorf("BuildFetcherConfig() = %+v, want %+v", fc, want)
	}
	if _, err := fetcher.New(fc, nil); err != nil {
		t.Errorf("fetcher.New() rejected built config: %v", err)
	}
}

func TestBuildTelegramConfig(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Token = "1:a"
	cfg.Telegram.ChatID = 42
	cfg.Telegram.RestrictToChat = false

	tc := BuildTelegramConfig(&cfg)
	if tc.Token != "1:a" || tc.ChatID != 42 || tc.RequestTimeout != 60*time.Second {
		t.Errorf("BuildTelegramConfig() = %+v", tc)
	}
	if BuildGatewayConfig(&cfg).RestrictToChat {
		t.Error("BuildGatewayConfig() should carry restrict_to_chat: false")
	}
}

func TestBuildServerConfig(t *testing.T) {
	cfg := Default()
	if _, ok := BuildServerConfig(&cfg, "v1"); ok {
		t.Error("API should be disabled without an addr")
	}

	cfg.API.Addr = ":8080"
	cfg.API.CORSOrigins = []string{"*"}
	sc, ok := BuildServerConfig(&cfg, "v1")
	if !ok {
		t.Fatal("API should be enabled with an addr")
	}
	if sc.Addr != ":8080" || sc.Version != "v1" || len(sc.CORSOrigins) != 1 {
		t.Errorf("BuildServerConfig() = %+v", sc)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]string{
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
	}
	for level, want := range tests {
		cfg := Config{LogLevel: level}
		if got := cfg.SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", level, got, want)
		}
	}
}
