// Package fetcher renders player pages in a headless Chromium and returns
// their definition-list entries as label/text pairs.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jpalmerr/playerwatch"
)

const (
	// IDPlaceholder is replaced by the escaped identifier in URL templates.
	IDPlaceholder = "{id}"

	DefaultURLTemplate = "https://www.battlemetrics.com/players/" + IDPlaceholder
	DefaultSettleDelay = 7 * time.Second
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
)

// browserCandidates are probed in order when no binary is configured.
var browserCandidates = []string{
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
}

// collectPairsJS returns every dt with the text of its following dd sibling,
// serialized as a JSON array string.
const collectPairsJS = `() => JSON.stringify(Array.from(document.querySelectorAll("dt")).map((dt) => {
	let dd = dt.nextElementSibling;
	while (dd && dd.tagName !== "DD") {
		dd = dd.nextElementSibling;
	}
	return { label: (dt.innerText || "").trim(), text: dd ? (dd.innerText || "").trim() : "" };
}))`

// Config configures a [Fetcher].
type Config struct {
	// URLTemplate is the page URL with [IDPlaceholder] where the identifier
	// goes.
	URLTemplate string

	// SettleDelay is how long to wait after the load event for client-side
	// rendering to fill in the profile.
	SettleDelay time.Duration

	// BrowserBin is the Chromium binary. Empty probes well-known paths, then
	// rod's own lookup, then lets rod download a browser.
	BrowserBin string

	UserAgent string
	Headless  bool
}

// Fetcher implements playerwatch.PageFetcher with go-rod. Each Fetch
// launches a fresh browser and tears it down afterwards, so a wedged
// renderer never outlives one check.
type Fetcher struct {
	cfg    Config
	bin    string
	logger *slog.Logger
}

// New validates cfg and resolves the browser binary.
func New(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if !strings.Contains(cfg.URLTemplate, IDPlaceholder) {
		return nil, fmt.Errorf("url template %q must contain %s", cfg.URLTemplate, IDPlaceholder)
	}
	if _, err := url.Parse(strings.ReplaceAll(cfg.URLTemplate, IDPlaceholder, "0")); err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}
	if cfg.SettleDelay < 0 {
		return nil, errors.New("settle delay cannot be negative")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		cfg:    cfg,
		bin:    resolveBrowser(cfg.BrowserBin, browserCandidates),
		logger: logger,
	}, nil
}

// PageURL returns the page address for id.
func (f *Fetcher) PageURL(id string) string {
	return strings.ReplaceAll(f.cfg.URLTemplate, IDPlaceholder, url.PathEscape(id))
}

// Fetch renders the page of id and returns its dt/dd pairs in page order.
func (f *Fetcher) Fetch(ctx context.Context, id string) (playerwatch.Fields, error) {
	pageURL := f.PageURL(id)
	start := time.Now()
	f.logger.Debug("fetching page", "url", pageURL, "browser", f.bin)

	l := f.launcher(ctx)
	defer l.Cleanup()
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			f.logger.Debug("closing browser", "error", err.Error())
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", pageURL, err)
	}

	if err := sleepCtx(ctx, f.cfg.SettleDelay); err != nil {
		return nil, err
	}

	res, err := page.Eval(collectPairsJS)
	if err != nil {
		return nil, fmt.Errorf("reading page fields: %w", err)
	}
	fields, err := parsePairs(res.Value.Str())
	if err != nil {
		return nil, err
	}

	f.logger.Debug("page fetched",
		"url", pageURL,
		"fields", len(fields),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

func (f *Fetcher) launcher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(f.cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("window-size", "1920,1080").
		Set(flags.Flag("user-agent"), f.cfg.UserAgent)
	if f.bin != "" {
		l = l.Bin(f.bin)
	}
	return l
}

type pair struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// parsePairs decodes the JSON produced by collectPairsJS. Entries without a
// label are dropped.
func parsePairs(raw string) (playerwatch.Fields, error) {
	var pairs []pair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, fmt.Errorf("decoding page fields: %w", err)
	}

	fields := make(playerwatch.Fields, 0, len(pairs))
	for _, p := range pairs {
		label := strings.TrimSpace(p.Label)
		if label == "" {
			continue
		}
		fields = append(fields, playerwatch.Field{Label: label, Text: strings.TrimSpace(p.Text)})
	}
	return fields, nil
}

// resolveBrowser picks the configured binary, else the first existing
// candidate, else whatever rod finds on the system. Empty means rod will
// download its own browser.
func resolveBrowser(configured string, candidates []string) string {
	if configured != "" {
		return configured
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	if found, ok := launcher.LookPath(); ok {
		return found
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
