// Package command turns operator chat commands into monitor operations and
// renders the replies.
//
// The dispatcher never runs a check inline: every command only touches the
// monitor's register or arms/disarms the periodic job, so it stays
// responsive while a page is being rendered.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpalmerr/playerwatch"
	"github.com/jpalmerr/playerwatch/internal/settings"
)

// Controller is the monitor surface the commands drive.
type Controller interface {
	Start() error
	Stop() error
	SetIdentifier(id string) (string, error)
	Report() playerwatch.Report
}

// LanguageStore stores the operator's language preference.
type LanguageStore interface {
	Language() string
	SaveLanguage(code string) (string, error)
}

// Request is one parsed command, e.g. Name "setID", Args "12345".
type Request struct {
	Name string
	Args string
}

// Response is the reply to a command. An empty Text means no reply.
type Response struct {
	Text     string
	Markdown bool
}

// Command describes one registered command for menus and help.
type Command struct {
	Name        string
	Usage       string
	Description string
}

type handlerFunc func(ctx context.Context, args string) Response

// Dispatcher routes commands to handlers. Command names match
// case-insensitively, so /setID and /setid are the same command.
type Dispatcher struct {
	ctl      Controller
	lang     LanguageStore
	interval time.Duration
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

// NewDispatcher creates a dispatcher. interval is only used in replies.
func NewDispatcher(ctl Controller, lang LanguageStore, interval time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		ctl:      ctl,
		lang:     lang,
		interval: interval,
		logger:   logger,
	}
	d.handlers = map[string]handlerFunc{
		"start":  d.welcome,
		"info":   d.info,
		"help":   d.info,
		"run":    d.run,
		"stop":   d.stop,
		"setid":  d.setID,
		"status": d.status,
		"lang":   d.setLanguage,
	}
	return d
}

// Commands lists the commands shown to operators, in menu order.
func (d *Dispatcher) Commands() []Command {
	return []Command{
		{Name: "run", Description: fmt.Sprintf("Start automatic monitoring (every %s)", shortInterval(d.interval))},
		{Name: "stop", Description: "Stop monitoring"},
		{Name: "setid", Usage: "[ID]", Description: "Set the BattleMetrics Player ID"},
		{Name: "status", Description: "Check current status manually"},
		{Name: "lang", Usage: "[de/en]", Description: "Switch language"},
		{Name: "info", Description: "Show this help message"},
	}
}

// Dispatch runs the handler for req. Unknown commands get no reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Name), "/"))
	handler, ok := d.handlers[name]
	if !ok {
		d.logger.Debug("ignoring unknown command", "command", req.Name)
		return Response{}
	}

	d.logger.Info("command received", "command", name)
	return handler(ctx, strings.TrimSpace(req.Args))
}

func (d *Dispatcher) welcome(context.Context, string) Response {
	return Response{Text: "👋 Hello! I am ready.\nClick /info to see what I can do."}
}

func (d *Dispatcher) info(context.Context, string) Response {
	var b strings.Builder
	b.WriteString("🤖 *BM Status Bot*\n\n")
	b.WriteString("I monitor the online status of a player via BattleMetrics (using web scraping) and notify you about changes.\n\n")
	b.WriteString("*Commands (Click to execute):*\n")
	for _, c := range d.Commands() {
		b.WriteString("🔹 /")
		b.WriteString(c.Name)
		if c.Usage != "" {
			b.WriteString(" `" + c.Usage + "`")
		}
		b.WriteString(" - ")
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	return Response{Text: strings.TrimRight(b.String(), "\n"), Markdown: true}
}

func (d *Dispatcher) run(context.Context, string) Response {
	err := d.ctl.Start()
	switch {
	case err == nil:
		return Response{Text: fmt.Sprintf("✅ Monitoring started! Checking every %s.", longInterval(d.interval))}
	case errors.Is(err, playerwatch.ErrAlreadyRunning):
		return Response{Text: "⚠️ Monitoring is already running!"}
	default:
		d.logger.Error("starting monitoring failed", "error", err.Error())
		return Response{Text: "❌ Could not start monitoring."}
	}
}

func (d *Dispatcher) stop(context.Context, string) Response {
	err := d.ctl.Stop()
	switch {
	case err == nil:
		return Response{Text: "🛑 Monitoring stopped. Going to sleep."}
	case errors.Is(err, playerwatch.ErrNotRunning):
		return Response{Text: "💤 No monitoring active at the moment."}
	default:
		d.logger.Error("stopping monitoring failed", "error", err.Error())
		return Response{Text: "❌ Could not stop monitoring."}
	}
}

func (d *Dispatcher) setID(_ context.Context, args string) Response {
	// only the first argument is the identifier
	first, _, _ := strings.Cut(args, " ")

	id, err := d.ctl.SetIdentifier(first)
	switch {
	case err == nil:
		return Response{Text: fmt.Sprintf("✅ ID %s saved. Use /run to start.", id)}
	case errors.Is(err, playerwatch.ErrInvalidIdentifier):
		return Response{Text: "❌ Error. Please provide an ID (e.g., /setID 12345)."}
	default:
		d.logger.Error("saving identifier failed", "error", err.Error())
		return Response{Text: "❌ Could not save the ID. Please try again."}
	}
}

func (d *Dispatcher) status(context.Context, string) Response {
	r := d.ctl.Report()

	id := "not set"
	if r.HasIdentifier {
		id = r.Identifier
	}
	running := "Inactive 💤"
	if r.Running {
		running = "Active ✅"
	}

	text := fmt.Sprintf("ID: %s\nMonitoring: %s\nLast Status: %s", id, running, r.Status)
	if d.lang != nil {
		text += "\nLanguage: " + d.lang.Language()
	}
	return Response{Text: text}
}

func (d *Dispatcher) setLanguage(_ context.Context, args string) Response {
	first, _, _ := strings.Cut(args, " ")
	if first == "" {
		return Response{Text: "Usage: /lang de OR /lang en"}
	}
	if d.lang == nil {
		return Response{Text: "❌ Language settings are not available."}
	}

	code, err := d.lang.SaveLanguage(first)
	switch {
	case err == nil:
		if code == "de" {
			return Response{Text: "🇩🇪 Language set to German."}
		}
		return Response{Text: "🇺🇸 Language set to English."}
	case errors.Is(err, settings.ErrUnsupportedLanguage):
		return Response{Text: "Available languages: " + strings.Join(settings.SupportedLanguages, ", ")}
	default:
		d.logger.Error("saving language failed", "error", err.Error())
		return Response{Text: "❌ Could not save the language. Please try again."}
	}
}

// longInterval renders "2 minutes", "1 minute" or "90s".
func longInterval(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}

// shortInterval renders "2 min" or "90s".
func shortInterval(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}
