// Package telegram connects the monitor to a Telegram chat: [Bot] delivers
// notifications and replies, [Gateway] long-polls for operator commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// DefaultRequestTimeout bounds every Bot API round trip, including long
	// polls. It must exceed the long-poll timeout.
	DefaultRequestTimeout = 60 * time.Second

	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 90 * time.Second
)

// Config configures a [Bot].
type Config struct {
	// Token is the bot token issued by @BotFather.
	Token string

	// ChatID is the destination for notifications and, when restricted, the
	// only chat whose commands are accepted.
	ChatID int64

	// RequestTimeout bounds each HTTP request. Zero uses
	// [DefaultRequestTimeout].
	RequestTimeout time.Duration

	// APIEndpoint overrides the Bot API URL format, mainly for tests. It
	// must contain two %s verbs: token, then method.
	APIEndpoint string
}

// Bot is a Telegram Bot API client bound to one destination chat.
//
// Bot satisfies playerwatch.Notifier.
type Bot struct {
	api    *tgbotapi.BotAPI
	http   *http.Client
	chatID int64
	logger *slog.Logger
}

// New validates cfg and authenticates against the Bot API (getMe).
func New(cfg Config, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := newHTTPClient(cfg.RequestTimeout)
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("authenticating telegram bot: %w", err)
	}

	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Bot{
		api:    api,
		http:   httpClient,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// ChatID returns the destination chat.
func (b *Bot) ChatID() int64 {
	return b.chatID
}

// Username returns the bot's username as reported by getMe.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Send delivers text to the destination chat.
func (b *Bot) Send(ctx context.Context, text string) error {
	return b.send(ctx, tgbotapi.NewMessage(b.chatID, text))
}

// Reply answers a message in chatID. markdown selects legacy Markdown
// parsing.
func (b *Bot) Reply(ctx context.Context, chatID int64, replyTo int, text string, markdown bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	return b.send(ctx, msg)
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if _, err := b.withContext(ctx).Send(msg); err != nil {
		return fmt.Errorf("sending telegram message to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

// withContext returns a shallow copy of the API client whose requests are
// bound to ctx. The copy shares the token, endpoint and connection pool.
func (b *Bot) withContext(ctx context.Context) *tgbotapi.BotAPI {
	api := *b.api
	api.Client = contextClient{ctx: ctx, client: b.http}
	return &api
}

// contextClient attaches a context to requests built by the Bot API
// library, which creates them without one.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// newHTTPClient builds the shared client. A whole-request timeout applies
// here, unlike per-request contexts, because the Bot API library offers no
// other hook.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConns,
			IdleConnTimeout:     defaultIdleConnTimeout,
			TLSHandshakeTimeout: timeout,
		},
	}
}
