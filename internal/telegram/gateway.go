package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jpalmerr/playerwatch/internal/command"
)

const (
	// defaultPollTimeout is the long-poll duration in seconds.
	defaultPollTimeout = 30

	defaultRetryDelay = 3 * time.Second
)

// Dispatcher handles one command. *command.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Response
	Commands() []command.Command
}

// GatewayConfig configures a [Gateway].
type GatewayConfig struct {
	// RestrictToChat ignores commands from chats other than the bot's
	// destination chat.
	RestrictToChat bool

	// PollTimeout is the getUpdates long-poll duration in seconds. Zero
	// uses 30.
	PollTimeout int

	// RetryDelay is the pause after a failed poll. Zero uses 3s.
	RetryDelay time.Duration
}

// Gateway receives operator commands over getUpdates long polling and
// answers them in the originating chat.
type Gateway struct {
	bot        *Bot
	dispatcher Dispatcher
	cfg        GatewayConfig
	logger     *slog.Logger
}

// NewGateway creates a gateway for bot.
func NewGateway(bot *Bot, dispatcher Dispatcher, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{bot: bot, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Run registers the command menu and polls until ctx is cancelled. Poll
// failures are logged and retried after a fixed delay. Run returns nil on
// cancellation.
func (g *Gateway) Run(ctx context.Context) error {
	api := g.bot.withContext(ctx)

	if err := g.registerCommands(api); err != nil {
		g.logger.Warn("registering command menu failed", "error", err.Error())
	}

	g.logger.Info("telegram gateway started",
		"chat_id", g.bot.ChatID(),
		"restrict_to_chat", g.cfg.RestrictToChat,
	)

	offset := 0
	for {
		if ctx.Err() != nil {
			g.logger.Info("telegram gateway stopped")
			return nil
		}

		updates, err := api.GetUpdates(tgbotapi.UpdateConfig{
			Offset:         offset,
			Timeout:        g.cfg.PollTimeout,
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				continue
			}
			g.logger.Warn("polling telegram updates failed", "error", err.Error())
			select {
			case <-time.After(g.cfg.RetryDelay):
			case <-ctx.Done():
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			g.handle(ctx, update)
		}
	}
}

// handle dispatches one update. Replies that fail are logged; they never
// stop the loop.
func (g *Gateway) handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	if g.cfg.RestrictToChat && msg.Chat.ID != g.bot.ChatID() {
		g.logger.Warn("ignoring command from foreign chat",
			"chat_id", msg.Chat.ID,
			"command", msg.Command(),
		)
		return
	}

	resp := g.dispatcher.Dispatch(ctx, command.Request{
		Name: msg.Command(),
		Args: msg.CommandArguments(),
	})
	if resp.Text == "" {
		return
	}

	if err := g.bot.Reply(ctx, msg.Chat.ID, msg.MessageID, resp.Text, resp.Markdown); err != nil {
		g.logger.Error("replying to command failed",
			"command", msg.Command(),
			"error", err.Error(),
		)
	}
}

func (g *Gateway) registerCommands(api *tgbotapi.BotAPI) error {
	cmds := g.dispatcher.Commands()
	botCmds := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		botCmds = append(botCmds, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	_, err := api.Request(tgbotapi.NewSetMyCommands(botCmds...))
	return err
}
