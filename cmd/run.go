package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goicq/internal/bot"
	"github.com/nextlevelbuilder/goicq/internal/botapi"
	"github.com/nextlevelbuilder/goicq/internal/config"
	"github.com/nextlevelbuilder/goicq/internal/dedup"
	"github.com/nextlevelbuilder/goicq/internal/dispatch"
	"github.com/nextlevelbuilder/goicq/internal/event"
	"github.com/nextlevelbuilder/goicq/internal/filter"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot()
		},
	}
}

func setupLogging(lc config.LogConfig) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil || lc.Level == "" {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(os.Stdout, hopts)
	} else {
		h = slog.NewTextHandler(os.Stdout, hopts)
	}
	slog.SetDefault(slog.New(h))
}

func runBot() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	setupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", cfgPath, "error", err)
		return err
	}

	cache := dedup.New(cfg.Dedup.MaxEntries, cfg.Dedup.TTL())
	d := dispatch.New(cache)

	client, err := newClient(cfg, cache)
	if err != nil {
		return err
	}

	b := bot.New(client, d,
		bot.WithPollTimeout(cfg.Bot.PollTimeout()),
		bot.WithErrorBackoff(cfg.Polling.ErrorBackoff()),
	)
	registerBuiltins(d, client, cfg)

	slog.Info("goicq starting",
		"version", Version,
		"api", client.BaseURL(),
		"poll_timeout", cfg.Bot.PollTimeout(),
		"handlers", d.Len(),
	)
	b.Start()
	b.Idle()
	slog.Info("goicq stopped")
	return nil
}

func newClient(cfg *config.Config, rec botapi.SentRecorder) (*botapi.Client, error) {
	opts := []botapi.Option{
		botapi.WithBaseURL(cfg.Bot.APIURL),
		botapi.WithTimeout(cfg.Bot.Timeout()),
		botapi.WithWrapLength(cfg.Bot.WrapLength),
		botapi.WithAgent(cfg.Bot.Name, cfg.Bot.Version),
	}
	if rec != nil {
		opts = append(opts, botapi.WithSentRecorder(rec))
	}
	if cfg.Bot.SendRate > 0 {
		opts = append(opts, botapi.WithSendRate(cfg.Bot.SendRate, cfg.Bot.SendBurst))
	}
	if cfg.Log.HTTPDump {
		opts = append(opts, botapi.WithDebugLogging())
	}
	return botapi.New(cfg.Bot.Token, opts...)
}

// registerBuiltins installs the diagnostic handler set: /help, /ping, the
// optional feedback relay, an unknown-command reply and a debug-logging
// default.
func registerBuiltins(d *dispatch.Dispatcher, sender dispatch.Sender, cfg *config.Config) {
	var opts []dispatch.Option
	if len(cfg.Handlers.AllowFrom) > 0 {
		opts = append(opts, dispatch.WithFilter(filter.From(cfg.Handlers.AllowFrom...)))
	}
	reply := func(ctx context.Context, ev event.Event, text string) error {
		source, ok := ev.SourceID()
		if !ok {
			return nil
		}
		return sender.SendIM(ctx, source, text)
	}

	d.Add(dispatch.NewCommandHandler([]string{"help", "start"}, func(ctx context.Context, ev event.Event) error {
		return reply(ctx, ev, helpText(d))
	}, append([]dispatch.Option{dispatch.WithName("help")}, opts...)...))

	d.Add(dispatch.NewCommandHandler([]string{"ping"}, func(ctx context.Context, ev event.Event) error {
		return reply(ctx, ev, "pong")
	}, append([]dispatch.Option{dispatch.WithName("ping")}, opts...)...))

	if fc := cfg.Handlers.Feedback; fc.Enabled {
		fo := dispatch.DefaultFeedbackOptions(cfg.Bot.Owner)
		if fc.Command != "" {
			fo.Command = fc.Command
		}
		fo.Reply = fc.Reply
		fo.ErrorReply = fc.ErrorReply
		d.Add(dispatch.NewFeedbackCommandHandler(sender, fo, opts...))
	}

	d.Add(dispatch.NewUnknownCommandHandler(func(ctx context.Context, ev event.Event) error {
		msg, _ := ev.Message()
		name, _, _ := dispatch.ParseCommand(msg)
		return reply(ctx, ev, fmt.Sprintf("Unknown command /%s. Try /help.", name))
	}, opts...))

	d.Add(dispatch.NewDefaultHandler(func(_ context.Context, ev event.Event) error {
		slog.Debug("unhandled event", "event", ev.String())
		return nil
	}))
}

// helpText lists the commands currently registered on d.
func helpText(d *dispatch.Dispatcher) string {
	var names []string
	for _, h := range d.Handlers() {
		if ch, ok := h.(*dispatch.CommandHandler); ok {
			for _, n := range ch.Commands() {
				names = append(names, "/"+n)
			}
		}
	}
	sort.Strings(names)
	return "Commands: " + strings.Join(names, ", ")
}
