package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/skeldgo/skeld/internal/chat"
	"github.com/skeldgo/skeld/internal/config"
	"github.com/skeldgo/skeld/internal/console"
	"github.com/skeldgo/skeld/internal/locale"
	"github.com/skeldgo/skeld/internal/plugin"
	"github.com/skeldgo/skeld/internal/relay"
)

const ConfigPath = "config/skeldserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := ConfigPath
	if p := os.Getenv("SKELD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("skeld server starting",
		"cluster", cfg.ClusterID,
		"log_level", cfg.LogLevel,
		"port", cfg.Socket.Port)

	plugins := plugin.NewRegistry(nil)

	table := chat.NewTable()
	registerChatCommands(table)

	server, err := relay.New(&cfg, locale.Default{}, plugins, table)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(gctx); err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		op := console.New(server, plugins, cfg.Console, os.Stdin, os.Stdout)
		if err := op.Run(gctx); err != nil {
			return fmt.Errorf("operator console: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// registerChatCommands installs the stock in-game commands next to the
// built-in help.
func registerChatCommands(t *chat.Table) {
	register := func(usage, desc string, h chat.Handler) {
		if err := t.Register(usage, desc, h); err != nil {
			slog.Error("registering chat command", "usage", usage, "err", err)
		}
	}

	register("ping", "Checks the server is responding", func(ctx *chat.Context, _ map[string]string) error {
		return ctx.Reply("pong")
	})
	register("code", "Shows the current room code", func(ctx *chat.Context, _ map[string]string) error {
		return ctx.Reply("Room code: " + ctx.RoomCode)
	})
	register("whoami", "Shows your client id and username", func(ctx *chat.Context, _ map[string]string) error {
		if ctx.Caller == nil {
			return chat.Callf("No caller identity")
		}
		return ctx.Reply(fmt.Sprintf("%s (client %d)", ctx.Caller.Username(), ctx.Caller.ClientID()))
	})
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info for unknown values.
func parseLogLevel(level string) slog.Level {
	switch level {
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
