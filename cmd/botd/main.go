// Command botd is the chat-platform side of the bridge. It:
//   - Loads configuration and initializes structured logging.
//   - Runs the Discord gateway session: relays channel chat into the event
//     log, redeems link codes, and accepts admin console commands.
//   - Exposes the HTTP poll endpoint with /healthz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tekkabyte/minelink/bot"
	"github.com/tekkabyte/minelink/bridge"
	"github.com/tekkabyte/minelink/config"
	"github.com/tekkabyte/minelink/linking"
	"github.com/tekkabyte/minelink/server"
	"github.com/tekkabyte/minelink/supabase"
	"github.com/tekkabyte/minelink/telemetry"
)

func main() {
	// Load .env if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("minelink-botd", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	gw := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
	producer := &bridge.Producer{Store: gw, ServerID: cfg.ServerID}
	linker := &linking.Service{Store: gw, OneToOne: cfg.LinkOneToOne}

	b, err := bot.New(bot.Config{
		Token:               cfg.DiscordToken,
		GuildID:             cfg.GuildID,
		ChatChannelID:       cfg.ChatChannelID,
		LinkChannelID:       cfg.LinkChannelID,
		AdminChannelID:      cfg.AdminChannelID,
		LinkRoleID:          cfg.LinkRoleID,
		AllowRemoteCommands: cfg.AllowRemoteCommands,
	}, producer, linker)
	if err != nil {
		slog.Error("discord session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	linker.Granter = b.Granter()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(ctx, gw, cfg.PollSecret, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited", slog.Any("err", err))
			stop()
		}
	}()

	if err := b.Run(ctx); err != nil {
		slog.Error("discord bot exited", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}
