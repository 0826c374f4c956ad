// Command linkd is the game-server side of the bridge. It:
//   - Polls the chat-platform endpoint for bridge events and applies them
//     through the host adapter (broadcasts, roster replies, console commands).
//   - Hosts the /link and /report command handlers and the outbound webhook
//     dispatcher for chat, presence, and reports.
//
// A real deployment embeds these components behind the game server's plugin
// host; this binary wires a logging host adapter and a line-based dev console
// on stdin for exercising the command surface:
//
//	link <uuid> <name>
//	report <uuid> <name> <target> [reason...]
//	chat <name> <message...>
//	join <name> | leave <name>
//	roster <name,name,...>
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tekkabyte/minelink/bridge"
	"github.com/tekkabyte/minelink/config"
	"github.com/tekkabyte/minelink/gameside"
	"github.com/tekkabyte/minelink/linking"
	"github.com/tekkabyte/minelink/ratelimit"
	"github.com/tekkabyte/minelink/supabase"
	"github.com/tekkabyte/minelink/telemetry"
	"github.com/tekkabyte/minelink/webhook"
)

func main() {
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBridgeReady(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("minelink-linkd", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	gw := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
	host := gameside.NewLogHost()

	var chatHook *webhook.Client
	if cfg.ChatWebhookURL != "" {
		chatHook = webhook.New(cfg.ChatWebhookURL, "")
	} else {
		slog.Warn("CHAT_WEBHOOK_URL not set, chat and presence forwarding disabled")
	}
	var reportsHook *webhook.Client
	if cfg.ReportsWebhookURL != "" {
		reportsHook = webhook.New(cfg.ReportsWebhookURL, cfg.ReportsThreadID)
	} else {
		slog.Warn("REPORTS_WEBHOOK_URL not set, /report disabled")
	}

	dispatcher := &bridge.Dispatcher{Host: host, AllowRemoteCommands: cfg.AllowRemoteCommands}
	if chatHook != nil {
		dispatcher.Notifier = chatHook
	}
	poller := &bridge.Poller{
		Source:     bridge.NewPollClient(cfg.PollURL, cfg.ServerID, cfg.PollSecret),
		Dispatcher: dispatcher,
		Interval:   cfg.PollInterval,
	}

	forwarder := &gameside.Forwarder{}
	if chatHook != nil {
		forwarder.Sink = chatHook
	}
	linkCmd := &gameside.LinkCommand{
		Issuer: &linking.Service{Store: gw, OneToOne: cfg.LinkOneToOne},
	}
	var reportCmd *gameside.ReportCommand
	if reportsHook != nil {
		reportCmd = &gameside.ReportCommand{
			Limiter:     ratelimit.New(cfg.ReportsMaxPerPlayer, cfg.ReportsWindow()),
			Links:       gw,
			Sink:        reportsHook,
			StaffRoleID: cfg.StaffRoleID,
			Max:         cfg.ReportsMaxPerPlayer,
			WindowDesc:  cfg.ReportsWindow().String(),
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go host.Run(ctx)
	go poller.Run(ctx)
	go runConsole(ctx, host, forwarder, linkCmd, reportCmd)

	slog.Info("bridge poller started",
		slog.String("poll_url", cfg.PollURL),
		slog.String("server_id", cfg.ServerID),
		slog.Duration("interval", cfg.PollInterval))

	<-ctx.Done()
	slog.Info("shutdown complete")
}

// runConsole reads dev-console lines from stdin until ctx is cancelled or
// stdin closes.
func runConsole(ctx context.Context, host *gameside.LogHost, fwd *gameside.Forwarder, linkCmd *gameside.LinkCommand, reportCmd *gameside.ReportCommand) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		for _, line := range handleConsoleLine(ctx, scanner.Text(), host, fwd, linkCmd, reportCmd) {
			fmt.Println(line)
		}
	}
}

func handleConsoleLine(ctx context.Context, line string, host *gameside.LogHost, fwd *gameside.Forwarder, linkCmd *gameside.LinkCommand, reportCmd *gameside.ReportCommand) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "link":
		if len(fields) != 3 {
			return []string{"usage: link <uuid> <name>"}
		}
		id, err := uuid.Parse(fields[1])
		if err != nil {
			return []string{"bad uuid: " + err.Error()}
		}
		return linkCmd.Execute(ctx, gameside.Player{ID: id, Name: fields[2]})
	case "report":
		if reportCmd == nil {
			return []string{"reports are disabled"}
		}
		if len(fields) < 4 {
			return []string{"usage: report <uuid> <name> <target> [reason...]"}
		}
		id, err := uuid.Parse(fields[1])
		if err != nil {
			return []string{"bad uuid: " + err.Error()}
		}
		reason := strings.Join(fields[4:], " ")
		return reportCmd.Execute(ctx, gameside.Player{ID: id, Name: fields[2]}, fields[3], reason)
	case "chat":
		if len(fields) < 3 {
			return []string{"usage: chat <name> <message...>"}
		}
		fwd.PlayerChat(fields[1], strings.Join(fields[2:], " "))
		return nil
	case "join":
		if len(fields) != 2 {
			return []string{"usage: join <name>"}
		}
		fwd.PlayerJoined(fields[1])
		return nil
	case "leave":
		if len(fields) != 2 {
			return []string{"usage: leave <name>"}
		}
		fwd.PlayerLeft(fields[1])
		return nil
	case "roster":
		if len(fields) != 2 {
			return []string{"usage: roster <name,name,...>"}
		}
		host.SetRoster(strings.Split(fields[1], ","))
		return nil
	default:
		return []string{"unknown command: " + fields[0]}
	}
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
