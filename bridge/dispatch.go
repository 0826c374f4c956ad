package bridge

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/tekkabyte/minelink/telemetry"
)

// FallbackAuthor labels relayed chat lines whose author field is missing.
const FallbackAuthor = "Discord"

// Host is the game-world boundary. Broadcast, OnlinePlayers and
// RunConsoleCommand must only be called from the world thread; Schedule
// marshals a function onto it.
type Host interface {
	Broadcast(line string)
	OnlinePlayers() []string
	RunConsoleCommand(cmd string) error
	Schedule(fn func())
}

// RosterNotifier delivers the online-player roster back to the platform.
type RosterNotifier interface {
	SendOnline(names []string) bool
}

// Dispatcher maps decoded events to host effects. It holds no state; safe to
// call from the world thread only (see Host).
type Dispatcher struct {
	Host                Host
	Notifier            RosterNotifier
	AllowRemoteCommands bool
}

// Dispatch applies one event. Handlers are idempotent per side effect: a
// re-delivered chat event broadcasts again, which is tolerated.
func (d *Dispatcher) Dispatch(ev Event) {
	telemetry.CountEvent(telemetry.EventsDispatched, string(ev.Kind))
	switch ev.Kind {
	case KindChat:
		author := ev.Chat.Author
		if strings.TrimSpace(author) == "" {
			author = FallbackAuthor
		}
		d.Host.Broadcast(FormatChatLine(author, ev.Chat.Content))
	case KindOnline:
		names := d.Host.OnlinePlayers()
		sort.Slice(names, func(i, j int) bool {
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})
		if d.Notifier != nil {
			d.Notifier.SendOnline(names)
		}
	case KindCommand:
		if !d.AllowRemoteCommands {
			slog.Debug("remote command ignored: disabled", slog.String("by", ev.Command.By))
			return
		}
		if ev.Command.Text == "" {
			return
		}
		if err := d.Host.RunConsoleCommand(ev.Command.Text); err != nil {
			slog.Warn("remote command failed", slog.String("cmd", ev.Command.Text), slog.Any("err", err))
		}
	}
}

// FormatChatLine renders a relayed platform chat line for in-game broadcast.
func FormatChatLine(author, content string) string {
	return "DISCORD - " + author + ": " + content
}
