// Package bridge carries cross-system events between the chat platform and
// the game server through the shared event log. The producing side appends
// typed rows; the consuming side polls them on an interval and turns them
// into game-world effects.
package bridge

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tekkabyte/minelink/supabase"
)

// Kind is the event discriminator stored in the type column.
type Kind string

const (
	KindChat    Kind = "chat"
	KindOnline  Kind = "online"
	KindCommand Kind = "command"
)

// Chat is a chat line relayed from the platform into the game.
type Chat struct {
	Author  string
	Content string
}

// Online is a request for the current online-player roster.
type Online struct {
	By string
}

// Command is a remote administrative command to run at console authority.
type Command struct {
	Text string
	By   string
}

// Event is the decoded union over the known kinds. Exactly one of Chat,
// Online, Command is non-nil, matching Kind.
type Event struct {
	ID        int64
	CreatedAt time.Time
	Kind      Kind
	Chat      *Chat
	Online    *Online
	Command   *Command
}

// payload mirrors the raw key/value payload column. Decoded once here so
// downstream code never touches untyped maps.
type payload struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Command string `json:"command"`
	By      string `json:"by"`
}

// Decode turns a raw event row into a typed Event. Unknown kinds return
// ok=false and are skipped by the caller.
func Decode(row supabase.EventRow) (Event, bool) {
	var p payload
	if len(row.Payload) > 0 {
		// A malformed payload degrades to empty fields rather than dropping
		// the event; chat falls back to defaults downstream.
		_ = json.Unmarshal(row.Payload, &p)
	}
	ev := Event{ID: row.ID, CreatedAt: row.CreatedAt}
	switch Kind(strings.ToLower(row.Type)) {
	case KindChat:
		ev.Kind = KindChat
		ev.Chat = &Chat{Author: p.Author, Content: p.Content}
	case KindOnline:
		ev.Kind = KindOnline
		ev.Online = &Online{By: p.By}
	case KindCommand:
		ev.Kind = KindCommand
		ev.Command = &Command{Text: strings.TrimSpace(p.Command), By: p.By}
	default:
		return Event{}, false
	}
	return ev, true
}
