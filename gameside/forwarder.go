package gameside

import (
	"log/slog"
	"regexp"
	"strings"
)

// chatCap bounds a forwarded chat line before the dispatcher's own platform
// cap, leaving room for the author prefix.
const chatCap = 1900

var sectionCodeRe = regexp.MustCompile(`§.`)

// ChatSink is the outbound notification surface the forwarder writes to.
type ChatSink interface {
	SendChat(playerName, content string) bool
	SendJoin(playerName string) bool
	SendLeave(playerName string) bool
}

// Forwarder relays in-game chat and presence to the chat platform.
// Delivery is best-effort; a failed send is logged and dropped.
type Forwarder struct {
	Sink ChatSink
}

// PlayerChat forwards one chat line.
func (f *Forwarder) PlayerChat(playerName, message string) {
	if f.Sink == nil {
		return
	}
	if !f.Sink.SendChat(playerName, SanitizeChat(message)) {
		slog.Debug("chat forward dropped", slog.String("player", playerName))
	}
}

// PlayerJoined announces a join.
func (f *Forwarder) PlayerJoined(playerName string) {
	if f.Sink == nil {
		return
	}
	if !f.Sink.SendJoin(playerName) {
		slog.Debug("join forward dropped", slog.String("player", playerName))
	}
}

// PlayerLeft announces a quit.
func (f *Forwarder) PlayerLeft(playerName string) {
	if f.Sink == nil {
		return
	}
	if !f.Sink.SendLeave(playerName) {
		slog.Debug("leave forward dropped", slog.String("player", playerName))
	}
}

// SanitizeChat strips in-game style codes, escapes markdown so player text
// renders literally, and caps the length.
func SanitizeChat(s string) string {
	s = sectionCodeRe.ReplaceAllString(s, "")
	if len(s) > chatCap {
		s = s[:chatCap-3] + "..."
	}
	r := strings.NewReplacer(
		"*", `\*`,
		"_", `\_`,
		"~", `\~`,
		"`", "\\`",
	)
	return r.Replace(s)
}
