package bridge

import (
	"context"
	"time"
)

// EventStore is the slice of the datastore gateway the producer needs.
type EventStore interface {
	InsertEvent(ctx context.Context, serverID, typ string, payload any) error
}

// Producer appends typed events to the event log. Delivery is best-effort:
// callers log a failure and complete the user-facing action regardless.
type Producer struct {
	Store    EventStore
	ServerID string
}

// ChatMessage appends a chat event relayed from the platform.
func (p *Producer) ChatMessage(ctx context.Context, author, content, discordID, discordTag string) error {
	return p.Store.InsertEvent(ctx, p.ServerID, string(KindChat), map[string]any{
		"author":      author,
		"content":     content,
		"discord_id":  discordID,
		"discord_tag": discordTag,
		"ts":          time.Now().UnixMilli(),
	})
}

// OnlineRequest appends a roster-snapshot request.
func (p *Producer) OnlineRequest(ctx context.Context, by, discordID string) error {
	return p.Store.InsertEvent(ctx, p.ServerID, string(KindOnline), map[string]any{
		"by":         by,
		"discord_id": discordID,
		"ts":         time.Now().UnixMilli(),
	})
}

// RemoteCommand appends an administrative command event.
func (p *Producer) RemoteCommand(ctx context.Context, command, by, discordID string) error {
	return p.Store.InsertEvent(ctx, p.ServerID, string(KindCommand), map[string]any{
		"command":    command,
		"by":         by,
		"discord_id": discordID,
		"ts":         time.Now().UnixMilli(),
	})
}
