// Package gameside holds the game-server process's half of the bridge: the
// /link and /report command handlers, the chat/presence forwarder, and a
// host adapter for deployments without a real plugin host. Handlers return
// reply lines so the host binding stays a thin adapter.
package gameside

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tekkabyte/minelink/linking"
	"github.com/tekkabyte/minelink/ratelimit"
	"github.com/tekkabyte/minelink/telemetry"
)

// Player identifies the in-game initiator of a command.
type Player struct {
	ID   uuid.UUID
	Name string
}

// Issuer mints linking codes (the game side of the linking workflow).
type Issuer interface {
	Issue(ctx context.Context, minecraftUUID, minecraftUsername string) (string, error)
}

// LinkCommand handles /link.
type LinkCommand struct {
	Issuer Issuer
}

// Execute runs one /link invocation and returns the reply lines for the
// player. Remote failures are logged here and reported as a short message.
func (c *LinkCommand) Execute(ctx context.Context, p Player) []string {
	code, err := c.Issuer.Issue(ctx, p.ID.String(), p.Name)
	if errors.Is(err, linking.ErrAlreadyLinked) {
		return []string{"Your account is already linked to Discord."}
	}
	if err != nil {
		slog.Warn("link code issuance failed", slog.String("player", p.Name), slog.Any("err", err))
		return []string{"Failed to generate linking code. Please try again later."}
	}
	return []string{
		"Account Linking",
		"Your verification code: " + code,
		"Post this code in the Discord linking channel.",
		"This code expires in 5 minutes.",
	}
}

// LinkLookup resolves the chat identity linked to a player, if any.
type LinkLookup interface {
	LinkedDiscordID(ctx context.Context, minecraftUUID string) (string, error)
}

// ReportSink delivers a finished report to the chat platform.
type ReportSink interface {
	SendReport(staffRoleID, reporter, reporterUUID, reporterDiscordID, target, reason string) bool
}

// ReportCommand handles /report <target> <reason...>. Admission goes through
// the sliding-window limiter first; a reservation whose downstream delivery
// fails is rolled back so the failed attempt keeps its retry slot.
type ReportCommand struct {
	Limiter     *ratelimit.Limiter
	Links       LinkLookup
	Sink        ReportSink
	StaffRoleID string
	Max         int
	WindowDesc  string // human description of the window for the reject message
}

// Execute runs one /report invocation and returns the reply lines.
func (c *ReportCommand) Execute(ctx context.Context, p Player, target, reason string) []string {
	res, wait, ok := c.Limiter.Allow(p.ID.String())
	if !ok {
		telemetry.Inc(telemetry.ReportsRateLimited)
		return []string{
			fmt.Sprintf("You have reached the report limit (%d per %s).", c.Max, c.WindowDesc),
			fmt.Sprintf("Try again in %s.", wait),
		}
	}
	telemetry.Inc(telemetry.ReportsAdmitted)

	discordID, err := c.Links.LinkedDiscordID(ctx, p.ID.String())
	if err != nil {
		c.Limiter.Release(res)
		slog.Warn("report link lookup failed", slog.String("player", p.Name), slog.Any("err", err))
		return []string{"Failed to submit report. Please try again later."}
	}
	if discordID == "" {
		c.Limiter.Release(res)
		return []string{"You must link your Discord account before filing reports. Use /link."}
	}

	if !c.Sink.SendReport(c.StaffRoleID, p.Name, p.ID.String(), discordID, target, reason) {
		c.Limiter.Release(res)
		return []string{"Failed to submit report. Please try again later."}
	}
	return []string{"Your report has been submitted successfully."}
}
