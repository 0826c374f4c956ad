// Package linking runs the account-linking protocol: the game side mints a
// short-lived one-time code; the chat side redeems it and commits the
// identity link. Uniqueness in one-to-one mode is checked in both directions
// because the datastore only enforces one key.
package linking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tekkabyte/minelink/supabase"
	"github.com/tekkabyte/minelink/telemetry"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength       = 6
	codeTTL          = 5 * time.Minute
	maxIssueAttempts = 3
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ErrAlreadyLinked rejects issuance for an account that holds a link.
var ErrAlreadyLinked = errors.New("minecraft account already linked")

// Store is the slice of the datastore gateway the workflow needs.
type Store interface {
	FetchPendingCode(ctx context.Context, code string) (*supabase.PendingCode, error)
	CreatePendingCode(ctx context.Context, code, minecraftUUID, minecraftUsername string, expiresAt time.Time) error
	DeletePendingCode(ctx context.Context, code string) error
	MinecraftLinked(ctx context.Context, minecraftUUID string) (bool, error)
	DiscordLinked(ctx context.Context, discordID string) (bool, error)
	UpsertLink(ctx context.Context, minecraftUUID, minecraftUsername, discordID, discordTag string) error
}

// RoleGranter applies the optional post-link role grant. Grant failure never
// unwinds the link.
type RoleGranter interface {
	GrantLinkedRole(ctx context.Context, discordID string) error
}

// Outcome classifies one redemption attempt.
type Outcome int

const (
	OutcomeLinked Outcome = iota
	OutcomeInvalid
	OutcomeExpired
	OutcomeMinecraftTaken
	OutcomeDiscordTaken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLinked:
		return "linked"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeExpired:
		return "expired"
	case OutcomeMinecraftTaken:
		return "minecraft_taken"
	case OutcomeDiscordTaken:
		return "discord_taken"
	default:
		return "unknown"
	}
}

// Result of a redemption. MinecraftUsername is set when Outcome is
// OutcomeLinked.
type Result struct {
	Outcome           Outcome
	MinecraftUsername string
}

// Service holds the linking policy and its dependencies.
type Service struct {
	Store    Store
	OneToOne bool
	Granter  RoleGranter

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ValidCode reports whether s is exactly six uppercase alphanumerics.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// Issue mints and registers a fresh code for the player. An already-linked
// account is rejected before any code is generated. Code collisions retry
// with a fresh code up to three total attempts.
func (s *Service) Issue(ctx context.Context, minecraftUUID, minecraftUsername string) (string, error) {
	linked, err := s.Store.MinecraftLinked(ctx, minecraftUUID)
	if err != nil {
		return "", err
	}
	if linked {
		return "", ErrAlreadyLinked
	}

	op := func() (string, error) {
		code, err := generateCode()
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if err := s.Store.CreatePendingCode(ctx, code, minecraftUUID, minecraftUsername, s.now().Add(codeTTL)); err != nil {
			if supabase.IsConflict(err) {
				return "", err // retry with a fresh code
			}
			return "", backoff.Permanent(err)
		}
		return code, nil
	}
	code, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(maxIssueAttempts),
	)
	if err != nil {
		return "", fmt.Errorf("register link code: %w", err)
	}
	return code, nil
}

// Redeem consumes a pasted code for the given chat identity and commits the
// link on success. The one-to-one checks are deliberately asymmetric: a
// minecraft-side conflict burns the code, a discord-side conflict leaves it
// redeemable by a different, not-yet-linked account.
func (s *Service) Redeem(ctx context.Context, rawCode, discordID, discordTag string) (Result, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if !ValidCode(code) {
		return s.done(OutcomeInvalid, "")
	}

	pending, err := s.Store.FetchPendingCode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if pending == nil {
		return s.done(OutcomeInvalid, "")
	}

	if pending.Expired(s.now()) {
		if err := s.Store.DeletePendingCode(ctx, code); err != nil {
			slog.Warn("failed to delete expired link code", slog.Any("err", err))
		}
		return s.done(OutcomeExpired, "")
	}

	if s.OneToOne {
		taken, err := s.Store.MinecraftLinked(ctx, pending.MinecraftUUID)
		if err != nil {
			return Result{}, err
		}
		if taken {
			if err := s.Store.DeletePendingCode(ctx, code); err != nil {
				slog.Warn("failed to delete conflicted link code", slog.Any("err", err))
			}
			return s.done(OutcomeMinecraftTaken, "")
		}
		taken, err = s.Store.DiscordLinked(ctx, discordID)
		if err != nil {
			return Result{}, err
		}
		if taken {
			// Keep the code: it is scoped to the in-game identity, not this
			// chat identity.
			return s.done(OutcomeDiscordTaken, "")
		}
	}

	if err := s.Store.UpsertLink(ctx, pending.MinecraftUUID, pending.MinecraftUsername, discordID, discordTag); err != nil {
		return Result{}, err
	}
	if err := s.Store.DeletePendingCode(ctx, code); err != nil {
		slog.Warn("failed to delete consumed link code", slog.Any("err", err))
	}

	if s.Granter != nil {
		if err := s.Granter.GrantLinkedRole(ctx, discordID); err != nil {
			slog.Warn("failed to grant linked role", slog.String("discord_id", discordID), slog.Any("err", err))
		}
	}
	return s.done(OutcomeLinked, pending.MinecraftUsername)
}

func (s *Service) done(o Outcome, username string) (Result, error) {
	telemetry.CountEvent(telemetry.LinkOutcomes, o.String())
	return Result{Outcome: o, MinecraftUsername: username}, nil
}

func generateCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
