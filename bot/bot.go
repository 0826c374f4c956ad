// Package bot runs the chat-platform process: a Discord gateway session that
// produces bridge events from channel activity, redeems linking codes pasted
// in the link channel, and accepts administrative commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/tekkabyte/minelink/bridge"
	"github.com/tekkabyte/minelink/linking"
)

// Config selects the channels and policies the bot operates on.
type Config struct {
	Token               string
	GuildID             string
	ChatChannelID       string
	LinkChannelID       string
	AdminChannelID      string
	LinkRoleID          string
	AllowRemoteCommands bool
}

// Bot owns the gateway session and its handlers.
type Bot struct {
	cfg      Config
	session  *discordgo.Session
	producer *bridge.Producer
	linker   *linking.Service
}

// New builds the session and registers handlers; Run opens it.
func New(cfg Config, producer *bridge.Producer, linker *linking.Service) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentsGuildMembers // role grant needs member access

	b := &Bot{cfg: cfg, session: s, producer: producer, linker: linker}
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onInteractionCreate)
	return b, nil
}

// Granter returns a RoleGranter backed by this session, or nil when no link
// role is configured.
func (b *Bot) Granter() linking.RoleGranter {
	if b.cfg.LinkRoleID == "" {
		return nil
	}
	return &roleGranter{session: b.session, guildID: b.cfg.GuildID, roleID: b.cfg.LinkRoleID}
}

// Run connects the gateway and blocks until ctx is cancelled. The /online
// guild command is registered after the session is ready.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer func() {
		if err := b.session.Close(); err != nil {
			slog.Error("discord session close failed", slog.Any("err", err))
		}
	}()
	slog.Info("discord bot connected", slog.String("user", b.session.State.User.String()))

	if b.cfg.GuildID != "" {
		_, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.cfg.GuildID, &discordgo.ApplicationCommand{
			Name:        "online",
			Description: "Show online Minecraft players",
		})
		if err != nil {
			slog.Warn("failed to register /online command", slog.Any("err", err))
		}
	} else {
		slog.Warn("guild id not set, /online only works if previously registered")
	}

	<-ctx.Done()
	slog.Info("discord bot shutting down")
	return nil
}

type roleGranter struct {
	session *discordgo.Session
	guildID string
	roleID  string
}

func (g *roleGranter) GrantLinkedRole(_ context.Context, discordID string) error {
	return g.session.GuildMemberRoleAdd(g.guildID, discordID, g.roleID)
}
