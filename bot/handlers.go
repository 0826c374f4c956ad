package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tekkabyte/minelink/linking"
)

// handlerTimeout bounds the datastore round trips a single gateway event may
// spend before we give up and answer the user.
const handlerTimeout = 10 * time.Second

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	switch m.ChannelID {
	case b.cfg.LinkChannelID:
		b.handleLinkMessage(s, m)
	case b.cfg.ChatChannelID:
		b.handleChatMessage(s, m)
	case b.cfg.AdminChannelID:
		b.handleAdminMessage(s, m)
	}
}

// handleLinkMessage redeems a verification code pasted into the link channel.
// Anything that does not look like a code is ignored so ordinary conversation
// in the channel stays untouched.
func (b *Bot) handleLinkMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	code := strings.ToUpper(strings.TrimSpace(m.Content))
	if !linking.ValidCode(code) {
		return
	}

	// Remove the code from the channel whatever the outcome so it cannot be
	// replayed from history.
	if err := s.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		slog.Warn("failed to delete link code message", slog.Any("err", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	res, err := b.linker.Redeem(ctx, code, m.Author.ID, userTag(m.Author))
	if err != nil {
		slog.Error("link redemption failed", slog.Any("err", err))
		b.reply(s, m.ChannelID, "⚠️ Something went wrong while linking. Please try again shortly.")
		return
	}

	switch res.Outcome {
	case linking.OutcomeLinked:
		b.reply(s, m.ChannelID, fmt.Sprintf("✅ Linked **%s** to <@%s>.", res.MinecraftUsername, m.Author.ID))
	case linking.OutcomeExpired:
		b.reply(s, m.ChannelID, "⌛ That code expired. Run `/link` in Minecraft again.")
	case linking.OutcomeMinecraftTaken:
		b.reply(s, m.ChannelID, "❌ That Minecraft account is already linked to a Discord account.")
	case linking.OutcomeDiscordTaken:
		b.reply(s, m.ChannelID, "❌ Your Discord account is already linked to a Minecraft account.")
	default:
		b.reply(s, m.ChannelID, "❌ That code is invalid or already used.")
	}
}

// handleChatMessage relays a chat-channel message into the game, with the
// !online shortcut kept for members without slash-command access.
func (b *Bot) handleChatMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if strings.EqualFold(strings.TrimSpace(m.Content), "!online") {
		if err := b.producer.OnlineRequest(ctx, effectiveName(m), m.Author.ID); err != nil {
			slog.Error("failed to record online request", slog.Any("err", err))
			return
		}
		if err := s.MessageReactionAdd(m.ChannelID, m.ID, "👥"); err != nil {
			slog.Debug("failed to acknowledge online request", slog.Any("err", err))
		}
		return
	}

	content := sanitizeInbound(m.ContentWithMentionsReplaced())
	content = appendAttachments(content, m.Attachments)
	if content == "" {
		return
	}
	if err := b.producer.ChatMessage(ctx, effectiveName(m), content, m.Author.ID, userTag(m.Author)); err != nil {
		slog.Error("failed to record chat event", slog.Any("err", err))
	}
}

// handleAdminMessage runs !mc console commands for channel administrators.
func (b *Bot) handleAdminMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	const prefix = "!mc "
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}
	if !b.cfg.AllowRemoteCommands {
		b.reply(s, m.ChannelID, "❌ Remote commands are disabled.")
		return
	}

	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		slog.Error("permission lookup failed", slog.Any("err", err))
		return
	}
	if perms&discordgo.PermissionAdministrator == 0 {
		b.reply(s, m.ChannelID, "❌ You need the Administrator permission to run console commands.")
		return
	}

	command := strings.TrimSpace(strings.TrimPrefix(m.Content, prefix))
	if command == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := b.producer.RemoteCommand(ctx, command, userTag(m.Author), m.Author.ID); err != nil {
		slog.Error("failed to record remote command", slog.Any("err", err))
		b.reply(s, m.ChannelID, "⚠️ Failed to queue the command.")
		return
	}
	if err := s.MessageReactionAdd(m.ChannelID, m.ID, "✅"); err != nil {
		slog.Debug("failed to acknowledge remote command", slog.Any("err", err))
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.ApplicationCommandData().Name != "online" {
		return
	}

	by := "Discord"
	discordID := ""
	if i.Member != nil && i.Member.User != nil {
		discordID = i.Member.User.ID
		by = i.Member.User.Username
		if i.Member.Nick != "" {
			by = i.Member.Nick
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	content := "👥 Requested online player list."
	if err := b.producer.OnlineRequest(ctx, by, discordID); err != nil {
		slog.Error("failed to record online request", slog.Any("err", err))
		content = "⚠️ Failed to request the player list."
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("interaction response failed", slog.Any("err", err))
	}
}

func (b *Bot) reply(s *discordgo.Session, channelID, content string) {
	if _, err := s.ChannelMessageSend(channelID, content); err != nil {
		slog.Error("failed to send reply", slog.String("channel", channelID), slog.Any("err", err))
	}
}
