package bot

import (
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	roleMentionRe    = regexp.MustCompile(`<@&\d+>`)
	channelMentionRe = regexp.MustCompile(`<#\d+>`)
	customEmojiRe    = regexp.MustCompile(`<a?(:\w+:)\d+>`)
)

// sanitizeInbound strips platform markup that would render as raw angle
// brackets in the game. User mentions are already resolved by the session
// before this runs; roles and channels become neutral placeholders, custom
// emoji keep their :name: shorthand.
func sanitizeInbound(s string) string {
	s = roleMentionRe.ReplaceAllString(s, "[role]")
	s = channelMentionRe.ReplaceAllString(s, "[channel]")
	s = customEmojiRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// appendAttachments adds attachment URLs so image-only messages still carry
// something visible in game.
func appendAttachments(content string, attachments []*discordgo.MessageAttachment) string {
	if len(attachments) == 0 {
		return content
	}
	parts := make([]string, 0, len(attachments)+1)
	if content != "" {
		parts = append(parts, content)
	}
	for _, a := range attachments {
		if a != nil && a.URL != "" {
			parts = append(parts, a.URL)
		}
	}
	return strings.Join(parts, " ")
}

// effectiveName prefers the guild nickname, then the display name, then the
// account username.
func effectiveName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// userTag renders the stored account tag. Migrated accounts have no usable
// discriminator and go by bare username.
func userTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}
