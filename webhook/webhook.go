// Package webhook delivers formatted notifications to a Discord webhook URL.
// It enforces platform limits (length caps, mention scrubbing, explicit
// allowed_mentions) and backs off for a fixed cool-down when the remote
// answers 429. Failures never propagate past this boundary; every send
// reports a bool.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tekkabyte/minelink/telemetry"
)

const (
	contentLimit    = 2000
	cooldown        = 5 * time.Second
	maxErrBody      = 1500
	threadNameCap   = 70
	minSnowflakeLen = 16
)

var (
	roleMentionRe = regexp.MustCompile(`<@&\d+>`)
	userMentionRe = regexp.MustCompile(`<@!?\d+>`)
	nonDigitRe    = regexp.MustCompile(`[^0-9]`)
)

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []field `json:"fields,omitempty"`
}

// allowedMentions is always attached so no mention class is honored unless
// explicitly listed.
type allowedMentions struct {
	Parse []string `json:"parse"`
	Users []string `json:"users"`
	Roles []string `json:"roles"`
}

func noMentions() allowedMentions {
	return allowedMentions{Parse: []string{}, Users: []string{}, Roles: []string{}}
}

type message struct {
	Content         string          `json:"content,omitempty"`
	Embeds          []embed         `json:"embeds,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
	ThreadName      string          `json:"thread_name,omitempty"`
}

// Client posts to one webhook URL, optionally scoped to a thread.
type Client struct {
	URL        string
	ThreadID   string // overrides thread_name-based routing when set
	HTTPClient *http.Client

	// Now is the clock, replaceable in tests.
	Now func() time.Time

	mu           sync.Mutex
	blockedUntil time.Time
}

// New returns a Client with bounded request timeouts.
func New(webhookURL, threadID string) *Client {
	return &Client{
		URL:        strings.TrimSuffix(webhookURL, "/"),
		ThreadID:   strings.TrimSpace(threadID),
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
		Now:        time.Now,
	}
}

// SendChat relays an in-game chat line. Untrusted content is scrubbed and
// capped before leaving the process.
func (c *Client) SendChat(playerName, content string) bool {
	text := "**" + playerName + "**: " + content
	text = ScrubMentions(text)
	text = capContent(text)
	return c.send(message{Content: text, AllowedMentions: noMentions()})
}

// SendJoin announces a player joining.
func (c *Client) SendJoin(playerName string) bool {
	return c.sendSimpleEmbed("Player Joined", "✅ **"+playerName+"** joined the server.")
}

// SendLeave announces a player leaving.
func (c *Client) SendLeave(playerName string) bool {
	return c.sendSimpleEmbed("Player Left", "👋 **"+playerName+"** left the server.")
}

// SendOnline posts the roster snapshot as an embed.
func (c *Client) SendOnline(names []string) bool {
	desc := "*No players online*"
	if len(names) > 0 {
		desc = strings.Join(names, "\n")
	}
	m := message{
		Embeds:          []embed{{Title: fmt.Sprintf("👥 Online Players (%d)", len(names)), Description: desc}},
		AllowedMentions: noMentions(),
	}
	return c.send(m)
}

// SendReport posts a report embed. The staff role and reporter ids are the
// only mentions allow-listed; both must be valid snowflakes to be honored.
func (c *Client) SendReport(staffRoleID, reporter, reporterUUID, reporterDiscordID, target, reason string) bool {
	roleID := NormalizeSnowflake(staffRoleID)
	userID := NormalizeSnowflake(reporterDiscordID)

	if strings.TrimSpace(reason) == "" {
		reason = "No reason provided."
	}

	staffMention := ""
	if roleID != "" {
		staffMention = "<@&" + roleID + "> "
	}

	allowed := noMentions()
	if roleID != "" {
		allowed.Roles = append(allowed.Roles, roleID)
	}
	if userID != "" {
		allowed.Users = append(allowed.Users, userID)
	}

	m := message{
		Content: staffMention + "Report filed by <@" + userID + ">",
		Embeds: []embed{{
			Title:       "🚩 New Report",
			Description: "A player report was submitted.",
			Fields: []field{
				{Name: "Reporter", Value: reporter + " (`" + reporterUUID + "`)", Inline: true},
				{Name: "Target", Value: target, Inline: true},
				{Name: "Reason", Value: reason},
			},
		}},
		AllowedMentions: allowed,
	}
	// Forum-style webhooks need a thread name unless a thread id is forced.
	if c.ThreadID == "" {
		m.ThreadName = "Report: " + truncate(target, threadNameCap)
	}
	return c.send(m)
}

func (c *Client) sendSimpleEmbed(title, description string) bool {
	return c.send(message{
		Embeds:          []embed{{Title: title, Description: description}},
		AllowedMentions: noMentions(),
	})
}

// send performs the POST. During a cool-down it fails fast without touching
// the network.
func (c *Client) send(m message) bool {
	now := c.Now()
	c.mu.Lock()
	blocked := now.Before(c.blockedUntil)
	c.mu.Unlock()
	if blocked {
		telemetry.Inc(telemetry.WebhookThrottled)
		return false
	}

	body, err := json.Marshal(m)
	if err != nil {
		slog.Error("webhook payload marshal failed", slog.Any("err", err))
		return false
	}

	req, err := http.NewRequest(http.MethodPost, c.buildURL(), bytes.NewReader(body))
	if err != nil {
		slog.Error("webhook request build failed", slog.Any("err", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		telemetry.Inc(telemetry.WebhookFailures)
		slog.Warn("webhook POST failed", slog.Any("err", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.mu.Lock()
		c.blockedUntil = c.Now().Add(cooldown)
		c.mu.Unlock()
		telemetry.Inc(telemetry.WebhookThrottled)
		slog.Warn("webhook rate limited (429), backing off", slog.Duration("cooldown", cooldown))
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.Inc(telemetry.WebhookFailures)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		slog.Warn("webhook POST non-2xx", slog.Int("status", resp.StatusCode), slog.String("body", string(b)))
		return false
	}
	telemetry.Inc(telemetry.WebhookSends)
	return true
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) buildURL() string {
	if c.ThreadID == "" {
		return c.URL
	}
	sep := "?"
	if strings.Contains(c.URL, "?") {
		sep = "&"
	}
	return c.URL + sep + "thread_id=" + url.QueryEscape(c.ThreadID)
}

// ScrubMentions neutralizes broad-audience pings and raw mention tokens in
// untrusted text. Deliberate mentions go through allowed_mentions instead.
func ScrubMentions(s string) string {
	s = strings.ReplaceAll(s, "@everyone", "@\u200beveryone")
	s = strings.ReplaceAll(s, "@here", "@\u200bhere")
	s = roleMentionRe.ReplaceAllString(s, "[role]")
	s = userMentionRe.ReplaceAllString(s, "[user]")
	return s
}

// NormalizeSnowflake strips non-digits and rejects anything shorter than a
// plausible Discord snowflake.
func NormalizeSnowflake(s string) string {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if len(digits) < minSnowflakeLen {
		return ""
	}
	return digits
}

func capContent(s string) string {
	r := []rune(s)
	if len(r) <= contentLimit {
		return s
	}
	return string(r[:contentLimit-3]) + "..."
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
