// Package config loads environment variables and provides a typed Config used
// across both processes. It applies sensible defaults so the binaries can run
// locally with minimal setup. For required credentials use ValidateBotReady
// or ValidateBridgeReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Datastore
	SupabaseURL string
	SupabaseKey string

	// Bridge
	ServerID            string
	PollURL             string
	PollSecret          string
	PollInterval        time.Duration
	AllowRemoteCommands bool

	// Discord
	DiscordToken   string
	GuildID        string
	ChatChannelID  string
	LinkChannelID  string
	AdminChannelID string
	LinkRoleID     string
	LinkOneToOne   bool

	// Webhooks
	ChatWebhookURL    string
	ReportsWebhookURL string
	ReportsThreadID   string
	StaffRoleID       string

	// Report rate limiting
	ReportsMaxPerPlayer  int
	ReportsWindowSeconds int

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail when
// credentials are missing; call the Validate helpers where a feature requires
// them. Missing optional variables disable features (e.g., the reports
// webhook).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	cfg.SupabaseKey = os.Getenv("SUPABASE_SERVICE_KEY")

	cfg.ServerID = os.Getenv("BRIDGE_SERVER_ID")
	if cfg.ServerID == "" {
		cfg.ServerID = "main"
	}
	cfg.PollURL = os.Getenv("BRIDGE_POLL_URL")
	cfg.PollSecret = os.Getenv("BRIDGE_SECRET")
	cfg.PollInterval = 2 * time.Second
	if v := os.Getenv("BRIDGE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid BRIDGE_POLL_INTERVAL (Go duration): %q", v)
		}
		cfg.PollInterval = d
	}
	cfg.AllowRemoteCommands = boolEnv("BRIDGE_ALLOW_REMOTE_COMMANDS", false)

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.GuildID = os.Getenv("DISCORD_GUILD_ID")
	cfg.ChatChannelID = os.Getenv("DISCORD_CHAT_CHANNEL_ID")
	cfg.LinkChannelID = os.Getenv("DISCORD_LINK_CHANNEL_ID")
	cfg.AdminChannelID = os.Getenv("DISCORD_ADMIN_CHANNEL_ID")
	cfg.LinkRoleID = os.Getenv("DISCORD_LINK_ROLE_ID")
	cfg.LinkOneToOne = boolEnv("DISCORD_LINK_ONE_TO_ONE", true)

	cfg.ChatWebhookURL = os.Getenv("CHAT_WEBHOOK_URL")
	cfg.ReportsWebhookURL = os.Getenv("REPORTS_WEBHOOK_URL")
	cfg.ReportsThreadID = os.Getenv("REPORTS_THREAD_ID")
	cfg.StaffRoleID = os.Getenv("DISCORD_STAFF_ROLE_ID")

	cfg.ReportsMaxPerPlayer = intEnv("REPORTS_MAX_PER_PLAYER", 3)
	cfg.ReportsWindowSeconds = intEnv("REPORTS_WINDOW_SECONDS", 86400)

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateBotReady checks required fields for the Discord-side process.
func (c *Config) ValidateBotReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	if c.SupabaseURL == "" || c.SupabaseKey == "" {
		return fmt.Errorf("missing datastore env: require SUPABASE_URL, SUPABASE_SERVICE_KEY")
	}
	return nil
}

// ValidateBridgeReady checks required fields for the game-side process.
func (c *Config) ValidateBridgeReady() error {
	if c.PollURL == "" {
		return fmt.Errorf("missing bridge env: require BRIDGE_POLL_URL")
	}
	if c.SupabaseURL == "" || c.SupabaseKey == "" {
		return fmt.Errorf("missing datastore env: require SUPABASE_URL, SUPABASE_SERVICE_KEY")
	}
	return nil
}

// ReportsWindow returns the report window as a duration.
func (c *Config) ReportsWindow() time.Duration {
	return time.Duration(c.ReportsWindowSeconds) * time.Second
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
