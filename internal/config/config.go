package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultDatabaseURL   = "sqlite://./guestbook.db"
	DefaultPoolMin       = 1
	DefaultPoolMax       = 10
	DefaultOrder         = "asc"
	DefaultPruneSchedule = "@every 15m"
	MinSessionSecretLen  = 32
)

// AuthConfig holds the Auth0 application settings. Auth is disabled when Domain is empty.
type AuthConfig struct {
	Domain        string
	ClientID      string
	ClientSecret  string
	CallbackURL   string
	SessionSecret string
	PruneSchedule string
}

// Enabled reports whether login is configured
func (a AuthConfig) Enabled() bool {
	return a.Domain != ""
}

// LogConfig controls the rotating log file
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NotifyConfig selects where new entries are announced. Empty URLs disable a target.
type NotifyConfig struct {
	WebhookURL        string
	WebhookHeaders    string
	DiscordWebhookURL string
	DiscordUsername   string
	DiscordAvatarURL  string
}

// Enabled reports whether any notification target is configured
func (n NotifyConfig) Enabled() bool {
	return n.WebhookURL != "" || n.DiscordWebhookURL != ""
}

// Config is the complete runtime configuration
type Config struct {
	Port        int
	Bind        string
	AllowSubnet string
	DevMode     bool

	DatabaseURL string
	PoolMin     int
	PoolMax     int
	Order       string

	Log    LogConfig
	Auth   AuthConfig
	Notify NotifyConfig
}

// LoadDotEnv loads variables from the given .env files without overriding the
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the configuration through l, falling back to defaults
func Load(l *Loader) *Config {
	return &Config{
		Port:        l.Int("PORT", 0),
		Bind:        l.String("BIND", ""),
		AllowSubnet: l.String("ALLOW_SUBNET", ""),
		DevMode:     l.Bool("DEV_MODE", false),

		DatabaseURL: l.String("DATABASE_URL", DefaultDatabaseURL),
		PoolMin:     l.Int("DB_POOL_MIN", DefaultPoolMin),
		PoolMax:     l.Int("DB_POOL_MAX", DefaultPoolMax),
		Order:       l.String("GUESTBOOK_ORDER", DefaultOrder),

		Log: LogConfig{
			File:       l.String("LOG_FILE", ""),
			MaxSizeMB:  l.Int("LOG_MAX_SIZE_MB", 50),
			MaxBackups: l.Int("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: l.Int("LOG_MAX_AGE_DAYS", 30),
			Compress:   l.Bool("LOG_COMPRESS", true),
		},

		Auth: AuthConfig{
			Domain:        strings.TrimSuffix(strings.TrimPrefix(l.String("AUTH0_DOMAIN", ""), "https://"), "/"),
			ClientID:      l.String("AUTH0_CLIENT_ID", ""),
			ClientSecret:  l.String("AUTH0_CLIENT_SECRET", ""),
			CallbackURL:   l.String("AUTH0_CALLBACK_URL", ""),
			SessionSecret: l.String("SESSION_SECRET", ""),
			PruneSchedule: l.String("SESSION_PRUNE_SCHEDULE", DefaultPruneSchedule),
		},

		Notify: NotifyConfig{
			WebhookURL:        l.String("NOTIFY_WEBHOOK_URL", ""),
			WebhookHeaders:    l.String("NOTIFY_WEBHOOK_HEADERS", ""),
			DiscordWebhookURL: l.String("NOTIFY_DISCORD_WEBHOOK_URL", ""),
			DiscordUsername:   l.String("NOTIFY_DISCORD_USERNAME", ""),
			DiscordAvatarURL:  l.String("NOTIFY_DISCORD_AVATAR_URL", ""),
		},
	}
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("--port flag or PORT environment variable is required (1-65535)")
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return fmt.Errorf("invalid bind address: %s", c.Bind)
	}
	if c.AllowSubnet != "" {
		if _, _, err := net.ParseCIDR(c.AllowSubnet); err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", c.AllowSubnet)
		}
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	for name, raw := range map[string]string{
		"NOTIFY_WEBHOOK_URL":         c.Notify.WebhookURL,
		"NOTIFY_DISCORD_WEBHOOK_URL": c.Notify.DiscordWebhookURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: must be an http(s) URL", name)
		}
	}

	if !c.Auth.Enabled() {
		return nil
	}

	var missing []string
	if c.Auth.ClientID == "" {
		missing = append(missing, "AUTH0_CLIENT_ID")
	}
	if c.Auth.ClientSecret == "" {
		missing = append(missing, "AUTH0_CLIENT_SECRET")
	}
	if c.Auth.CallbackURL == "" {
		missing = append(missing, "AUTH0_CALLBACK_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("AUTH0_DOMAIN is set but %s missing", strings.Join(missing, ", "))
	}
	if len(c.Auth.SessionSecret) < MinSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters when login is enabled", MinSessionSecretLen)
	}
	return nil
}

// AllowedNet returns the parsed allow-subnet, or nil when unrestricted
func (c *Config) AllowedNet() *net.IPNet {
	if c.AllowSubnet == "" {
		return nil
	}
	_, n, err := net.ParseCIDR(c.AllowSubnet)
	if err != nil {
		return nil
	}
	return n
}
