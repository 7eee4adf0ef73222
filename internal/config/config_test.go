package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(NewLoader(MapGetter{}))

	if cfg.DatabaseURL != DefaultDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, DefaultDatabaseURL)
	}
	if cfg.PoolMin != DefaultPoolMin || cfg.PoolMax != DefaultPoolMax {
		t.Errorf("pool bounds = %d/%d, want %d/%d", cfg.PoolMin, cfg.PoolMax, DefaultPoolMin, DefaultPoolMax)
	}
	if cfg.Order != DefaultOrder {
		t.Errorf("Order = %q, want %q", cfg.Order, DefaultOrder)
	}
	if cfg.Auth.Enabled() {
		t.Error("expected auth to be disabled without AUTH0_DOMAIN")
	}
	if !cfg.Log.Compress {
		t.Error("expected log compression on by default")
	}
}

func TestLoad_FromSettings(t *testing.T) {
	cfg := Load(NewLoader(MapGetter{
		"PORT":            "8080",
		"DATABASE_URL":    "postgres://guest@localhost/guestbook",
		"DB_POOL_MIN":     "2",
		"DB_POOL_MAX":     "8",
		"DB_POOL_BOGUS":   "x",
		"GUESTBOOK_ORDER": "desc",
		"LOG_COMPRESS":    "false",
		"AUTH0_DOMAIN":    "https://example.eu.auth0.com/",

		"NOTIFY_DISCORD_WEBHOOK_URL": "https://discord.com/api/webhooks/1/abc",
	}))

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.PoolMin != 2 || cfg.PoolMax != 8 {
		t.Errorf("pool bounds = %d/%d, want 2/8", cfg.PoolMin, cfg.PoolMax)
	}
	if cfg.Order != "desc" {
		t.Errorf("Order = %q, want desc", cfg.Order)
	}
	if cfg.Log.Compress {
		t.Error("expected LOG_COMPRESS=false to disable compression")
	}
	if cfg.Auth.Domain != "example.eu.auth0.com" {
		t.Errorf("Auth.Domain = %q, want bare host", cfg.Auth.Domain)
	}
	if !cfg.Notify.Enabled() || cfg.Notify.WebhookURL != "" {
		t.Errorf("unexpected notify config %+v", cfg.Notify)
	}
}

func TestValidate(t *testing.T) {
	secret := strings.Repeat("s", MinSessionSecretLen)

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid without auth",
			cfg:  Config{Port: 8080, DatabaseURL: DefaultDatabaseURL},
		},
		{
			name:    "missing port",
			cfg:     Config{DatabaseURL: DefaultDatabaseURL},
			wantErr: "PORT",
		},
		{
			name:    "bad bind",
			cfg:     Config{Port: 8080, Bind: "localhost", DatabaseURL: DefaultDatabaseURL},
			wantErr: "bind",
		},
		{
			name:    "bad subnet",
			cfg:     Config{Port: 8080, AllowSubnet: "10.0.0.0", DatabaseURL: DefaultDatabaseURL},
			wantErr: "CIDR",
		},
		{
			name: "auth missing client settings",
			cfg: Config{Port: 8080, DatabaseURL: DefaultDatabaseURL, Auth: AuthConfig{
				Domain: "example.auth0.com", SessionSecret: secret,
			}},
			wantErr: "AUTH0_CLIENT_ID",
		},
		{
			name: "auth short secret",
			cfg: Config{Port: 8080, DatabaseURL: DefaultDatabaseURL, Auth: AuthConfig{
				Domain: "example.auth0.com", ClientID: "id", ClientSecret: "secret",
				CallbackURL: "http://localhost:8080/callback", SessionSecret: "short",
			}},
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "bad webhook URL",
			cfg:     Config{Port: 8080, DatabaseURL: DefaultDatabaseURL, Notify: NotifyConfig{WebhookURL: "ftp://example.com/hook"}},
			wantErr: "NOTIFY_WEBHOOK_URL",
		},
		{
			name: "webhook URL",
			cfg:  Config{Port: 8080, DatabaseURL: DefaultDatabaseURL, Notify: NotifyConfig{WebhookURL: "https://example.com/hook"}},
		},
		{
			name: "auth complete",
			cfg: Config{Port: 8080, DatabaseURL: DefaultDatabaseURL, Auth: AuthConfig{
				Domain: "example.auth0.com", ClientID: "id", ClientSecret: "secret",
				CallbackURL: "http://localhost:8080/callback", SessionSecret: secret,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoaderTypedAccess(t *testing.T) {
	l := NewLoader(MapGetter{
		"TIMEOUT":  "1500ms",
		"BAD_TIME": "soon",
		"FLAG":     "1",
		"NUM":      "abc",
	})

	if got := l.Duration("TIMEOUT", time.Second); got != 1500*time.Millisecond {
		t.Errorf("Duration = %s, want 1.5s", got)
	}
	if got := l.Duration("BAD_TIME", time.Second); got != time.Second {
		t.Errorf("Duration fallback = %s, want 1s", got)
	}
	if !l.Bool("FLAG", false) {
		t.Error("expected FLAG=1 to parse as true")
	}
	if got := l.Int("NUM", 7); got != 7 {
		t.Errorf("Int fallback = %d, want 7", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GUESTBOOK_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("GUESTBOOK_TEST_DOTENV", "")
	os.Unsetenv("GUESTBOOK_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv returned error: %v", err)
	}
	if got := NewLoader(EnvGetter{}).String("GUESTBOOK_TEST_DOTENV", ""); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}
