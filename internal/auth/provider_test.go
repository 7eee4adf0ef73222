package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/saltyorg/guestbook/internal/config"
)

// fakeTenant mimics the Auth0 endpoints the provider uses.
func fakeTenant(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("code") != "good-code" || r.Form.Get("client_id") != "client" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "id-token",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"auth0|42","name":"Grace Hopper","email":"grace@example.com"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, tenantURL string) *Provider {
	t.Helper()
	return NewProvider(config.AuthConfig{
		Domain:       tenantURL,
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://localhost:8080/callback",
	}, nil)
}

func TestProvider_AuthCodeURL(t *testing.T) {
	p := NewProvider(config.AuthConfig{
		Domain:      "example.eu.auth0.com",
		ClientID:    "client",
		CallbackURL: "http://localhost:8080/callback",
	}, nil)

	u, err := url.Parse(p.AuthCodeURL("state-xyz"))
	if err != nil {
		t.Fatalf("invalid auth URL: %v", err)
	}
	if u.Scheme != "https" || u.Host != "example.eu.auth0.com" || u.Path != "/authorize" {
		t.Fatalf("unexpected auth URL %s", u)
	}
	q := u.Query()
	if q.Get("state") != "state-xyz" || q.Get("client_id") != "client" || q.Get("response_type") != "code" {
		t.Fatalf("unexpected auth URL query %v", q)
	}
	if q.Get("scope") != "openid profile email" {
		t.Fatalf("unexpected scope %q", q.Get("scope"))
	}
}

func TestProvider_ExchangeAndUserInfo(t *testing.T) {
	tenant := fakeTenant(t)
	p := newTestProvider(t, tenant.URL)
	ctx := context.Background()

	token, err := p.Exchange(ctx, "good-code")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if token.AccessToken != "access-123" {
		t.Fatalf("unexpected access token %q", token.AccessToken)
	}

	profile, err := p.UserInfo(ctx, token)
	if err != nil {
		t.Fatalf("UserInfo returned error: %v", err)
	}
	if profile.Subject != "auth0|42" || profile.DisplayName() != "Grace Hopper" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestProvider_ExchangeRejected(t *testing.T) {
	tenant := fakeTenant(t)
	p := newTestProvider(t, tenant.URL)

	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected exchange of a bad code to fail")
	}
}

func TestProvider_LogoutURL(t *testing.T) {
	p := NewProvider(config.AuthConfig{Domain: "example.auth0.com", ClientID: "client"}, nil)

	got := p.LogoutURL("http://localhost:8080/")
	if !strings.HasPrefix(got, "https://example.auth0.com/v2/logout?") {
		t.Fatalf("unexpected logout URL %s", got)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("returnTo") != "http://localhost:8080/" || u.Query().Get("client_id") != "client" {
		t.Fatalf("unexpected logout query %v", u.Query())
	}
}

func TestProvider_HomeURL(t *testing.T) {
	tests := []struct {
		callback string
		want     string
	}{
		{"http://localhost:8080/callback", "http://localhost:8080/"},
		{"https://guestbook.example.com/auth/callback?x=1", "https://guestbook.example.com/"},
		{"", "/"},
	}

	for _, tt := range tests {
		p := NewProvider(config.AuthConfig{Domain: "example.auth0.com", CallbackURL: tt.callback}, nil)
		if got := p.HomeURL(); got != tt.want {
			t.Errorf("HomeURL() with callback %q = %q, want %q", tt.callback, got, tt.want)
		}
	}
}
