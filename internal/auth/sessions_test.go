package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/saltyorg/guestbook/internal/database"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()

	pool, err := database.Open(context.Background(), database.Config{
		DSN:            "sqlite://" + filepath.Join(t.TempDir(), "sessions.db"),
		MaxConns:       2,
		AcquireTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})
	if err := pool.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	sealer, err := NewSealer(testSecret)
	if err != nil {
		t.Fatalf("NewSealer returned error: %v", err)
	}
	return NewSessionStore(pool, sealer)
}

func TestSessionStore_CreateGetToken(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	profile := &Profile{Subject: "auth0|123", Nickname: "ada"}
	token := &oauth2.Token{AccessToken: "access", TokenType: "Bearer", RefreshToken: "refresh"}

	created, err := store.Create(ctx, profile, token)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(created.ID) != 64 {
		t.Fatalf("expected 64 hex char session id, got %q", created.ID)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected session to be found")
	}
	if got.Subject != "auth0|123" || got.DisplayName != "ada" {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.ExpiresAt.Unix() != created.ExpiresAt.Unix() {
		t.Fatalf("ExpiresAt = %s, want %s", got.ExpiresAt, created.ExpiresAt)
	}

	unsealed, err := store.Token(got)
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if unsealed.AccessToken != "access" || unsealed.RefreshToken != "refresh" {
		t.Fatalf("unexpected token %+v", unsealed)
	}
}

func TestSessionStore_GetMissing(t *testing.T) {
	store := newTestSessionStore(t)

	for _, id := range []string{"", "does-not-exist"} {
		got, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%q) returned error: %v", id, err)
		}
		if got != nil {
			t.Fatalf("Get(%q) = %+v, want nil", id, got)
		}
	}
}

func TestSessionStore_ExpiredAndDeleted(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	session, err := store.Create(ctx, &Profile{Subject: "auth0|1"}, &oauth2.Token{AccessToken: "a"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	store.now = func() time.Time { return now.Add(SessionDuration + time.Second) }
	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatal("expected expired session to be treated as missing")
	}

	store.now = func() time.Time { return now }
	if got, _ := store.Get(ctx, session.ID); got != nil {
		t.Fatal("expected expired session to have been deleted")
	}

	other, err := store.Create(ctx, &Profile{Subject: "auth0|2"}, &oauth2.Token{AccessToken: "b"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := store.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if got, _ := store.Get(ctx, other.ID); got != nil {
		t.Fatal("expected deleted session to be gone")
	}
}

func TestSessionStore_PruneExpired(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	for _, sub := range []string{"a", "b"} {
		if _, err := store.Create(ctx, &Profile{Subject: sub}, &oauth2.Token{AccessToken: sub}); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	store.now = func() time.Time { return now.Add(time.Hour) }
	fresh, err := store.Create(ctx, &Profile{Subject: "c"}, &oauth2.Token{AccessToken: "c"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	store.now = func() time.Time { return now.Add(SessionDuration + time.Minute) }
	removed, err := store.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 sessions pruned, got %d", removed)
	}
	if got, _ := store.Get(ctx, fresh.ID); got == nil {
		t.Fatal("expected unexpired session to survive pruning")
	}
}

func TestProfileDisplayName(t *testing.T) {
	tests := []struct {
		profile Profile
		want    string
	}{
		{Profile{Subject: "s", Name: "Ada Lovelace", Nickname: "ada"}, "Ada Lovelace"},
		{Profile{Subject: "s", Nickname: "ada", Email: "ada@example.com"}, "ada"},
		{Profile{Subject: "s", Email: "ada@example.com"}, "ada@example.com"},
		{Profile{Subject: "auth0|1"}, "auth0|1"},
	}
	for _, tt := range tests {
		if got := tt.profile.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}
