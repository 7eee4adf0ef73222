package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/saltyorg/guestbook/internal/database"
)

// Store is the unit-of-work surface sessions are persisted through
type Store interface {
	WithCursor(ctx context.Context, commit bool, fn func(*database.Cursor) error) error
}

// SessionStore keeps sessions server-side; the browser only holds the ID.
type SessionStore struct {
	store    Store
	sealer   *Sealer
	duration time.Duration
	now      func() time.Time
}

// NewSessionStore creates a new session store
func NewSessionStore(store Store, sealer *Sealer) *SessionStore {
	return &SessionStore{
		store:    store,
		sealer:   sealer,
		duration: SessionDuration,
		now:      time.Now,
	}
}

// Create stores a new session for profile holding the sealed token
func (s *SessionStore) Create(ctx context.Context, profile *Profile, token *oauth2.Token) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}
	sealed, err := s.sealer.Seal(raw, []byte(id))
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:          id,
		Subject:     profile.Subject,
		DisplayName: profile.DisplayName(),
		ExpiresAt:   now.Add(s.duration),
		CreatedAt:   now,
		sealedToken: sealed,
	}

	err = s.store.WithCursor(ctx, true, func(c *database.Cursor) error {
		_, err := c.Exec(ctx, `
			INSERT INTO oauth_sessions (id, subject, display_name, token, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, session.ID, session.Subject, session.DisplayName, sealed, session.ExpiresAt.Unix(), session.CreatedAt.Unix())
		return err
	})
	if err != nil {
		return nil, database.StorageError("create session", err)
	}
	return session, nil
}

// Get retrieves a session by ID. Missing and expired sessions yield nil, nil;
// expired sessions are deleted on the way.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	session := &Session{}
	var expiresAt, createdAt int64
	err := s.store.WithCursor(ctx, false, func(c *database.Cursor) error {
		return c.QueryRow(ctx, `
			SELECT id, subject, display_name, token, expires_at, created_at
			FROM oauth_sessions WHERE id = ?
		`, id).Scan(&session.ID, &session.Subject, &session.DisplayName, &session.sealedToken, &expiresAt, &createdAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.StorageError("get session", err)
	}

	session.ExpiresAt = time.Unix(expiresAt, 0)
	session.CreatedAt = time.Unix(createdAt, 0)

	if !s.now().Before(session.ExpiresAt) {
		if err := s.Delete(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}
	return session, nil
}

// Token unseals the OAuth token stored with session
func (s *SessionStore) Token(session *Session) (*oauth2.Token, error) {
	raw, err := s.sealer.Open(session.sealedToken, []byte(session.ID))
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	err := s.store.WithCursor(ctx, true, func(c *database.Cursor) error {
		_, err := c.Exec(ctx, "DELETE FROM oauth_sessions WHERE id = ?", id)
		return err
	})
	if err != nil {
		return database.StorageError("delete session", err)
	}
	return nil
}

// PruneExpired deletes every expired session and returns how many were removed
func (s *SessionStore) PruneExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := s.store.WithCursor(ctx, true, func(c *database.Cursor) error {
		result, err := c.Exec(ctx, "DELETE FROM oauth_sessions WHERE expires_at <= ?", s.now().Unix())
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, database.StorageError("prune sessions", err)
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Pruned expired sessions")
	}
	return removed, nil
}
