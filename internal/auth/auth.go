// Package auth implements Auth0 login and server-side sessions.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days
	// SessionCookie holds the session ID
	SessionCookie = "session"
	// StateCookie holds the OAuth state between login and callback
	StateCookie = "oauth_state"
)

// Profile is the subset of the OIDC userinfo response the guestbook uses
type Profile struct {
	Subject  string `json:"sub"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// DisplayName picks the friendliest non-empty identifier
func (p Profile) DisplayName() string {
	for _, s := range []string{p.Name, p.Nickname, p.Email} {
		if s != "" {
			return s
		}
	}
	return p.Subject
}

// Session represents a logged-in browser session
type Session struct {
	ID          string
	Subject     string
	DisplayName string
	ExpiresAt   time.Time
	CreatedAt   time.Time

	sealedToken []byte
}

// NewState returns a random value for the OAuth state parameter
func NewState() (string, error) {
	return randomHex(16)
}

// generateSessionID creates a cryptographically secure session ID
func generateSessionID() (string, error) {
	return randomHex(32)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
