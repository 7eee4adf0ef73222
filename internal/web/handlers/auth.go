package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/guestbook/internal/auth"
	"github.com/saltyorg/guestbook/internal/web/middleware"
)

const stateMaxAge = 10 * time.Minute

// Login redirects to the identity provider
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if !h.LoginEnabled() {
		http.NotFound(w, r)
		return
	}
	if middleware.GetSession(r.Context()) != nil {
		h.redirect(w, r, "/")
		return
	}

	state, err := auth.NewState()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate OAuth state")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Lax: the provider redirects back cross-site
	cookie := &http.Cookie{
		Name:     auth.StateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the authorization code flow and starts a session
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.LoginEnabled() {
		http.NotFound(w, r)
		return
	}

	h.clearCookie(w, auth.StateCookie, http.SameSiteLaxMode)

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Warn().Str("error", e).Str("description", q.Get("error_description")).Msg("Login refused by identity provider")
		h.flashErr(w, "Login was cancelled")
		h.redirect(w, r, "/")
		return
	}

	cookie, err := r.Cookie(auth.StateCookie)
	if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		log.Warn().Str("remote", r.RemoteAddr).Msg("OAuth state mismatch")
		http.Error(w, "Invalid login state", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Msg("Login failed")
		h.flashErr(w, "Login failed")
		h.redirect(w, r, "/")
		return
	}

	profile, err := h.provider.UserInfo(r.Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch user profile")
		h.flashErr(w, "Login failed")
		h.redirect(w, r, "/")
		return
	}

	session, err := h.sessions.Create(r.Context(), profile, token)
	if err != nil {
		h.storageFailure(w, err, "Failed to create session")
		return
	}

	sessionCookie := &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	h.applyCookieSecurity(sessionCookie)
	http.SetCookie(w, sessionCookie)

	log.Info().Str("subject", session.Subject).Str("name", session.DisplayName).Msg("User logged in")
	h.redirect(w, r, "/")
}

// Logout ends the local session and the provider session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.LoginEnabled() {
		http.NotFound(w, r)
		return
	}

	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			log.Debug().Err(err).Msg("Failed to delete session during logout")
		}
	}
	h.clearCookie(w, auth.SessionCookie, http.SameSiteLaxMode)

	h.redirect(w, r, h.provider.LogoutURL(h.provider.HomeURL()))
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name string, sameSite http.SameSite) {
	http.SetCookie(w, auth.ClearedCookie(name, sameSite, h.isDev))
}
