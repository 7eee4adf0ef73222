package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/guestbook/internal/auth"
	"github.com/saltyorg/guestbook/internal/database"
	"github.com/saltyorg/guestbook/internal/guestbook"
	"github.com/saltyorg/guestbook/internal/web/live"
	"github.com/saltyorg/guestbook/internal/web/middleware"
)

// EntryStore is the guestbook surface the handlers need
type EntryStore interface {
	ListEntries(ctx context.Context, order guestbook.Order) ([]guestbook.Entry, error)
	AddEntry(ctx context.Context, name, message string) (guestbook.Entry, error)
}

// StatsSource reports connection pool statistics
type StatsSource interface {
	Stats() database.Stats
}

// Broadcaster publishes live events
type Broadcaster interface {
	Broadcast(event live.Event)
}

// Notifier announces new entries to outside services
type Notifier interface {
	EntryAdded(id int64, name, message string)
}

var (
	_ EntryStore  = (*guestbook.Repository)(nil)
	_ StatsSource = (*database.Pool)(nil)
	_ Broadcaster = (*live.Hub)(nil)
)

// Handlers contains all HTTP handlers
type Handlers struct {
	entries      EntryStore
	templates    map[string]*template.Template
	stats        StatsSource
	feed         Broadcaster
	notifier     Notifier
	provider     *auth.Provider
	sessions     *auth.SessionStore
	defaultOrder guestbook.Order
	version      string
	isDev        bool
}

// New creates a new Handlers instance
func New(entries EntryStore, templates map[string]*template.Template, stats StatsSource, feed Broadcaster, isDev bool) *Handlers {
	return &Handlers{
		entries:      entries,
		templates:    templates,
		stats:        stats,
		feed:         feed,
		defaultOrder: guestbook.Ascending,
		isDev:        isDev,
	}
}

// SetAuth enables the login routes
func (h *Handlers) SetAuth(provider *auth.Provider, sessions *auth.SessionStore) {
	h.provider = provider
	h.sessions = sessions
}

// SetNotifier sets where new entries are announced
func (h *Handlers) SetNotifier(n Notifier) {
	h.notifier = n
}

// LoginEnabled reports whether SetAuth was called with a provider
func (h *Handlers) LoginEnabled() bool {
	return h.provider != nil && h.sessions != nil
}

// SetDefaultOrder sets the order used when a request does not ask for one
func (h *Handlers) SetDefaultOrder(order guestbook.Order) {
	h.defaultOrder = order
}

// SetVersion sets the version shown in the page footer
func (h *Handlers) SetVersion(version string) {
	h.version = version
}

// PageData contains common data for all pages
type PageData struct {
	Title        string
	Session      *auth.Session
	LoginEnabled bool
	Flash        string
	FlashErr     string
	Content      any
	Version      string
}

// render renders a template with common data
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	pageData := PageData{
		Title:        "Guestbook",
		Session:      middleware.GetSession(r.Context()),
		LoginEnabled: h.LoginEnabled(),
		Content:      data,
		Version:      h.version,
	}

	if cookie, err := r.Cookie("flash"); err == nil {
		pageData.Flash = cookie.Value
		clear := &http.Cookie{Name: "flash", MaxAge: -1, Path: "/"}
		h.applyCookieSecurity(clear)
		http.SetCookie(w, clear)
	}
	if cookie, err := r.Cookie("flash_err"); err == nil {
		pageData.FlashErr = cookie.Value
		clear := &http.Cookie{Name: "flash_err", MaxAge: -1, Path: "/"}
		h.applyCookieSecurity(clear)
		http.SetCookie(w, clear)
	}

	tmpl, ok := h.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", pageData); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// flash sets a flash message
func (h *Handlers) flash(w http.ResponseWriter, message string) {
	c := &http.Cookie{
		Name:     "flash",
		Value:    message,
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
	}
	h.applyCookieSecurity(c)
	http.SetCookie(w, c)
}

// flashErr sets an error flash message
func (h *Handlers) flashErr(w http.ResponseWriter, message string) {
	c := &http.Cookie{
		Name:     "flash_err",
		Value:    message,
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
	}
	h.applyCookieSecurity(c)
	http.SetCookie(w, c)
}

// redirect redirects to a URL
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// writeJSON sends v as a JSON response with the given status
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// applyCookieSecurity sets Secure/SameSite defaults based on environment.
func (h *Handlers) applyCookieSecurity(c *http.Cookie) {
	auth.ApplyCookieSecurity(c, h.isDev)
}
