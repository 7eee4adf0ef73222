package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/guestbook/internal/database"
	"github.com/saltyorg/guestbook/internal/guestbook"
	"github.com/saltyorg/guestbook/internal/web/live"
)

// GuestbookPage is the content of the guestbook template
type GuestbookPage struct {
	Name       string
	Entries    []guestbook.Entry
	Order      string
	OtherOrder string
}

// Home lists the guestbook entries
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	order, err := guestbook.ParseOrder(r.URL.Query().Get("order"), h.defaultOrder)
	if err != nil {
		http.Error(w, "Invalid order, expected asc or desc", http.StatusBadRequest)
		return
	}

	entries, err := h.entries.ListEntries(r.Context(), order)
	if err != nil {
		h.storageFailure(w, err, "Failed to list guestbook entries")
		return
	}

	other := guestbook.Descending
	if order == guestbook.Descending {
		other = guestbook.Ascending
	}

	h.render(w, r, "guestbook.html", GuestbookPage{
		Name:       r.URL.Query().Get("name"),
		Entries:    entries,
		Order:      order.String(),
		OtherOrder: other.String(),
	})
}

// Submit adds an entry from the form and redirects back to the list
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	entry, err := h.entries.AddEntry(r.Context(), r.PostForm.Get("name"), r.PostForm.Get("message"))
	if err != nil {
		var verr *guestbook.ValidationError
		if errors.As(err, &verr) {
			log.Debug().Strs("missing", verr.Missing).Msg("Guestbook entry rejected")
			h.flashErr(w, "Please fill in both your name and a message")
			h.redirect(w, r, "/")
			return
		}
		h.storageFailure(w, err, "Failed to add guestbook entry")
		return
	}

	log.Info().Int64("id", entry.ID).Str("name", entry.Name).Msg("Guestbook entry added")
	if h.feed != nil {
		h.feed.Broadcast(live.Event{Type: live.EventEntryAdded, Data: entry})
	}
	if h.notifier != nil {
		h.notifier.EntryAdded(entry.ID, entry.Name, entry.Message)
	}

	h.flash(w, "Thanks for signing the guestbook")
	h.redirect(w, r, "/")
}

// Healthz reports connection pool statistics
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	stats := h.stats.Stats()
	status := http.StatusOK
	if stats.Closed {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, stats)
}

// storageFailure maps transient pool and storage errors to 503 and everything else to 500
func (h *Handlers) storageFailure(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, database.ErrPoolExhausted),
		errors.Is(err, database.ErrStorageUnavailable),
		errors.Is(err, database.ErrPoolClosed):
		log.Warn().Err(err).Msg(msg)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg(msg)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
