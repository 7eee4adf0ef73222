// Package notification forwards guestbook events to outside services.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event that can trigger a notification
type EventType string

const (
	EventEntryAdded EventType = "entry_added"
	EventTest       EventType = "test"
)

const (
	queueSize   = 100
	sendTimeout = 30 * time.Second
)

// Event represents a notification event
type Event struct {
	Type      EventType
	Title     string
	Message   string
	Fields    map[string]string
	Timestamp time.Time
}

// Provider is the interface for notification providers
type Provider interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Manager queues events and hands them to every provider from a single dispatcher
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
	events    chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		events:    make(chan Event, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// RegisterProvider registers a notification provider
func (m *Manager) RegisterProvider(provider Provider) {
	m.mu.Lock()
	m.providers[provider.Name()] = provider
	m.mu.Unlock()

	log.Info().Str("provider", provider.Name()).Msg("Registered notification provider")
}

// ListProviders returns all registered provider names
func (m *Manager) ListProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

// Start starts the notification dispatcher.
// Returns true if the manager was started (providers exist), false otherwise.
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return true
	}
	if len(m.providers) == 0 {
		return false
	}

	m.running = true
	m.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Notification dispatcher panicked")
			}
		}()
		m.dispatcher()
	})
	log.Info().Msg("Notification manager started")
	return true
}

// Stop sends whatever is still queued and stops the dispatcher
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()

	m.stopChan = make(chan struct{})
	log.Info().Msg("Notification manager stopped")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Notify queues an event. Events are dropped when the manager is not running
// or the queue is full.
func (m *Manager) Notify(event Event) {
	if !m.IsRunning() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case m.events <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("Notification queue full, dropping event")
	}
}

// EntryAdded queues the notification for a newly signed entry
func (m *Manager) EntryAdded(id int64, name, message string) {
	m.Notify(Event{
		Type:    EventEntryAdded,
		Title:   fmt.Sprintf("%s signed the guestbook", name),
		Message: message,
		Fields: map[string]string{
			"id":   fmt.Sprintf("%d", id),
			"name": name,
		},
	})
}

func (m *Manager) dispatcher() {
	for {
		select {
		case <-m.stopChan:
			for {
				select {
				case event := <-m.events:
					m.dispatch(event)
				default:
					return
				}
			}
		case event := <-m.events:
			m.dispatch(event)
		}
	}
}

// dispatch sends an event to all registered providers
func (m *Manager) dispatch(event Event) {
	m.mu.RLock()
	providers := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for _, provider := range providers {
		if err := provider.Send(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("provider", provider.Name()).
				Str("event", string(event.Type)).
				Msg("Failed to send notification")
			continue
		}
		log.Debug().
			Str("provider", provider.Name()).
			Str("event", string(event.Type)).
			Msg("Notification sent")
	}
}

// TestProvider sends a test notification to a specific provider
func (m *Manager) TestProvider(ctx context.Context, name string) error {
	m.mu.RLock()
	provider, ok := m.providers[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("provider not found: %s", name)
	}

	return provider.Send(ctx, Event{
		Type:      EventTest,
		Title:     "Test Notification",
		Message:   "If you see this, guestbook notifications are working!",
		Timestamp: time.Now(),
	})
}
