package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureServer struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
	status  int
}

func newCaptureServer(t *testing.T, status int) (*captureServer, *httptest.Server) {
	t.Helper()

	c := &captureServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(c.status)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *captureServer) request(i int) ([]byte, http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bodies[i], c.headers[i]
}

func TestWebhookProvider_Send(t *testing.T) {
	capture, srv := newCaptureServer(t, http.StatusNoContent)

	p := NewWebhookProvider(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "abc"},
	}, nil)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := p.Send(context.Background(), Event{
		Type:      EventEntryAdded,
		Title:     "Ada signed the guestbook",
		Message:   `Hi "there"`,
		Fields:    map[string]string{"name": "Ada"},
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	body, header := capture.request(0)
	var got webhookPayload
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if got.Event != EventEntryAdded || got.Message != `Hi "there"` || got.Fields["name"] != "Ada" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Timestamp != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", got.Timestamp)
	}
	if header.Get("X-Token") != "abc" {
		t.Fatalf("expected custom header, got %v", header)
	}
}

func TestWebhookProvider_ErrorStatus(t *testing.T) {
	_, srv := newCaptureServer(t, http.StatusBadGateway)

	p := NewWebhookProvider(WebhookConfig{URL: srv.URL}, nil)
	err := p.Send(context.Background(), Event{Type: EventTest})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDiscordProvider_Send(t *testing.T) {
	capture, srv := newCaptureServer(t, http.StatusNoContent)

	p := NewDiscordProvider(DiscordConfig{WebhookURL: srv.URL}, nil)
	err := p.Send(context.Background(), Event{
		Type:    EventEntryAdded,
		Title:   "Ada signed the guestbook",
		Message: "@everyone hello",
		Fields:  map[string]string{"name": "Ada", "id": "1"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	body, _ := capture.request(0)
	var got discordWebhookPayload
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if got.Username != discordDefaultUsername {
		t.Fatalf("expected default username, got %q", got.Username)
	}
	if got.AllowedMentions == nil || len(got.AllowedMentions.Parse) != 0 {
		t.Fatalf("expected mentions to be disabled, got %+v", got.AllowedMentions)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Description != "@everyone hello" {
		t.Fatalf("unexpected embeds %+v", got.Embeds)
	}
	fields := got.Embeds[0].Fields
	if len(fields) != 2 || fields[0].Name != "id" || fields[1].Name != "name" {
		t.Fatalf("expected sorted fields, got %+v", fields)
	}
}

func TestDiscordProvider_TruncatesDescription(t *testing.T) {
	p := NewDiscordProvider(DiscordConfig{}, nil)
	embed := p.buildEmbed(Event{Message: strings.Repeat("é", discordMaxDescription+10)})
	if n := len([]rune(embed.Description)); n != discordMaxDescription {
		t.Fatalf("expected %d runes, got %d", discordMaxDescription, n)
	}
}

type recordingProvider struct {
	name   string
	err    error
	mu     sync.Mutex
	events []Event
	sent   chan struct{}
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) Send(ctx context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	p.sent <- struct{}{}
	return p.err
}

func TestManager_Dispatch(t *testing.T) {
	m := NewManager()
	if m.Start() {
		t.Fatal("manager without providers should not start")
	}

	ok := &recordingProvider{name: "ok", sent: make(chan struct{}, 10)}
	failing := &recordingProvider{name: "failing", err: errors.New("down"), sent: make(chan struct{}, 10)}
	m.RegisterProvider(ok)
	m.RegisterProvider(failing)

	m.EntryAdded(7, "Ada", "before start is dropped")
	if !m.Start() {
		t.Fatal("expected manager to start")
	}
	defer m.Stop()

	m.EntryAdded(8, "Grace", "Hello")

	for _, p := range []*recordingProvider{ok, failing} {
		select {
		case <-p.sent:
		case <-time.After(5 * time.Second):
			t.Fatalf("provider %s did not receive the event", p.name)
		}
	}

	ok.mu.Lock()
	defer ok.mu.Unlock()
	if len(ok.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(ok.events))
	}
	ev := ok.events[0]
	if ev.Type != EventEntryAdded || ev.Fields["id"] != "8" || ev.Fields["name"] != "Grace" || ev.Message != "Hello" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestManager_TestProvider(t *testing.T) {
	m := NewManager()
	p := &recordingProvider{name: "ok", sent: make(chan struct{}, 1)}
	m.RegisterProvider(p)

	if err := m.TestProvider(context.Background(), "ok"); err != nil {
		t.Fatalf("TestProvider returned error: %v", err)
	}
	if err := m.TestProvider(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if p.events[0].Type != EventTest {
		t.Fatalf("expected test event, got %s", p.events[0].Type)
	}
}

func TestParseWebhookHeaders(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"X-Token: abc", map[string]string{"X-Token": "abc"}},
		{"A: 1\nB: two:parts", map[string]string{"A": "1", "B": "two:parts"}},
		{"A: 1; B: 2;;junk", map[string]string{"A": "1", "B": "2"}},
	}

	for _, tt := range tests {
		got := ParseWebhookHeaders(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("ParseWebhookHeaders(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("ParseWebhookHeaders(%q)[%q] = %q, want %q", tt.in, k, got[k], v)
			}
		}
	}
}
