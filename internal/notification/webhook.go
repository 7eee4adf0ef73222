package notification

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// WebhookConfig holds generic webhook configuration
type WebhookConfig struct {
	URL     string
	Headers map[string]string
}

// WebhookProvider POSTs events as JSON to an arbitrary URL
type WebhookProvider struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookProvider creates a new generic webhook notification provider
func NewWebhookProvider(config WebhookConfig, client *http.Client) *WebhookProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookProvider{config: config, client: client}
}

// Name returns the provider name
func (w *WebhookProvider) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Event     EventType         `json:"event"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// Send sends a notification via the webhook
func (w *WebhookProvider) Send(ctx context.Context, event Event) error {
	fields := event.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	return sendJSONRequest(ctx, w.client, w.config.URL, w.config.Headers, webhookPayload{
		Event:     event.Type,
		Title:     event.Title,
		Message:   event.Message,
		Timestamp: event.Timestamp.Format(time.RFC3339),
		Fields:    fields,
	})
}

// ParseWebhookHeaders parses headers in "Key: value" form, one per line or
// separated by semicolons.
func ParseWebhookHeaders(headersStr string) map[string]string {
	headers := make(map[string]string)
	if headersStr == "" {
		return headers
	}

	split := func(r rune) bool { return r == '\n' || r == ';' }
	for _, line := range strings.FieldsFunc(headersStr, split) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key != "" {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return headers
}
