package notification

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const (
	discordDefaultUsername = "Guestbook"
	// Discord rejects embed descriptions longer than this
	discordMaxDescription = 4096
)

// DiscordConfig holds Discord webhook configuration
type DiscordConfig struct {
	WebhookURL string
	Username   string
	AvatarURL  string
}

// DiscordProvider sends notifications via Discord webhooks
type DiscordProvider struct {
	config DiscordConfig
	client *http.Client
}

// NewDiscordProvider creates a new Discord notification provider
func NewDiscordProvider(config DiscordConfig, client *http.Client) *DiscordProvider {
	if config.Username == "" {
		config.Username = discordDefaultUsername
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DiscordProvider{config: config, client: client}
}

// Name returns the provider name
func (d *DiscordProvider) Name() string {
	return "discord"
}

// Send sends a notification to Discord
func (d *DiscordProvider) Send(ctx context.Context, event Event) error {
	payload := discordWebhookPayload{
		Username:  d.config.Username,
		AvatarURL: d.config.AvatarURL,
		Embeds:    []discordEmbed{d.buildEmbed(event)},
		// Guest text must never ping anyone
		AllowedMentions: &discordAllowedMentions{Parse: []string{}},
	}
	return sendJSONRequest(ctx, d.client, d.config.WebhookURL, nil, payload)
}

// buildEmbed creates a Discord embed from an event
func (d *DiscordProvider) buildEmbed(event Event) discordEmbed {
	description := event.Message
	if r := []rune(description); len(r) > discordMaxDescription {
		description = string(r[:discordMaxDescription-1]) + "…"
	}

	embed := discordEmbed{
		Title:       event.Title,
		Description: description,
		Color:       colorForEvent(event.Type),
		Timestamp:   event.Timestamp.Format(time.RFC3339),
		Footer:      &discordEmbedFooter{Text: d.config.Username},
	}

	names := make([]string, 0, len(event.Fields))
	for name := range event.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   name,
			Value:  event.Fields[name],
			Inline: true,
		})
	}

	return embed
}

func colorForEvent(eventType EventType) int {
	switch eventType {
	case EventEntryAdded:
		return 0x00FF00 // Green
	case EventTest:
		return 0x0099FF // Blue
	default:
		return 0x808080 // Gray
	}
}

// Discord webhook payload structures
type discordWebhookPayload struct {
	Username        string                  `json:"username,omitempty"`
	AvatarURL       string                  `json:"avatar_url,omitempty"`
	Content         string                  `json:"content,omitempty"`
	Embeds          []discordEmbed          `json:"embeds,omitempty"`
	AllowedMentions *discordAllowedMentions `json:"allowed_mentions,omitempty"`
}

type discordAllowedMentions struct {
	Parse []string `json:"parse"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}
