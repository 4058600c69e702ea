package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Discord embed sidebar colors per alert severity.
const (
	colorCritical = 0xE74C3C // red
	colorWarning  = 0xF1C40F // yellow
	colorInfo     = 0x3498DB // blue
)

// DiscordSender delivers alerts via a Discord webhook, rendering each alert
// as an embed color-coded by severity.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Timestamp   string        `json:"timestamp"`
	Footer      discordFooter `json:"footer"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func embedColor(severity string) int {
	switch severity {
	case "critical":
		return colorCritical
	case "warning":
		return colorWarning
	default:
		return colorInfo
	}
}

// Send posts the alert to the Discord webhook as a single embed. The event
// name goes in the footer so channels can be skimmed by event type.
func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       a.Title,
			Description: a.Message,
			Color:       embedColor(a.severity()),
			Timestamp:   a.At.Format(time.RFC3339),
			Footer:      discordFooter{Text: a.Event},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
