package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultServer = "https://ntfy.sh"

// Ntfy posts push notifications to an ntfy topic.
type Ntfy struct {
	server string
	topic  string
	client *http.Client
}

// New returns nil when topic is empty; a nil *Ntfy drops every notification.
func New(topic string) *Ntfy {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
	return &Ntfy{
		server: defaultServer,
		topic:  topic,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithServer points the notifier at a self-hosted ntfy server.
func (n *Ntfy) WithServer(server string) *Ntfy {
	if n != nil {
		n.server = server
	}
	return n
}

// Send publishes a notification to the topic.
func (n *Ntfy) Send(title, message string) error {
	if n == nil {
		return nil
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// ntfy accepts JSON publishes on the server root.
	req, err := http.NewRequest(http.MethodPost, n.server, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
