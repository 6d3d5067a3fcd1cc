package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookTimeout bounds a single webhook POST (spec.md §4.3's webhook
// dispatch is best-effort but must not hang a session's dispatcher).
const webhookTimeout = 10 * time.Second

// SessionRequestPayload is POSTed to an app's webhook URL on startApp
// (spec.md §4.3 step 5).
type SessionRequestPayload struct {
	Type                  string `json:"type"`
	SessionID             string `json:"sessionId"`
	UserID                string `json:"userId"`
	Timestamp             int64  `json:"timestamp"`
	AugmentOSWebsocketURL string `json:"augmentOSWebsocketUrl"`
}

// StopRequestPayload is POSTed to an app's webhook URL on stopApp (spec.md
// §4.3 step 3).
type StopRequestPayload struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SessionRecoveryPayload is POSTed by the registration service's restart
// operation (spec.md §4.7).
type SessionRecoveryPayload struct {
	Type                  string `json:"type"`
	SessionID             string `json:"sessionId"`
	UserID                string `json:"userId"`
	Timestamp             int64  `json:"timestamp"`
	AugmentOSWebsocketURL string `json:"augmentOSWebsocketUrl"`
}

// WebhookSender posts session_recovery payloads for the registration
// service's restart operation (spec.md §4.7), reusing the same HTTP client
// and best-effort POST semantics as startApp/stopApp dispatch.
type WebhookSender struct {
	Client *http.Client
}

// NewWebhookSender builds a WebhookSender with the package's default
// webhookTimeout-bound client.
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{Client: &http.Client{Timeout: webhookTimeout}}
}

// SendSessionRecovery implements registration.Webhooks.
func (w *WebhookSender) SendSessionRecovery(ctx context.Context, webhookURL string, payload SessionRecoveryPayload) error {
	return postWebhook(ctx, w.Client, webhookURL+"/webhook", payload)
}

func postWebhook(ctx context.Context, client *http.Client, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
