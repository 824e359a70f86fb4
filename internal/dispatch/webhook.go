package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/model"
)

// WebhookSender forwards alert events as JSON to a configured HTTP
// endpoint, alongside (not instead of) the call dispatch.
type WebhookSender struct {
	logger *zap.Logger
	client *http.Client
	url    string
}

// NewWebhookSender creates a sender posting to url.
func NewWebhookSender(url string, logger *zap.Logger) *WebhookSender {
	return &WebhookSender{
		logger: logger.Named("webhook"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		url: url,
	}
}

// Send posts the event. A response status of 400 or above counts as a
// failure.
func (w *WebhookSender) Send(ctx context.Context, evt *model.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	w.logger.Debug("webhook delivered", zap.String("url", w.url))
	return nil
}
