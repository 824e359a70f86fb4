package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/model"
)

// dataPrefix marks SSE frames that carry a message payload. Everything
// else on the stream (comments, keep-alives, event names) is skipped.
const dataPrefix = "data: "

// Handler consumes one decoded event. The subscriber waits for Handle to
// return before reading the next line, so at most one event is in flight.
type Handler interface {
	Handle(ctx context.Context, evt *model.Event)
}

// Subscriber maintains one long-lived SSE subscription to an ntfy topic
// and forwards each decoded event to its handler. One call to Run covers
// exactly one connection; the supervisor re-runs it on failure.
type Subscriber struct {
	client  *http.Client
	baseURL string
	topic   string
	auth    string
	handler Handler
	logger  *zap.Logger
}

// NewSubscriber creates a subscriber for {baseURL}/{topic}/sse. auth, when
// non-empty, is "user:pass" for HTTP basic authentication.
func NewSubscriber(baseURL, topic, auth string, handler Handler, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		// No client timeout: the streaming response is intentionally
		// unbounded and stays open for the connection's lifetime.
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
		auth:    auth,
		handler: handler,
		logger:  logger.Named("subscriber"),
	}
}

// Run opens the streaming connection and processes frames until the
// connection ends or errors. Connection-level failures come back as
// *TransportError; a cleanly closed stream returns nil.
func (s *Subscriber) Run(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s/sse", s.baseURL, s.topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("stream: build request: %w", err)
	}
	if s.auth != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.auth)))
	}

	s.logger.Info("subscribing", zap.String("url", url))

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: "subscribe", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	scanner := NewLineScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]

		var evt model.Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			s.logger.Debug("ignoring non-JSON payload",
				zap.String("payload", truncate(payload, 120)),
				zap.Error(err))
			continue
		}

		s.handler.Handle(ctx, &evt)
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
