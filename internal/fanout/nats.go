package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/model"
)

const (
	alertStreamName = "ALERTS"

	// SubjectReceived carries every event decoded from the ntfy stream.
	SubjectReceived = "alert.received"
	// SubjectDispatched carries events that triggered a call.
	SubjectDispatched = "alert.dispatched"
)

// envelope is the published representation of an event.
type envelope struct {
	Priority int       `json:"priority"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	SeenAt   time.Time `json:"seen_at"`
}

// Publisher fans alerts out on JetStream for downstream consumers
// (dashboards, extra notifiers). It is optional infrastructure: the
// alert-to-call path never waits on it and never fails because of it.
type Publisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewPublisher creates a publisher and ensures the ALERTS stream exists.
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     alertStreamName,
		Subjects: []string{"alert.*"},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Publisher{
		logger: logger.Named("fanout"),
		js:     js,
	}, nil
}

// Publish sends the event on the given subject. Failures are logged and
// returned, but callers on the dispatch path are expected to swallow them.
func (p *Publisher) Publish(subject string, evt *model.Event) error {
	data, err := json.Marshal(envelope{
		Priority: evt.Priority,
		Title:    evt.Title,
		Message:  evt.Message,
		SeenAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := p.js.Publish(subject, data); err != nil {
		p.logger.Warn("alert publish failed",
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
