package dispatch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/ami"
	"github.com/ringline/alertcall/internal/fanout"
	"github.com/ringline/alertcall/internal/model"
	"github.com/ringline/alertcall/internal/storage"
)

// Session is one control-protocol session: connect and log in, at most
// one originate, close. Sessions are never reused across dispatches.
type Session interface {
	Connect(ctx context.Context) error
	Originate(ctx context.Context, req ami.OriginateRequest) error
	Close()
}

// SessionFactory returns a fresh, unconnected session. The dispatcher
// calls it once per matching event.
type SessionFactory func() Session

// CallConfig describes the call placed for a matching alert.
type CallConfig struct {
	Channel   string
	Exten     string
	Context   string
	Priority  int
	CallerID  string
	Timeout   time.Duration
	Threshold int
}

// Dispatcher decides per event whether to place a call. Events at or
// above the priority threshold each get their own one-shot session; a
// failed dispatch is logged and swallowed so the stream loop keeps
// running. Webhook, fanout publisher, and history journal are optional
// and may be nil.
type Dispatcher struct {
	logger   *zap.Logger
	call     CallConfig
	sessions SessionFactory
	webhook  *WebhookSender
	pub      *fanout.Publisher
	history  storage.CallHistory
}

// NewDispatcher creates a dispatcher. sessions must not be nil; webhook,
// pub, and history may be.
func NewDispatcher(call CallConfig, sessions SessionFactory, webhook *WebhookSender,
	pub *fanout.Publisher, history storage.CallHistory, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		call:     call,
		sessions: sessions,
		webhook:  webhook,
		pub:      pub,
		history:  history,
	}
}

// Handle processes one decoded event. It never returns an error and
// never panics the stream loop: everything that can fail downstream is
// logged and absorbed here.
func (d *Dispatcher) Handle(ctx context.Context, evt *model.Event) {
	d.logger.Info("event received",
		zap.Int("priority", evt.Priority),
		zap.String("title", evt.Title),
		zap.String("message", evt.Message))

	if d.pub != nil {
		if err := d.pub.Publish(fanout.SubjectReceived, evt); err != nil {
			d.logger.Warn("fanout publish failed", zap.Error(err))
		}
	}

	if evt.Priority < d.call.Threshold {
		return
	}

	d.logger.Info("high priority alert, placing call",
		zap.Int("priority", evt.Priority),
		zap.String("exten", d.call.Exten))

	outcome := d.placeCall(ctx)

	if d.webhook != nil {
		if err := d.webhook.Send(ctx, evt); err != nil {
			d.logger.Warn("webhook delivery failed", zap.Error(err))
		}
	}

	if d.pub != nil && outcome == storage.OutcomeOriginated {
		if err := d.pub.Publish(fanout.SubjectDispatched, evt); err != nil {
			d.logger.Warn("fanout publish failed", zap.Error(err))
		}
	}

	if d.history != nil {
		rec := &storage.CallRecord{
			Priority: evt.Priority,
			Title:    evt.Title,
			Message:  evt.Message,
			Exten:    d.call.Exten,
			Outcome:  outcome,
		}
		if err := d.history.Record(ctx, rec); err != nil {
			d.logger.Warn("history record failed", zap.Error(err))
		}
	}
}

// placeCall runs one full session. The session is closed on every path,
// including after a rejected login or a failed originate.
func (d *Dispatcher) placeCall(ctx context.Context) storage.CallOutcome {
	sess := d.sessions()
	defer sess.Close()

	if err := sess.Connect(ctx); err != nil {
		if errors.Is(err, ami.ErrAuthenticationFailed) {
			d.logger.Error("manager login rejected", zap.Error(err))
			return storage.OutcomeAuthFailed
		}
		d.logger.Error("manager connect failed", zap.Error(err))
		return storage.OutcomeFailed
	}

	err := sess.Originate(ctx, ami.OriginateRequest{
		Channel:  d.call.Channel,
		Context:  d.call.Context,
		Exten:    d.call.Exten,
		Priority: d.call.Priority,
		CallerID: d.call.CallerID,
		Timeout:  d.call.Timeout,
	})
	if err != nil {
		d.logger.Error("originate failed", zap.Error(err))
		return storage.OutcomeFailed
	}

	d.logger.Info("originate sent", zap.String("channel", d.call.Channel))
	return storage.OutcomeOriginated
}
