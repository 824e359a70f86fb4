package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/stream"
)

const (
	// transportWait is the retry delay after a connection-level failure.
	transportWait = 3 * time.Second
	// unexpectedWait is the retry delay after anything else.
	unexpectedWait = 5 * time.Second
)

// Runner is one attempt at the streaming subscription. Run returns when
// the underlying connection ends or errors.
type Runner interface {
	Run(ctx context.Context) error
}

// Supervisor keeps the subscription alive forever. There is no retry cap
// and no circuit breaker: a missed alert costs more than a busy retry
// loop, so the bridge never gives up on its own. It stops only when the
// context is cancelled.
type Supervisor struct {
	logger *zap.Logger
	runner Runner

	transportWait  time.Duration
	unexpectedWait time.Duration
}

// NewSupervisor creates a supervisor with the standard retry intervals.
func NewSupervisor(runner Runner, logger *zap.Logger) *Supervisor {
	return newSupervisor(runner, transportWait, unexpectedWait, logger)
}

func newSupervisor(runner Runner, transportWait, unexpectedWait time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger:         logger.Named("supervisor"),
		runner:         runner,
		transportWait:  transportWait,
		unexpectedWait: unexpectedWait,
	}
}

// Run loops until ctx is cancelled, returning ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		switch {
		case err == nil:
			// The server closed the stream cleanly. Reconnect right away.
			s.logger.Info("stream ended, resubscribing")
			continue
		case stream.IsTransport(err):
			wait = s.transportWait
			s.logger.Warn("stream connection error",
				zap.Error(err),
				zap.Duration("retry_in", wait))
		default:
			wait = s.unexpectedWait
			s.logger.Error("unexpected subscriber error",
				zap.Error(err),
				zap.Duration("retry_in", wait))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
