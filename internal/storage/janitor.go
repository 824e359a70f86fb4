package storage

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor trims the call journal on a cron schedule so an always-on
// bridge does not accumulate history without bound.
type Janitor struct {
	logger    *zap.Logger
	history   CallHistory
	retention time.Duration
	cron      *cron.Cron
}

// NewJanitor schedules retention sweeps of history. schedule is a
// standard five-field cron expression, e.g. "0 3 * * *".
func NewJanitor(history CallHistory, schedule string, retention time.Duration, logger *zap.Logger) (*Janitor, error) {
	j := &Janitor{
		logger:    logger.Named("janitor"),
		history:   history,
		retention: retention,
		cron:      cron.New(),
	}

	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins running scheduled sweeps.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started", zap.Duration("retention", j.retention))
}

// Stop stops the schedule. A sweep already in progress finishes.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	if err := j.history.DeleteBefore(ctx, cutoff); err != nil {
		j.logger.Error("retention sweep failed", zap.Error(err))
	}
}
