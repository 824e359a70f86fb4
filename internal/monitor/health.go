package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// HealthReporter periodically logs a host resource snapshot. A bridge
// that silently degrades is worse than one that rings too often, so the
// snapshot goes to the regular log where the operator already looks.
type HealthReporter struct {
	logger   *zap.Logger
	interval time.Duration
	stop     chan struct{}
}

// NewHealthReporter creates a reporter logging every interval.
func NewHealthReporter(interval time.Duration, logger *zap.Logger) *HealthReporter {
	return &HealthReporter{
		logger:   logger.Named("health"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the reporting loop.
func (r *HealthReporter) Start(ctx context.Context) {
	go r.reportLoop(ctx)
}

// Stop stops the reporting loop.
func (r *HealthReporter) Stop() {
	close(r.stop)
}

func (r *HealthReporter) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *HealthReporter) report() {
	fields := make([]zap.Field, 0, 3)

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fields = append(fields, zap.Float64("cpu_percent", percents[0]))
	} else if err != nil {
		r.logger.Debug("cpu stats unavailable", zap.Error(err))
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fields = append(fields,
			zap.Float64("mem_percent", vm.UsedPercent),
			zap.Uint64("mem_available", vm.Available))
	} else {
		r.logger.Debug("memory stats unavailable", zap.Error(err))
	}

	r.logger.Info("health snapshot", fields...)
}
