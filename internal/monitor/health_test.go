package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHealthReporter_LogsSnapshots(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reporter := NewHealthReporter(20*time.Millisecond, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter.Start(ctx)
	defer reporter.Stop()

	require.Eventually(t, func() bool {
		return len(logs.FilterMessage("health snapshot").All()) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthReporter_StopEndsLoop(t *testing.T) {
	reporter := NewHealthReporter(10*time.Millisecond, zap.NewNop())

	reporter.Start(context.Background())
	reporter.Stop()
	time.Sleep(30 * time.Millisecond)
}
