package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labvault/internal/config"
	"github.com/sells-group/labvault/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(NewCollector(&mockRuns{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockRuns{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	assert.Equal(t, 5*time.Minute, checker.Interval())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_ConfiguredInterval(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 30}
	checker := NewChecker(NewCollector(&mockRuns{}), NewAlerter(cfg), cfg)
	assert.Equal(t, 30*time.Second, checker.Interval())
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	var runs []model.Run
	for i := 0; i < 6; i++ {
		runs = append(runs, run(model.RunStatusFailed, time.Minute, &model.RunResult{Error: "decode"}))
	}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailureRateThreshold: 0.25, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockRuns{runs: runs}), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDocumentFailureRate, alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())
}
