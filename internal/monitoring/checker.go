package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker watches the document run ledger on a timer and raises health
// alerts when processing degrades.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker returns a Checker that snapshots the ledger with collector and
// reports through alerter.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Interval is the configured check period, or five minutes when unset.
func (c *Checker) Interval() time.Duration {
	if d := time.Duration(c.cfg.CheckIntervalSecs) * time.Second; d > 0 {
		return d
	}
	return defaultCheckInterval
}

// Run checks ledger health every Interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := c.Interval()
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: watching document ledger",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: ledger watch stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates one ledger snapshot and delivers any alerts it raises.
// A collection failure yields no alerts.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: ledger snapshot failed", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: ledger healthy",
			zap.Int("documents", snap.DocumentsTotal),
			zap.Float64("fail_rate", snap.FailRate),
		)
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: ledger health alerts raised",
		zap.Int("documents", snap.DocumentsTotal),
		zap.Int("failed", snap.DocumentsFailed),
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", sent),
	)
	return alerts
}
