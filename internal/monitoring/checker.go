package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
)

// Checker refreshes metrics and runs alert checks in the background.
// An alert type that was delivered is muted for the configured cooldown.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	cooldown  time.Duration

	lastSent map[AlertType]time.Time
	now      func() time.Time
}

// NewChecker creates a background checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		cooldown:  time.Duration(cfg.AlertCooldownMins) * time.Minute,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Run checks once, then every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", c.interval),
		zap.Duration("cooldown", c.cooldown),
	)

	c.check(ctx, log)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered", zap.Int("coins", snap.Total))
		return
	}
	if !c.alerter.Enabled() {
		log.Warn("monitoring: alerts triggered without webhook", zap.Int("alerts", len(alerts)))
		return
	}

	due := c.due(alerts)
	sent := 0
	for _, a := range due {
		if c.alerter.Send(ctx, a) != nil {
			continue
		}
		c.lastSent[a.Type] = c.now()
		sent++
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_muted", len(alerts)-len(due)),
		zap.Int("alerts_sent", sent),
	)
}

// due drops alerts whose type was delivered within the cooldown.
func (c *Checker) due(alerts []Alert) []Alert {
	if c.cooldown <= 0 {
		return alerts
	}
	now := c.now()
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < c.cooldown {
			continue
		}
		out = append(out, a)
	}
	return out
}
