package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate  AlertType = "coin_failure_rate"
	AlertStuckBacklog AlertType = "stuck_backlog"
	AlertCircuitOpen  AlertType = "llm_circuit_open"
)

// minFinished is the number of finished coins needed before the failure rate is judged.
const minFinished = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
// Webhook posts are retried on 429, 5xx and transport errors.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			MaxJitter:   250 * time.Millisecond,
			OnRetry:     resilience.RetryLogger("monitoring", "webhook"),
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.Analyzed + snap.Failed + snap.InsufficientData
	if finished >= minFinished && a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Coin failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.Failed, finished,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StuckThreshold > 0 && snap.Backlog > a.cfg.StuckThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertStuckBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d coins waiting in processing/retry_pending (threshold %d)",
				snap.Backlog, a.cfg.StuckThreshold,
			),
			Details: map[string]any{
				"backlog":   snap.Backlog,
				"threshold": a.cfg.StuckThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.CircuitOpen {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "high",
			Message:   "LLM circuit breaker is open; fact extraction and deep analysis are paused",
			Timestamp: now,
		})
	}

	return alerts
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.WebhookURL != ""
}

// Send posts one alert, retrying transient failures, and logs the outcome.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if !a.Enabled() {
		return eris.New("monitoring: no webhook configured")
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	err = resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, payload)
	})
	if err != nil {
		zap.L().Error("monitoring: failed to send alert",
			zap.String("type", string(alert.Type)),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("monitoring: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity),
	)
	return nil
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
