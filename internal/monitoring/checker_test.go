package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := &mockCounter{counts: map[model.CoinStatus]int{}}
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, FailureRateThreshold: 0.10}
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(cfg), cfg)

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

func TestChecker_ChecksImmediately(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := &mockCounter{counts: map[model.CoinStatus]int{model.CoinStatusProcessing: 50}}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, StuckThreshold: 10, CheckIntervalSecs: 3600}
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return received.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := &mockCounter{counts: map[model.CoinStatus]int{}}
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CooldownMutesRepeatAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := &mockCounter{counts: map[model.CoinStatus]int{model.CoinStatusProcessing: 50}}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, StuckThreshold: 10, AlertCooldownMins: 30}
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(cfg), cfg)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checker.now = func() time.Time { return now }
	log := zap.NewNop()
	ctx := context.Background()

	checker.check(ctx, log)
	assert.Equal(t, int32(1), received.Load())

	now = now.Add(10 * time.Minute)
	checker.check(ctx, log)
	assert.Equal(t, int32(1), received.Load(), "muted within cooldown")

	now = now.Add(25 * time.Minute)
	checker.check(ctx, log)
	assert.Equal(t, int32(2), received.Load(), "sent again after cooldown")
}

func TestChecker_FailedSendIsNotMuted(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	st := &mockCounter{counts: map[model.CoinStatus]int{model.CoinStatusProcessing: 50}}
	cfg := config.MonitoringConfig{WebhookURL: ts.URL, StuckThreshold: 10, AlertCooldownMins: 30}
	checker := NewChecker(NewCollector(st, nil, nil), NewAlerter(cfg), cfg)

	checker.check(context.Background(), zap.NewNop())
	checker.check(context.Background(), zap.NewNop())
	assert.Equal(t, int32(2), received.Load())
	assert.Empty(t, checker.lastSent)
}
