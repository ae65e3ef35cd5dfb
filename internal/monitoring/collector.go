package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	Counts map[model.CoinStatus]int `json:"counts"`
	Total  int                      `json:"total"`

	// Finished coins split by outcome.
	Analyzed         int     `json:"analyzed"`
	Failed           int     `json:"failed"`
	InsufficientData int     `json:"insufficient_data"`
	FailRate         float64 `json:"fail_rate"`

	// Backlog is processing plus retry_pending.
	Backlog int `json:"backlog"`

	CircuitOpen bool      `json:"circuit_open"`
	CollectedAt time.Time `json:"collected_at"`
}

// StatusCounter is the store method the collector needs.
type StatusCounter interface {
	CountCoinsByStatus(ctx context.Context) (map[model.CoinStatus]int, error)
}

// Collector gathers coin counts from the store and publishes them.
type Collector struct {
	store       StatusCounter
	metrics     *Metrics
	circuitOpen func() bool
}

// NewCollector creates a collector. metrics and circuitOpen may be nil.
func NewCollector(st StatusCounter, metrics *Metrics, circuitOpen func() bool) *Collector {
	return &Collector{store: st, metrics: metrics, circuitOpen: circuitOpen}
}

// Refresh reloads the per-status counts and updates the coins gauge.
func (c *Collector) Refresh(ctx context.Context) (map[model.CoinStatus]int, error) {
	counts, err := c.store.CountCoinsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count coins")
	}
	if c.metrics != nil {
		c.metrics.SetCoins(counts)
	}
	return counts, nil
}

// Collect refreshes the gauge and derives a health snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	counts, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Counts:           counts,
		Analyzed:         counts[model.CoinStatusAnalyzed],
		Failed:           counts[model.CoinStatusFailed],
		InsufficientData: counts[model.CoinStatusInsufficientData],
		Backlog:          counts[model.CoinStatusProcessing] + counts[model.CoinStatusRetryPending],
		CollectedAt:      time.Now().UTC(),
	}
	for _, n := range counts {
		snap.Total += n
	}
	if finished := snap.Analyzed + snap.Failed + snap.InsufficientData; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if c.circuitOpen != nil {
		snap.CircuitOpen = c.circuitOpen()
	}
	return snap, nil
}
