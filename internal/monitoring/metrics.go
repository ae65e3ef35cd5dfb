// Package monitoring exposes pipeline metrics to Prometheus and raises
// webhook alerts when the coin backlog looks unhealthy.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// Recorder receives pipeline events.
type Recorder interface {
	StageCoin(stage, outcome string)
	PageFetched(status model.PageStatus)
	LLMTokens(phase string, input, output int64)
	RunDuration(d time.Duration)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) StageCoin(string, string) {}
func (NopRecorder) PageFetched(model.PageStatus) {}
func (NopRecorder) LLMTokens(string, int64, int64) {}
func (NopRecorder) RunDuration(time.Duration) {}

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	stageCoins  *prometheus.CounterVec
	pageFetches *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmCost     *prometheus.CounterVec
	runDuration prometheus.Histogram
	coins       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageCoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemradar",
			Name:      "stage_coins_total",
			Help:      "Coins processed per pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		pageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemradar",
			Name:      "page_fetch_total",
			Help:      "Page fetches by resulting page status.",
		}, []string{"status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemradar",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by phase and direction.",
		}, []string{"phase", "direction"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gemradar",
			Name:      "llm_cost_usd_total",
			Help:      "Estimated LLM spend in dollars by phase and model.",
		}, []string{"phase", "model"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gemradar",
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete pipeline runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		coins: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gemradar",
			Name:      "coins",
			Help:      "Tracked coins by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.stageCoins, m.pageFetches, m.llmTokens, m.llmCost, m.runDuration, m.coins)
	return m
}

func (m *Metrics) StageCoin(stage, outcome string) {
	m.stageCoins.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) PageFetched(status model.PageStatus) {
	m.pageFetches.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) LLMTokens(phase string, input, output int64) {
	m.llmTokens.WithLabelValues(phase, "input").Add(float64(input))
	m.llmTokens.WithLabelValues(phase, "output").Add(float64(output))
}

// LLMCost adds an estimated spend in dollars.
func (m *Metrics) LLMCost(phase, model string, usd float64) {
	m.llmCost.WithLabelValues(phase, model).Add(usd)
}

func (m *Metrics) RunDuration(d time.Duration) {
	m.runDuration.Observe(d.Seconds())
}

// SetCoins replaces the per-status coin gauge. Every known status is set
// so that drained statuses drop to zero.
func (m *Metrics) SetCoins(counts map[model.CoinStatus]int) {
	for _, s := range model.AllCoinStatuses() {
		m.coins.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
