package model

import "time"

// PhaseStatus represents the outcome of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of one pipeline stage within a run.
type PhaseResult struct {
	Name      string         `json:"name"`
	Status    PhaseStatus    `json:"status"`
	Duration  int64          `json:"duration_ms"`
	Processed int            `json:"processed"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RunResult is the summary of one pipeline run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Phases     []PhaseResult `json:"phases"`
	Tokens     TokenUsage    `json:"tokens"`
}

// Phase returns the named phase result, or nil.
func (r *RunResult) Phase(name string) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}

// TokenUsage tracks LLM token consumption across a run.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
