// Package llm is the text-completion boundary used by fact extraction and
// deep analysis.
package llm

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
)

// Provider is a chat-style completion service.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one system+user completion call.
type Request struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
	// Phase labels usage logs and metrics ("facts", "deep_analysis").
	Phase string
}

// Response is the text returned by a provider.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

var (
	// ErrEmptyResponse is returned when the provider answers without any text.
	ErrEmptyResponse = eris.New("llm: empty response")
	// ErrNoAPIKey is returned when no key is available for the selected model.
	ErrNoAPIKey = eris.New("llm: no api key configured")
	// ErrCircuitOpen is returned without calling the provider while it is failing.
	ErrCircuitOpen = resilience.ErrCircuitOpen
)

// SetupError reports that no provider could be built for a selection:
// a missing key or an unknown provider name. It says nothing about the coin
// being processed.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupError reports whether err carries a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// statusError marks provider errors by HTTP status: 429 and 5xx are
// transient, everything else is a hard failure.
func statusError(err error, status int, msg string) error {
	if status == 0 {
		return eris.Wrap(err, msg)
	}
	wrapped := eris.Wrapf(err, "%s (status %d)", msg, status)
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(wrapped, status)
	}
	return wrapped
}
