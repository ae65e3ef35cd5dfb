package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
	"github.com/michelcools-creator/gem-radar-bot/pkg/anthropic"
)

// Selection is the model and key chosen for a run.
type Selection struct {
	Provider string
	Model    string
	APIKey   string
	Premium  bool
}

// SelectModel picks the premium model with the user's key when one is
// configured, otherwise the default model with the deployment key.
// It depends only on its arguments.
func SelectModel(settings *model.Settings, cfg config.LLMConfig) Selection {
	if settings != nil && settings.HasUserKey() {
		return Selection{
			Provider: cfg.Provider,
			Model:    cfg.PremiumModel,
			APIKey:   settings.UserAPIKey,
			Premium:  true,
		}
	}
	return Selection{
		Provider: cfg.Provider,
		Model:    cfg.DefaultModel,
		APIKey:   cfg.DefaultAPIKey,
	}
}

// BuildFunc constructs a raw provider for a key.
type BuildFunc func(provider, apiKey, baseURL string) (Provider, error)

// Build is the default BuildFunc.
func Build(provider, apiKey, baseURL string) (Provider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	switch strings.ToLower(provider) {
	case "openai", "":
		p, err := NewOpenAIProvider(apiKey, baseURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic", "claude":
		return NewAnthropicProvider(anthropic.NewClient(apiKey, baseURL)), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q (supported: openai, anthropic)", provider)
	}
}

// Factory hands out guarded providers for a Selection. The default-key
// provider is shared; user-key providers are cached for an hour.
type Factory struct {
	cfg     config.LLMConfig
	build   BuildFunc
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	mu      sync.Mutex
	shared  Provider
	users   *gocache.Cache
	onUsage UsageFunc
}

// UsageFunc observes token usage of successful calls. model is the model
// that answered, falling back to the requested one.
type UsageFunc func(phase, model string, u Usage)

// NewFactory creates a Factory. A nil build uses Build.
func NewFactory(cfg config.LLMConfig, build BuildFunc) *Factory {
	if build == nil {
		build = Build
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.OnRetry = resilience.RetryLogger("llm", "complete")
	return &Factory{
		cfg:   cfg,
		build: build,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "llm",
			FailureThreshold: cfg.BreakerFails,
			ResetTimeout:     5 * time.Minute,
			ShouldTrip: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
		}),
		retry: retry,
		users: gocache.New(time.Hour, 10*time.Minute),
	}
}

// Provider returns the guarded provider for sel.
func (f *Factory) Provider(sel Selection) (Provider, error) {
	raw, err := f.raw(sel)
	if err != nil {
		return nil, err
	}
	return &guarded{
		inner:   raw,
		breaker: f.breaker,
		retry:   f.retry,
		timeout: f.cfg.Timeout(),
		onUsage: f.onUsage,
	}, nil
}

// OnUsage registers fn to observe every successful completion. It must be
// called before the first Provider call.
func (f *Factory) OnUsage(fn UsageFunc) {
	f.onUsage = fn
}

// Breaker exposes the shared circuit breaker state.
func (f *Factory) Breaker() *resilience.CircuitBreaker {
	return f.breaker
}

func (f *Factory) raw(sel Selection) (Provider, error) {
	if !sel.Premium {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.shared == nil {
			p, err := f.build(sel.Provider, sel.APIKey, f.cfg.BaseURL)
			if err != nil {
				return nil, &SetupError{Err: eris.Wrap(err, "llm: build default provider")}
			}
			f.shared = p
		}
		return f.shared, nil
	}

	key := keyID(sel.APIKey)
	if p, ok := f.users.Get(key); ok {
		return p.(Provider), nil
	}
	p, err := f.build(sel.Provider, sel.APIKey, f.cfg.BaseURL)
	if err != nil {
		return nil, &SetupError{Err: eris.Wrap(err, "llm: build user provider")}
	}
	f.users.SetDefault(key, p)
	return p, nil
}

func keyID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

// guarded adds a per-call timeout, a short retry on transient errors and
// the shared circuit breaker around a provider.
type guarded struct {
	inner   Provider
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
	onUsage UsageFunc
}

func (g *guarded) Name() string { return g.inner.Name() }

func (g *guarded) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.complete(ctx, req)
	if err == nil && g.onUsage != nil {
		model := resp.Model
		if model == "" {
			model = req.Model
		}
		g.onUsage(req.Phase, model, resp.Usage)
	}
	return resp, err
}

func (g *guarded) complete(ctx context.Context, req Request) (*Response, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*Response, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Response, error) {
			if g.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			return g.inner.Complete(ctx, req)
		})
	})
}
