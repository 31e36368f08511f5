package identity

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/labvault/internal/disambig"
	"github.com/sells-group/labvault/internal/resilience"
)

// NameMatcher returns a confidence in [0, 1] that two names denote the same
// person. It never fails.
type NameMatcher interface {
	Confidence(ctx context.Context, a, b string) float64
}

// RuleBasedMatcher scores names with the deterministic Score function.
type RuleBasedMatcher struct{}

// Confidence implements NameMatcher.
func (RuleBasedMatcher) Confidence(_ context.Context, a, b string) float64 {
	return Score(a, b)
}

// AssistedOptions tune an AssistedMatcher. Zero values select defaults.
type AssistedOptions struct {
	Timeout    time.Duration
	RatePerSec float64
	CacheTTL   time.Duration
	Breaker    *resilience.Breaker
	// OnFallback is called with a resilience reason whenever the
	// collaborator could not be used.
	OnFallback func(reason string)
}

// AssistedMatcher asks a disambiguation provider and falls back to the
// rule-based score whenever the provider is unavailable, slow, over budget,
// or returns something unusable.
type AssistedMatcher struct {
	provider   disambig.Provider
	fallback   RuleBasedMatcher
	timeout    time.Duration
	limiter    *rate.Limiter
	cache      *gocache.Cache
	breaker    *resilience.Breaker
	onFallback func(string)
}

// NewAssistedMatcher wraps provider with a timeout, a call budget, a pair
// cache and a circuit breaker.
func NewAssistedMatcher(provider disambig.Provider, opts AssistedOptions) *AssistedMatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker(resilience.NewBreakerConfig(0, 0))
	}
	burst := int(opts.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &AssistedMatcher{
		provider:   provider,
		timeout:    opts.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), burst),
		cache:      gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		breaker:    opts.Breaker,
		onFallback: opts.OnFallback,
	}
}

var errRateLimited = eris.New("disambig call budget exhausted")

// Confidence implements NameMatcher.
func (m *AssistedMatcher) Confidence(ctx context.Context, a, b string) float64 {
	key := pairKey(a, b)
	if v, ok := m.cache.Get(key); ok {
		return v.(float64)
	}

	v, err := m.ask(ctx, a, b)
	if err != nil {
		reason := fallbackReason(err)
		zap.L().Warn("identity: disambiguation unavailable, using rule-based score",
			zap.String("provider", m.provider.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		if m.onFallback != nil {
			m.onFallback(reason)
		}
		return m.fallback.Confidence(ctx, a, b)
	}

	m.cache.SetDefault(key, v)
	return v
}

func (m *AssistedMatcher) ask(ctx context.Context, a, b string) (float64, error) {
	if !m.limiter.Allow() {
		return 0, errRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	verdict, err := resilience.Do(ctx, m.breaker, func(ctx context.Context) (*disambig.Verdict, error) {
		return m.provider.Match(ctx, a, b)
	})
	if err != nil {
		return 0, err
	}
	if verdict == nil {
		return 0, disambig.ErrBadResponse
	}
	if !verdict.IsMatch {
		return 0, nil
	}
	return clamp(verdict.Confidence), nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, errRateLimited):
		return resilience.ReasonRateLimited
	case errors.Is(err, disambig.ErrBadResponse):
		return resilience.ReasonBadResponse
	default:
		return resilience.Reason(err)
	}
}

// pairKey is order independent so cached decisions stay symmetric.
func pairKey(a, b string) string {
	na, nb := Normalize(a), Normalize(b)
	if nb < na {
		na, nb = nb, na
	}
	return na + "\x00" + nb
}
