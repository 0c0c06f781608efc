package ai

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/config"
	"github.com/doccat/server/logger"
)

var log = logger.New("ai")

// gateway selects among configured providers, wrapping each call in a
// per-provider circuit breaker and a jittered exponential retry, per
// spec §4.5.
type gateway struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	cfg       config.AIConfig

	mu              sync.Mutex
	forcedOpenUntil map[string]time.Time
}

// NewGateway builds a Gateway over providers, ordered first-match-wins per
// capability (spec §4.5). Each provider gets its own circuit breaker: K
// consecutive failures (or a single QuotaExhausted) opens it for C seconds,
// then one half-open probe is allowed.
func NewGateway(cfg config.AIConfig, providers []Provider) Gateway {
	ConfigureExtraction(cfg.OCRMinCharsPerPage)
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		name := p.Name()
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: time.Duration(cfg.CircuitCooldownS) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.CircuitFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Infow("provider circuit state change", "provider", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return &gateway{providers: providers, breakers: breakers, cfg: cfg, forcedOpenUntil: map[string]time.Time{}}
}

// forceOpen records a quota/rate trip against a provider, independent of
// gobreaker's own consecutive-failure count, so a single such error opens
// the circuit for CircuitCooldownS (spec §4.5) instead of waiting for K
// consecutive failures.
func (g *gateway) forceOpen(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forcedOpenUntil[name] = time.Now().Add(time.Duration(g.cfg.CircuitCooldownS) * time.Second)
}

func (g *gateway) isForcedOpen(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.forcedOpenUntil[name]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(g.forcedOpenUntil, name)
		return false
	}
	return true
}

// candidatesFor returns providers offering cap, in configured order, whose
// circuit is not currently open (neither gobreaker's own consecutive-failure
// trip nor a forced quota/rate trip, spec §4.5).
func (g *gateway) candidatesFor(cap Capability) []Provider {
	var out []Provider
	for _, p := range g.providers {
		if !hasCapability(p, cap) {
			continue
		}
		if b, ok := g.breakers[p.Name()]; ok && b.State() == gobreaker.StateOpen {
			continue
		}
		if g.isForcedOpen(p.Name()) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasCapability(p Provider, cap Capability) bool {
	for _, c := range p.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}

// retryPolicy returns a backoff.BackOff matching spec §4.5: R=3 attempts,
// base=1s, cap=15s, jittered exponential.
func (g *gateway) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(g.cfg.RetryBaseS) * time.Second
	b.MaxInterval = time.Duration(g.cfg.RetryCapS) * time.Second
	b.Multiplier = 2
	// WithMaxRetries counts retries after the first call, so R attempts
	// means R-1 retries.
	retries := g.cfg.RetryMaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// classify maps a provider-local sentinel error onto an apperr kind for the
// gateway's retry/fail decision: callWithRetry retries only ErrTransient;
// ErrRateLimited and ErrQuotaExhausted open the provider's circuit and move
// on to the next provider without a retry.
func classify(err error) *apperr.AppError {
	switch {
	case errors.Is(err, ErrTransient):
		return apperr.Wrap(apperr.KindTransient, err, "provider call failed transiently")
	case errors.Is(err, ErrRateLimited):
		return apperr.Wrap(apperr.KindRateLimited, err, "provider rate limited")
	case errors.Is(err, ErrQuotaExhausted):
		return apperr.Wrap(apperr.KindQuotaExhausted, err, "provider quota exhausted")
	case errors.Is(err, ErrMalformedResponse):
		return apperr.Wrap(apperr.KindMalformedAI, err, "provider returned malformed output")
	case errors.Is(err, ErrUnauthorized):
		return apperr.Wrap(apperr.KindAuth, err, "provider rejected credentials")
	case errors.Is(err, ErrProviderUnavailable):
		return apperr.Wrap(apperr.KindProviderUnavail, err, "provider unavailable")
	default:
		return apperr.Wrap(apperr.KindProviderUnavail, err, "provider call failed")
	}
}

// callWithRetry runs fn against successive candidate providers: within one
// provider it retries only retriable errors up to R attempts; a
// non-retriable or exhausted-retry failure moves to the next provider
// (spec §4.5, §9 scenario S5).
func (g *gateway) callWithRetry(ctx context.Context, cap Capability, fn func(Provider) error) error {
	candidates := g.candidatesFor(cap)
	if len(candidates) == 0 {
		return apperr.New(apperr.KindProviderUnavail, "no provider available").WithDetails(map[string]any{"capability": string(cap)})
	}

	var lastErr error
	for _, p := range candidates {
		breaker := g.breakers[p.Name()]
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.CallTimeoutS)*time.Second)

		operation := func() error {
			_, err := breaker.Execute(func() (interface{}, error) {
				return nil, fn(p)
			})
			if err != nil {
				ae := classify(err)
				if ae.Kind == apperr.KindQuotaExhausted || ae.Kind == apperr.KindRateLimited {
					// spec §4.5: one explicit quota/rate error opens the
					// circuit outright, same as K consecutive failures.
					g.forceOpen(p.Name())
					return backoff.Permanent(ae)
				}
				if !ae.Kind.IsRetriable() {
					return backoff.Permanent(ae)
				}
				return ae
			}
			return nil
		}

		err := backoff.Retry(operation, g.retryPolicy(callCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warnw("provider exhausted, trying next", "provider", p.Name(), "capability", string(cap), "error", err)
	}
	if lastErr != nil {
		return lastErr
	}
	return apperr.New(apperr.KindProviderUnavail, "all providers failed")
}

func (g *gateway) ExtractText(ctx context.Context, blob io.Reader, hint HintType) (ExtractResult, error) {
	var result ExtractResult
	err := g.callWithRetry(ctx, CapExtract, func(p Provider) error {
		r, err := p.ExtractText(ctx, blob, hint)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (g *gateway) Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error) {
	var result []byte
	err := g.callWithRetry(ctx, CapAnalyze, func(p Provider) error {
		out, err := p.Analyze(ctx, text, promptTemplate, taxonomySnapshot)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	return result, err
}

func (g *gateway) Embed(ctx context.Context, text string, dim int) ([]float32, error) {
	var result []float32
	err := g.callWithRetry(ctx, CapEmbed, func(p Provider) error {
		v, err := p.Embed(ctx, text, dim)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// ProjectVector adapts a provider-native embedding to the Store's indexed
// dimension by truncation or zero-padding, logging once per process the
// first time a mismatch is observed (DESIGN.md Open Question 3).
var projectionWarned bool

func ProjectVector(v []float32, dim int) []float32 {
	if len(v) == dim {
		return v
	}
	if !projectionWarned {
		log.Warnw("provider embedding dimension does not match configured vector_dim; projecting", "provider_dim", len(v), "configured_dim", dim)
		projectionWarned = true
	}
	out := make([]float32, dim)
	n := len(v)
	if n > dim {
		n = dim
	}
	copy(out, v[:n])
	return out
}
