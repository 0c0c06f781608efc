package ai

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/config"
)

// fakeProvider counts calls and returns a scripted sequence of errors so
// tests can exercise retry-then-move-to-next-provider behavior (spec §4.5,
// §9 scenario S5) without a real network call.
type fakeProvider struct {
	name  string
	caps  []Capability
	calls int
	errs  []error // nil entries succeed
}

func (p *fakeProvider) Name() string                   { return p.name }
func (p *fakeProvider) Capabilities() []Capability      { return p.caps }
func (p *fakeProvider) next() error {
	p.calls++
	if p.calls > len(p.errs) {
		return nil
	}
	return p.errs[p.calls-1]
}
func (p *fakeProvider) ExtractText(ctx context.Context, blob io.Reader, hint HintType) (ExtractResult, error) {
	if err := p.next(); err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{Text: "ok from " + p.name}, nil
}
func (p *fakeProvider) Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return []byte(`{"summary":"ok"}`), nil
}
func (p *fakeProvider) Embed(ctx context.Context, text string, dim int) ([]float32, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return []float32{0.1, 0.2}, nil
}

func testCfg() config.AIConfig {
	return config.AIConfig{
		RetryBaseS:              0,
		RetryCapS:               0,
		RetryMaxAttempts:        3,
		CallTimeoutS:            5,
		CircuitFailureThreshold: 5,
		CircuitCooldownS:        60,
	}
}

func TestGateway_ExtractText_Succeeds(t *testing.T) {
	p := &fakeProvider{name: "anthropic", caps: []Capability{CapExtract}}
	gw := NewGateway(testCfg(), []Provider{p})

	result, err := gw.ExtractText(context.Background(), nil, HintText)
	require.NoError(t, err)
	assert.Equal(t, "ok from anthropic", result.Text)
}

func TestGateway_RetriesTransientThenSucceeds(t *testing.T) {
	p := &fakeProvider{name: "openai", caps: []Capability{CapAnalyze}, errs: []error{ErrTransient, ErrTransient}}
	gw := NewGateway(testCfg(), []Provider{p})

	_, err := gw.Analyze(context.Background(), "text", "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestGateway_NonRetriableMovesToNextProvider(t *testing.T) {
	bad := &fakeProvider{name: "bad", caps: []Capability{CapEmbed}, errs: []error{ErrUnauthorized}}
	good := &fakeProvider{name: "good", caps: []Capability{CapEmbed}}
	gw := NewGateway(testCfg(), []Provider{bad, good})

	vec, err := gw.Embed(context.Background(), "text", 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, 1, bad.calls) // no retry for a non-retriable error
	assert.Equal(t, 1, good.calls)
}

func TestGateway_QuotaExhausted_ForcesCircuitOpenForNextCall(t *testing.T) {
	bad := &fakeProvider{name: "bad", caps: []Capability{CapEmbed}, errs: []error{ErrQuotaExhausted}}
	good := &fakeProvider{name: "good", caps: []Capability{CapEmbed}}
	gw := NewGateway(testCfg(), []Provider{bad, good})

	// first call: bad trips on a single QuotaExhausted, no retries, falls
	// through to good (spec §9 scenario S5).
	vec, err := gw.Embed(context.Background(), "text", 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, 1, bad.calls) // no retry for a quota error
	assert.Equal(t, 1, good.calls)

	// second call: bad's circuit must already be forced open, so it is
	// skipped entirely rather than retried.
	_, err = gw.Embed(context.Background(), "text", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls, "forced-open provider must not be called again within the cooldown")
	assert.Equal(t, 2, good.calls)
}

func TestGateway_RateLimited_ForcesCircuitOpen(t *testing.T) {
	bad := &fakeProvider{name: "bad", caps: []Capability{CapAnalyze}, errs: []error{ErrRateLimited}}
	good := &fakeProvider{name: "good", caps: []Capability{CapAnalyze}}
	gw := NewGateway(testCfg(), []Provider{bad, good})

	_, err := gw.Analyze(context.Background(), "text", "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls, "a single rate-limit error must open the circuit, not retry")

	_, err = gw.Analyze(context.Background(), "text", "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 2, good.calls)
}

func TestGateway_AllProvidersFail_ReturnsClassifiedError(t *testing.T) {
	p := &fakeProvider{name: "flaky", caps: []Capability{CapExtract}, errs: []error{ErrUnauthorized}}
	gw := NewGateway(testCfg(), []Provider{p})

	_, err := gw.ExtractText(context.Background(), nil, HintText)
	require.Error(t, err)
	ae := apperr.As(err)
	assert.Equal(t, apperr.KindAuth, ae.Kind)
}

func TestGateway_NoProviderForCapability(t *testing.T) {
	p := &fakeProvider{name: "textonly", caps: []Capability{CapExtract}}
	gw := NewGateway(testCfg(), []Provider{p})

	_, err := gw.Embed(context.Background(), "text", 2)
	require.Error(t, err)
	ae := apperr.As(err)
	assert.Equal(t, apperr.KindProviderUnavail, ae.Kind)
}

func TestProjectVector_TruncatesAndPads(t *testing.T) {
	assert.Equal(t, []float32{1, 2}, ProjectVector([]float32{1, 2, 3}, 2))
	assert.Equal(t, []float32{1, 2, 0}, ProjectVector([]float32{1, 2}, 3))
	assert.Equal(t, []float32{1, 2}, ProjectVector([]float32{1, 2}, 2))
}
