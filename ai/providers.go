package ai

import (
	"context"
	"io"
	"net/http"
)

// AnthropicProvider, OpenAIProvider, and GeminiProvider are the spec's
// closed provider sum type (spec §4.5): each wraps the shared httpProvider
// transport with its own base URL, auth header convention, and capability
// set, so provider selection never relies on runtime reflection or a
// string-keyed plugin registry.

type AnthropicProvider struct{ *httpProvider }

func NewAnthropicProvider(baseURL, apiKey string) *AnthropicProvider {
	return &AnthropicProvider{&httpProvider{
		name:         "anthropic",
		capabilities: []Capability{CapAnalyze, CapEmbed},
		baseURL:      baseURL,
		apiKey:       apiKey,
		client:       http.DefaultClient,
		analyzePath:  "/v1/analyze",
		embedPath:    "/v1/embeddings",
	}}
}

type OpenAIProvider struct{ *httpProvider }

func NewOpenAIProvider(baseURL, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{&httpProvider{
		name:         "openai",
		capabilities: []Capability{CapAnalyze, CapEmbed},
		baseURL:      baseURL,
		apiKey:       apiKey,
		client:       http.DefaultClient,
		analyzePath:  "/v1/chat/completions",
		embedPath:    "/v1/embeddings",
	}}
}

type GeminiProvider struct{ *httpProvider }

func NewGeminiProvider(baseURL, apiKey string) *GeminiProvider {
	return &GeminiProvider{&httpProvider{
		name:         "gemini",
		capabilities: []Capability{CapAnalyze, CapEmbed, CapExtract},
		baseURL:      baseURL,
		apiKey:       apiKey,
		client:       http.DefaultClient,
		analyzePath:  "/v1/generate",
		embedPath:    "/v1/embed",
	}}
}

// LocalExtractProvider offers only CapExtract, backed by the local
// PDF/DOCX readers (extract.go). It has no remote endpoint and no
// circuit-breaker-relevant failure mode beyond malformed/unsupported
// input, but still satisfies Provider so the Gateway can route extraction
// to it uniformly with the remote providers.
type LocalExtractProvider struct {
	ocr OCREngine
}

func NewLocalExtractProvider(ocr OCREngine) *LocalExtractProvider {
	if ocr == nil {
		ocr = NoopOCREngine{}
	}
	return &LocalExtractProvider{ocr: ocr}
}

func (p *LocalExtractProvider) Name() string              { return "local-extract" }
func (p *LocalExtractProvider) Capabilities() []Capability { return []Capability{CapExtract} }

func (p *LocalExtractProvider) ExtractText(ctx context.Context, blob io.Reader, hint HintType) (ExtractResult, error) {
	return extractText(ctx, blob, hint, p.ocr)
}

func (p *LocalExtractProvider) Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error) {
	return nil, ErrProviderUnavailable
}

func (p *LocalExtractProvider) Embed(ctx context.Context, text string, dim int) ([]float32, error) {
	return nil, ErrProviderUnavailable
}
