// Package ai implements the AI Gateway: provider-agnostic text extraction,
// structured analysis, and embedding, with per-provider circuit breaking and
// retry (spec §4.5). Grounded on jordigilh-kubernaut's use of
// sony/gobreaker for circuit state and cenkalti/backoff/v4 for retry.
package ai

import (
	"context"
	"io"
)

// HintType is the caller-supplied document kind from spec §4.5.
type HintType string

const (
	HintPDF    HintType = "pdf"
	HintImage  HintType = "image"
	HintText   HintType = "text"
	HintOffice HintType = "office"
)

// Capability is one of the three things a Provider can be asked to do.
type Capability string

const (
	CapExtract Capability = "extract"
	CapAnalyze Capability = "analyze"
	CapEmbed   Capability = "embed"
)

// ExtractResult is extract_text's return shape (spec §4.5).
type ExtractResult struct {
	Text    string
	PerPage []string
}

// Provider is one backing LLM/extraction vendor. Implementations are a
// closed sum type (AnthropicProvider, OpenAIProvider, GeminiProvider)
// rather than a duck-typed plugin registry, per the spec's redesign away
// from reflection-based provider discovery.
type Provider interface {
	Name() string
	Capabilities() []Capability
	ExtractText(ctx context.Context, blob io.Reader, hint HintType) (ExtractResult, error)
	Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error)
	Embed(ctx context.Context, text string, dim int) ([]float32, error)
}

// Gateway is the spec §4.5 contract consumed by the Ingestion Pipeline.
type Gateway interface {
	ExtractText(ctx context.Context, blob io.Reader, hint HintType) (ExtractResult, error)
	Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error)
	Embed(ctx context.Context, text string, dim int) ([]float32, error)
}

// OCREngine performs optical character recognition on page images. No
// corpus repo imports an OCR library (grep across all go.mod manifests
// found zero hits), so this is a collaborator interface with only a stub
// implementation; a real backend can be wired in without touching Gateway
// callers (see DESIGN.md).
type OCREngine interface {
	RecognizeText(ctx context.Context, image io.Reader) (string, error)
}

// NoopOCREngine always reports that OCR is unavailable. It exists so the
// Gateway can degrade to "extraction incomplete" rather than panicking when
// no OCR backend is configured.
type NoopOCREngine struct{}

func (NoopOCREngine) RecognizeText(ctx context.Context, image io.Reader) (string, error) {
	return "", ErrOCRUnavailable
}
