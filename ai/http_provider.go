package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// httpProvider implements the analyze/embed half of Provider over a
// JSON/REST API, the same shape jordigilh-kubernaut's pkg/ai/http client
// uses for its AI service (plain net/http + encoding/json, POST with a
// JSON body, Content-Type header asserted). AnthropicProvider,
// OpenAIProvider, and GeminiProvider are thin named wrappers around this
// so each is a distinct type per the spec's closed provider sum type,
// while sharing one HTTP transport.
type httpProvider struct {
	name         string
	capabilities []Capability
	baseURL      string
	apiKey       string
	client       *http.Client

	analyzePath string
	embedPath   string
}

type analyzeRequest struct {
	Text     string   `json:"text"`
	Prompt   string   `json:"prompt"`
	Taxonomy []string `json:"taxonomy_snapshot"`
}

type analyzeResponse struct {
	Output string `json:"output"`
}

type embedRequest struct {
	Text string `json:"text"`
	Dim  int    `json:"dim"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

func (p *httpProvider) Name() string              { return p.name }
func (p *httpProvider) Capabilities() []Capability { return p.capabilities }

func (p *httpProvider) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrQuotaExhausted
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrProviderUnavailable
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// ExtractText delegates to the shared extractText helper (extract.go); the
// httpProvider itself carries no remote extraction endpoint because every
// configured provider uses the same local PDF/DOCX readers. This method
// exists so httpProvider still satisfies Provider end to end.
func (p *httpProvider) ExtractText(ctx context.Context, blob io.Reader, hint HintType) (ExtractResult, error) {
	return extractText(ctx, blob, hint, NoopOCREngine{})
}

// Analyze posts text+prompt+taxonomy to the provider and enforces a
// JSON-shaped response by slicing between the first '{' and the last
// matching '}' (spec §4.5). If the brace slice is not valid JSON, this
// method itself re-asks once with a stricter instruction appended to the
// prompt before giving up.
func (p *httpProvider) Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error) {
	out, err := p.analyzeOnce(ctx, text, promptTemplate, taxonomySnapshot)
	if err == nil {
		return out, nil
	}
	if !isMalformed(err) {
		return nil, err
	}
	stricter := promptTemplate + "\n\nRespond with ONLY a single JSON object. No prose, no markdown fences."
	return p.analyzeOnce(ctx, text, stricter, taxonomySnapshot)
}

func (p *httpProvider) analyzeOnce(ctx context.Context, text, prompt string, taxonomySnapshot []string) ([]byte, error) {
	var resp analyzeResponse
	if err := p.post(ctx, p.analyzePath, analyzeRequest{Text: text, Prompt: prompt, Taxonomy: taxonomySnapshot}, &resp); err != nil {
		return nil, err
	}
	obj, ok := extractJSONObject(resp.Output)
	if !ok {
		return nil, ErrMalformedResponse
	}
	return obj, nil
}

func (p *httpProvider) Embed(ctx context.Context, text string, dim int) ([]float32, error) {
	var resp embedResponse
	if err := p.post(ctx, p.embedPath, embedRequest{Text: text, Dim: dim}, &resp); err != nil {
		return nil, err
	}
	return resp.Vector, nil
}

func isMalformed(err error) bool {
	return err == ErrMalformedResponse || strings.Contains(err.Error(), "malformed")
}

// extractJSONObject slices the first balanced {...} region out of s, the
// brace-matching strategy spec §4.5 mandates in place of trusting the
// provider to return bare JSON.
func extractJSONObject(s string) ([]byte, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := []byte(s[start : i+1])
				var probe map[string]interface{}
				if json.Unmarshal(candidate, &probe) == nil {
					return candidate, true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
