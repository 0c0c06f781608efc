package ingestion

import "context"

// Preview is an external collaborator the spec explicitly leaves as an
// interface only ("render a preview of this file"); thumbnail rendering
// itself is out of scope (spec Non-goals). The pipeline calls it
// best-effort at stage E and tolerates failure.
type Preview interface {
	Render(ctx context.Context, blobKey, contentType string) (previewKey string, err error)
}

// NoopPreview always reports "no preview available" without error, so
// stage E can proceed to COMPLETED when no real preview renderer is wired.
type NoopPreview struct{}

func (NoopPreview) Render(ctx context.Context, blobKey, contentType string) (string, error) {
	return "", nil
}
