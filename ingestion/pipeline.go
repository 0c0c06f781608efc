package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	"github.com/doccat/server/ai"
	"github.com/doccat/server/apperr"
	"github.com/doccat/server/blob"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
	"github.com/doccat/server/taxonomy"
)

// pipeline runs the spec §4.6 processing steps A-E for one document. It
// holds no per-document mutable state, so one *pipeline is shared by every
// worker goroutine (workers never share mutable Document state, but they
// do share this stateless collaborator set).
type pipeline struct {
	st       store.Store
	bl       blob.Store
	gw       ai.Gateway
	tax      taxonomy.Engine
	preview  Preview
	cfg      PipelineConfig
}

// PipelineConfig carries the subset of config.AIConfig/IngestionConfig the
// pipeline needs, decoupled from the config package so tests can construct
// it directly.
type PipelineConfig struct {
	VectorDim        int
	RequireEmbedding bool
	AnalysisPrompt   string
}

func newPipeline(st store.Store, bl blob.Store, gw ai.Gateway, tax taxonomy.Engine, preview Preview, cfg PipelineConfig) *pipeline {
	if preview == nil {
		preview = NoopPreview{}
	}
	return &pipeline{st: st, bl: bl, gw: gw, tax: tax, preview: preview, cfg: cfg}
}

// process runs one document through steps A-E, returning a classified
// error that tells the caller (worker.go) whether to nack-retry or fail
// the document terminally.
func (p *pipeline) process(ctx context.Context, doc *models.Document) error {
	if err := p.st.UpdateStatus(ctx, doc.ID, models.DocumentStatusProcessing, intPtr(5), nil); err != nil {
		return err
	}

	// A: fetch blob
	r, err := p.bl.Get(ctx, doc.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return p.fail(ctx, doc.ID, "blob_missing", apperr.New(apperr.KindBlobMissing, "blob missing for document"))
		}
		return err
	}
	defer r.Close()

	// B: extract
	hint := hintFromFilename(doc.Filename)
	extracted, err := p.gw.ExtractText(ctx, r, hint)
	if err != nil {
		ae := apperr.As(err)
		if ae.Kind.IsRetriable() {
			return err
		}
		return p.fail(ctx, doc.ID, "extraction", ae)
	}
	if err := p.st.UpdateStatus(ctx, doc.ID, models.DocumentStatusProcessing, intPtr(25), nil); err != nil {
		return err
	}

	// C: analyze + validate + persist
	snapshot, err := p.tax.CanonicalTerms(ctx)
	if err != nil {
		return err
	}
	raw, err := p.gw.Analyze(ctx, extracted.Text, p.cfg.AnalysisPrompt, snapshot)
	if err != nil {
		ae := apperr.As(err)
		if ae.Kind.IsRetriable() {
			return err
		}
		return p.fail(ctx, doc.ID, "analysis", ae)
	}
	var shape models.AIAnalysisShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return p.fail(ctx, doc.ID, "analysis", apperr.Wrap(apperr.KindMalformedAI, err, "analysis response did not match expected shape"))
	}

	validated, err := p.tax.ValidateMapping(ctx, shape.KeywordMappings)
	if err != nil {
		return err
	}
	shape.KeywordMappings = validated.Valid

	keywords, _ := json.Marshal(keywordStrings(shape.Categories))
	metadata, _ := json.Marshal(map[string]any{"keyword_mappings": shape.KeywordMappings})
	analysisJSON, _ := json.Marshal(shape)

	if err := p.st.UpdateContent(ctx, doc.ID, extracted.Text, analysisJSON, keywords, metadata, nil); err != nil {
		return err
	}
	if err := p.resolveTaxonomyMap(ctx, doc.ID, shape.KeywordMappings); err != nil {
		log.Warnw("taxonomy map update failed, continuing", "document_id", doc.ID, "error", err)
	}
	if err := p.st.UpdateStatus(ctx, doc.ID, models.DocumentStatusProcessing, intPtr(55), nil); err != nil {
		return err
	}

	// D: embed + persist
	vec, err := p.gw.Embed(ctx, extracted.Text, p.cfg.VectorDim)
	if err != nil {
		if p.cfg.RequireEmbedding {
			ae := apperr.As(err)
			if ae.Kind.IsRetriable() {
				return err
			}
			return p.fail(ctx, doc.ID, "embedding", ae)
		}
		log.Warnw("embedding failed but partial completion allowed", "document_id", doc.ID, "error", err)
	} else {
		projected := ai.ProjectVector(vec, p.cfg.VectorDim)
		if err := p.st.UpdateEmbedding(ctx, doc.ID, projected); err != nil {
			return err
		}
	}
	if err := p.st.UpdateStatus(ctx, doc.ID, models.DocumentStatusProcessing, intPtr(80), nil); err != nil {
		return err
	}

	// E: preview (best-effort) + finalize
	previewKey, err := p.preview.Render(ctx, doc.BlobKey, "")
	if err != nil {
		log.Warnw("preview generation failed, continuing", "document_id", doc.ID, "error", err)
		previewKey = ""
	}
	if previewKey != "" {
		if err := p.st.UpdateContent(ctx, doc.ID, extracted.Text, analysisJSON, keywords, metadata, &previewKey); err != nil {
			log.Warnw("failed to persist preview key", "document_id", doc.ID, "error", err)
		}
	}

	return p.st.UpdateStatus(ctx, doc.ID, models.DocumentStatusCompleted, intPtr(100), nil)
}

func (p *pipeline) fail(ctx context.Context, documentID int64, reason string, cause error) error {
	msg := reason + ": " + cause.Error()
	if err := p.st.UpdateStatus(ctx, documentID, models.DocumentStatusFailed, nil, &msg); err != nil {
		return err
	}
	// terminal failure: return nil so the worker acks the job instead of
	// nacking for retry.
	return nil
}

func (p *pipeline) resolveTaxonomyMap(ctx context.Context, documentID int64, mappings []models.KeywordMapping) error {
	var termIDs []int64
	for _, m := range mappings {
		if m.MappedCanonicalTerm == nil {
			continue
		}
		term, err := p.tax.FindOrCreate(ctx, *m.MappedCanonicalTerm, nil, nil)
		if err != nil {
			return err
		}
		termIDs = append(termIDs, term.ID)
	}
	return p.st.SetDocumentTaxonomyMap(ctx, documentID, termIDs)
}

func keywordStrings(categories []string) []string {
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

func hintFromFilename(filename string) ai.HintType {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return ai.HintPDF
	case ".docx":
		return ai.HintOffice
	case ".jpg", ".jpeg", ".png":
		return ai.HintImage
	default:
		return ai.HintText
	}
}
