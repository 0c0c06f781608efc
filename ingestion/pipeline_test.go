package ingestion

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doccat/server/ai"
	"github.com/doccat/server/apperr"
	"github.com/doccat/server/blob"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
)

// fakeStore implements store.Store with in-memory Document state, enough
// to drive the pipeline end to end.
type fakeStore struct {
	docs      map[int64]*models.Document
	taxonomyMaps map[int64][]int64
	stuckIDs  []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[int64]*models.Document{}, taxonomyMaps: map[int64][]int64{}}
}

func (f *fakeStore) CreateDocument(ctx context.Context, filename, blobKey string, size *int64) (*models.Document, error) {
	id := int64(len(f.docs) + 1)
	doc := &models.Document{ID: id, Filename: filename, BlobKey: blobKey, SizeBytes: size, Status: models.DocumentStatusPending}
	f.docs[id] = doc
	return doc, nil
}
func (f *fakeStore) Get(ctx context.Context, id int64) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "not found")
	}
	return doc, nil
}
func (f *fakeStore) UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, progress *int, errMsg *string) error {
	doc := f.docs[id]
	doc.Status = status
	if progress != nil {
		doc.Progress = *progress
	}
	doc.Error = errMsg
	return nil
}
func (f *fakeStore) UpdateContent(ctx context.Context, id int64, extractedText string, aiAnalysis []byte, keywords []byte, metadata []byte, previewKey *string) error {
	doc := f.docs[id]
	doc.ExtractedText = &extractedText
	doc.AIAnalysis = aiAnalysis
	doc.Keywords = keywords
	doc.Metadata = metadata
	if previewKey != nil {
		doc.PreviewKey = previewKey
	}
	return nil
}
func (f *fakeStore) UpdateEmbedding(ctx context.Context, id int64, vector []float32) error {
	return nil
}
func (f *fakeStore) ResetForReprocessing(ctx context.Context, id int64) error {
	doc := f.docs[id]
	doc.Status = models.DocumentStatusPending
	doc.ExtractedText = nil
	doc.AIAnalysis = nil
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, id int64) error { delete(f.docs, id); return nil }
func (f *fakeStore) QueryDocuments(ctx context.Context, filter models.DocumentFilter, sort models.SortKey, dir models.SortDirection, page models.Page) (*models.QueryResult, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) VectorSearch(ctx context.Context, queryVec []float32, k int, filter models.DocumentFilter) ([]models.VectorMatch, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) FulltextSearch(ctx context.Context, queryText string, filter models.DocumentFilter) ([]models.TextMatch, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) TaxonomyBulkUpsert(ctx context.Context, terms []models.TaxonomyTerm, synonyms []models.TaxonomySynonym) error {
	panic("not used in pipeline tests")
}
func (f *fakeStore) GetTaxonomyTerm(ctx context.Context, id int64) (*models.TaxonomyTerm, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) FindTaxonomyTermByName(ctx context.Context, term string) (*models.TaxonomyTerm, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) ListTaxonomyTerms(ctx context.Context) ([]models.TaxonomyTerm, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) FindOrCreateTaxonomyTerm(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) SetDocumentTaxonomyMap(ctx context.Context, documentID int64, termIDs []int64) error {
	f.taxonomyMaps[documentID] = termIDs
	return nil
}
func (f *fakeStore) RecordSearchQuery(ctx context.Context, queryText string, actorID *string) error {
	panic("not used in pipeline tests")
}
func (f *fakeStore) TopQueries(ctx context.Context, limit int, sinceDays int) ([]store.TopQuery, error) {
	panic("not used in pipeline tests")
}
func (f *fakeStore) FindStuckDocuments(ctx context.Context, olderThanSeconds int) ([]models.Document, error) {
	var out []models.Document
	for _, id := range f.stuckIDs {
		if doc, ok := f.docs[id]; ok {
			out = append(out, *doc)
		}
	}
	return out, nil
}
func (f *fakeStore) FacetCounts(ctx context.Context) ([]store.FacetCount, error) {
	panic("not used in pipeline tests")
}

// fakeBlob serves bytes for a single known key.
type fakeBlob struct {
	contents map[string][]byte
}

func (b *fakeBlob) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	data, _ := io.ReadAll(r)
	b.contents[key] = data
	return key, nil
}
func (b *fakeBlob) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.contents[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
func (b *fakeBlob) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := b.contents[key]
	return ok, nil
}
func (b *fakeBlob) Delete(ctx context.Context, key string) error { delete(b.contents, key); return nil }
func (b *fakeBlob) PresignedGet(ctx context.Context, key string, ttlSeconds int) (string, error) {
	return "", nil
}

// fakeGateway returns scripted results/errors per call.
type fakeGateway struct {
	extractErr error
	analyzeErr error
	embedErr   error
	analysis   string
}

func (g *fakeGateway) ExtractText(ctx context.Context, r io.Reader, hint ai.HintType) (ai.ExtractResult, error) {
	if g.extractErr != nil {
		return ai.ExtractResult{}, g.extractErr
	}
	return ai.ExtractResult{Text: "extracted text"}, nil
}
func (g *fakeGateway) Analyze(ctx context.Context, text, promptTemplate string, taxonomySnapshot []string) ([]byte, error) {
	if g.analyzeErr != nil {
		return nil, g.analyzeErr
	}
	if g.analysis != "" {
		return []byte(g.analysis), nil
	}
	return []byte(`{"summary":"a summary","categories":["Finance"],"keyword_mappings":[{"verbatim_term":"inv","mapped_canonical_term":"Invoice"}]}`), nil
}
func (g *fakeGateway) Embed(ctx context.Context, text string, dim int) ([]float32, error) {
	if g.embedErr != nil {
		return nil, g.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeTax resolves every term to itself via FindOrCreate.
type fakeTax struct {
	nextID int64
	valid  models.ValidationResult
}

func (t *fakeTax) Initialize(ctx context.Context, source []models.TaxonomyRow) (models.Statistics, error) {
	panic("not used in pipeline tests")
}
func (t *fakeTax) Hierarchy(ctx context.Context) (models.Hierarchy, error) {
	panic("not used in pipeline tests")
}
func (t *fakeTax) CanonicalTerms(ctx context.Context) ([]string, error) {
	return []string{"Invoice"}, nil
}
func (t *fakeTax) Search(ctx context.Context, q string, limit int) ([]string, error) {
	panic("not used in pipeline tests")
}
func (t *fakeTax) Resolve(ctx context.Context, verbatim string) (*string, error) {
	panic("not used in pipeline tests")
}
func (t *fakeTax) ValidateMapping(ctx context.Context, mappings []models.KeywordMapping) (models.ValidationResult, error) {
	if t.valid.Valid != nil || t.valid.Rejected != nil {
		return t.valid, nil
	}
	return models.ValidationResult{Valid: mappings}, nil
}
func (t *fakeTax) FindOrCreate(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error) {
	t.nextID++
	return &models.TaxonomyTerm{ID: t.nextID, Term: term}, nil
}
func (t *fakeTax) Statistics(ctx context.Context) (models.Statistics, error) {
	panic("not used in pipeline tests")
}

func newTestPipeline(st *fakeStore, bl *fakeBlob, gw *fakeGateway, tax *fakeTax) *pipeline {
	return newPipeline(st, bl, gw, tax, NoopPreview{}, PipelineConfig{VectorDim: 3, RequireEmbedding: false, AnalysisPrompt: "prompt"})
}

func TestPipeline_HappyPath_CompletesDocument(t *testing.T) {
	st := newFakeStore()
	bl := &fakeBlob{contents: map[string][]byte{"key1": []byte("file bytes")}}
	doc, err := st.CreateDocument(context.Background(), "invoice.pdf", "key1", nil)
	require.NoError(t, err)

	p := newTestPipeline(st, bl, &fakeGateway{}, &fakeTax{})
	require.NoError(t, p.process(context.Background(), doc))

	got := st.docs[doc.ID]
	assert.Equal(t, models.DocumentStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, "extracted text", *got.ExtractedText)
	assert.Len(t, st.taxonomyMaps[doc.ID], 1)
}

func TestPipeline_BlobMissing_FailsDocumentTerminally(t *testing.T) {
	st := newFakeStore()
	bl := &fakeBlob{contents: map[string][]byte{}}
	doc, err := st.CreateDocument(context.Background(), "ghost.pdf", "missing-key", nil)
	require.NoError(t, err)

	p := newTestPipeline(st, bl, &fakeGateway{}, &fakeTax{})
	// fail() records the terminal failure and returns nil so the worker acks.
	require.NoError(t, p.process(context.Background(), doc))
	got := st.docs[doc.ID]
	assert.Equal(t, models.DocumentStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "blob_missing")
}

func TestPipeline_TransientExtractError_PropagatesForRetry(t *testing.T) {
	st := newFakeStore()
	bl := &fakeBlob{contents: map[string][]byte{"key1": []byte("bytes")}}
	doc, err := st.CreateDocument(context.Background(), "a.pdf", "key1", nil)
	require.NoError(t, err)

	gw := &fakeGateway{extractErr: apperr.New(apperr.KindTransient, "transient")}
	p := newTestPipeline(st, bl, gw, &fakeTax{})
	err = p.process(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.As(err).Kind)
	assert.Equal(t, models.DocumentStatusProcessing, st.docs[doc.ID].Status)
}

func TestPipeline_NonRetriableAnalysisError_FailsDocument(t *testing.T) {
	st := newFakeStore()
	bl := &fakeBlob{contents: map[string][]byte{"key1": []byte("bytes")}}
	doc, err := st.CreateDocument(context.Background(), "a.pdf", "key1", nil)
	require.NoError(t, err)

	gw := &fakeGateway{analyzeErr: apperr.New(apperr.KindAuth, "unauthorized")}
	p := newTestPipeline(st, bl, gw, &fakeTax{})
	require.NoError(t, p.process(context.Background(), doc)) // fail() swallows the error so the worker acks

	got := st.docs[doc.ID]
	assert.Equal(t, models.DocumentStatusFailed, got.Status)
	require.NotNil(t, got.Error)
}

func TestPipeline_EmbeddingFailsButNotRequired_StillCompletes(t *testing.T) {
	st := newFakeStore()
	bl := &fakeBlob{contents: map[string][]byte{"key1": []byte("bytes")}}
	doc, err := st.CreateDocument(context.Background(), "a.pdf", "key1", nil)
	require.NoError(t, err)

	gw := &fakeGateway{embedErr: apperr.New(apperr.KindProviderUnavail, "unavailable")}
	p := newTestPipeline(st, bl, gw, &fakeTax{})
	require.NoError(t, p.process(context.Background(), doc))
	assert.Equal(t, models.DocumentStatusCompleted, st.docs[doc.ID].Status)
}

func TestPipeline_MalformedAnalysisResponse_FailsDocument(t *testing.T) {
	st := newFakeStore()
	bl := &fakeBlob{contents: map[string][]byte{"key1": []byte("bytes")}}
	doc, err := st.CreateDocument(context.Background(), "a.pdf", "key1", nil)
	require.NoError(t, err)

	gw := &fakeGateway{analysis: "not json"}
	p := newTestPipeline(st, bl, gw, &fakeTax{})
	require.NoError(t, p.process(context.Background(), doc))
	got := st.docs[doc.ID]
	assert.Equal(t, models.DocumentStatusFailed, got.Status)
}
