package httpapi

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/doccat/server/blob"
	"github.com/doccat/server/models"
	"github.com/doccat/server/session"
	"github.com/doccat/server/store"
)

// fakeStore implements store.Store over an in-memory map, enough to drive
// the HTTP Surface handlers end to end.
type fakeStore struct {
	docs   map[int64]*models.Document
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[int64]*models.Document{}}
}

func (f *fakeStore) CreateDocument(ctx context.Context, filename, blobKey string, size *int64) (*models.Document, error) {
	f.nextID++
	doc := &models.Document{ID: f.nextID, Filename: filename, BlobKey: blobKey, SizeBytes: size, Status: models.DocumentStatusPending}
	f.docs[doc.ID] = doc
	return doc, nil
}
func (f *fakeStore) Get(ctx context.Context, id int64) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, errNotFound{}
	}
	return doc, nil
}
func (f *fakeStore) UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, progress *int, errMsg *string) error {
	doc, ok := f.docs[id]
	if !ok {
		return errNotFound{}
	}
	doc.Status = status
	if progress != nil {
		doc.Progress = *progress
	}
	doc.Error = errMsg
	return nil
}
func (f *fakeStore) UpdateContent(ctx context.Context, id int64, extractedText string, aiAnalysis, keywords, metadata []byte, previewKey *string) error {
	panic("not used in httpapi tests")
}
func (f *fakeStore) UpdateEmbedding(ctx context.Context, id int64, vector []float32) error {
	panic("not used in httpapi tests")
}
func (f *fakeStore) ResetForReprocessing(ctx context.Context, id int64) error {
	doc, ok := f.docs[id]
	if !ok {
		return errNotFound{}
	}
	doc.Status = models.DocumentStatusPending
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, id int64) error { delete(f.docs, id); return nil }
func (f *fakeStore) QueryDocuments(ctx context.Context, filter models.DocumentFilter, sort models.SortKey, dir models.SortDirection, page models.Page) (*models.QueryResult, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) VectorSearch(ctx context.Context, queryVec []float32, k int, filter models.DocumentFilter) ([]models.VectorMatch, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) FulltextSearch(ctx context.Context, queryText string, filter models.DocumentFilter) ([]models.TextMatch, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) TaxonomyBulkUpsert(ctx context.Context, terms []models.TaxonomyTerm, synonyms []models.TaxonomySynonym) error {
	panic("not used in httpapi tests")
}
func (f *fakeStore) GetTaxonomyTerm(ctx context.Context, id int64) (*models.TaxonomyTerm, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) FindTaxonomyTermByName(ctx context.Context, term string) (*models.TaxonomyTerm, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) ListTaxonomyTerms(ctx context.Context) ([]models.TaxonomyTerm, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) FindOrCreateTaxonomyTerm(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) SetDocumentTaxonomyMap(ctx context.Context, documentID int64, termIDs []int64) error {
	panic("not used in httpapi tests")
}
func (f *fakeStore) RecordSearchQuery(ctx context.Context, queryText string, actorID *string) error {
	return nil
}
func (f *fakeStore) TopQueries(ctx context.Context, limit int, sinceDays int) ([]store.TopQuery, error) {
	return nil, nil
}
func (f *fakeStore) FindStuckDocuments(ctx context.Context, olderThanSeconds int) ([]models.Document, error) {
	panic("not used in httpapi tests")
}
func (f *fakeStore) FacetCounts(ctx context.Context) ([]store.FacetCount, error) {
	panic("not used in httpapi tests")
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// fakeBlob is an in-memory blob.Store.
type fakeBlob struct {
	contents map[string][]byte
}

func newFakeBlob() *fakeBlob { return &fakeBlob{contents: map[string][]byte{}} }

func (b *fakeBlob) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
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

// fakeSearchEngine implements search.Engine.
type fakeSearchEngine struct {
	result      models.SearchResult
	err         error
	topQueries  []store.TopQuery
	topQueriesErr error
}

func (e *fakeSearchEngine) Search(ctx context.Context, req models.SearchRequest) (models.SearchResult, error) {
	if e.err != nil {
		return models.SearchResult{}, e.err
	}
	return e.result, nil
}
func (e *fakeSearchEngine) TopQueries(ctx context.Context, limit int) ([]store.TopQuery, error) {
	if e.topQueriesErr != nil {
		return nil, e.topQueriesErr
	}
	return e.topQueries, nil
}

// fakeSessionManager implements session.Manager with scripted behavior.
type fakeSessionManager struct {
	sessions    map[string]session.Payload
	password    string
	fallback    bool
	health      session.Health
	nextID      int
	createErr   error
}

func newFakeSessionManager(password string) *fakeSessionManager {
	return &fakeSessionManager{sessions: map[string]session.Payload{}, password: password}
}

func (m *fakeSessionManager) Create(ctx context.Context, payload session.Payload) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	id := "sess-" + strconv.Itoa(m.nextID)
	m.sessions[id] = payload
	return id, nil
}
func (m *fakeSessionManager) Load(ctx context.Context, sessionID string) (*session.Payload, error) {
	p, ok := m.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &p, nil
}
func (m *fakeSessionManager) Update(ctx context.Context, sessionID string, payload session.Payload, extend bool) error {
	m.sessions[sessionID] = payload
	return nil
}
func (m *fakeSessionManager) Destroy(ctx context.Context, sessionID string) error {
	delete(m.sessions, sessionID)
	return nil
}
func (m *fakeSessionManager) Health(ctx context.Context) session.Health { return m.health }
func (m *fakeSessionManager) VerifyPassword(candidate string) bool     { return candidate == m.password }
func (m *fakeSessionManager) InFallback() bool                         { return m.fallback }
