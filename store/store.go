// Package store provides typed access to the relational store: documents,
// taxonomy, and search analytics. All mutating operations run inside
// transactions; read paths may be non-transactional (spec §4.1).
package store

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/doccat/server/models"
)

// Store is the spec §4.1 contract.
type Store interface {
	CreateDocument(ctx context.Context, filename, blobKey string, size *int64) (*models.Document, error)
	Get(ctx context.Context, id int64) (*models.Document, error)
	UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, progress *int, errMsg *string) error
	UpdateContent(ctx context.Context, id int64, extractedText string, aiAnalysis []byte, keywords []byte, metadata []byte, previewKey *string) error
	UpdateEmbedding(ctx context.Context, id int64, vector []float32) error
	ResetForReprocessing(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	QueryDocuments(ctx context.Context, filter models.DocumentFilter, sort models.SortKey, dir models.SortDirection, page models.Page) (*models.QueryResult, error)
	VectorSearch(ctx context.Context, queryVec []float32, k int, filter models.DocumentFilter) ([]models.VectorMatch, error)
	FulltextSearch(ctx context.Context, queryText string, filter models.DocumentFilter) ([]models.TextMatch, error)

	TaxonomyBulkUpsert(ctx context.Context, terms []models.TaxonomyTerm, synonyms []models.TaxonomySynonym) error
	GetTaxonomyTerm(ctx context.Context, id int64) (*models.TaxonomyTerm, error)
	FindTaxonomyTermByName(ctx context.Context, term string) (*models.TaxonomyTerm, error)
	ListTaxonomyTerms(ctx context.Context) ([]models.TaxonomyTerm, error)
	FindOrCreateTaxonomyTerm(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error)

	SetDocumentTaxonomyMap(ctx context.Context, documentID int64, termIDs []int64) error

	RecordSearchQuery(ctx context.Context, queryText string, actorID *string) error
	TopQueries(ctx context.Context, limit int, since_days int) ([]TopQuery, error)

	FindStuckDocuments(ctx context.Context, olderThanSeconds int) ([]models.Document, error)

	// FacetCounts computes the unfiltered primary_category/subcategory
	// distribution over the current corpus (spec §4.7 facets).
	FacetCounts(ctx context.Context) ([]FacetCount, error)
}

// TopQuery is one row of the top_queries(limit) result (spec §4.7).
type TopQuery struct {
	QueryText string `json:"query_text"`
	Count     int64  `json:"count"`
}

// FacetCount is one (primary_category, subcategory) bucket with its
// document count (spec §4.7 facets).
type FacetCount struct {
	PrimaryCategory string `json:"primary_category"`
	Subcategory     string `json:"subcategory"`
	Count           int64  `json:"count"`
}

// toVector adapts a plain []float32 into the pgvector wire type.
func toVector(v []float32) pgvector.Vector {
	return pgvector.NewVector(v)
}
