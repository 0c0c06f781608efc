package models

// SortKey is one of the allowed query_documents sort keys (spec §4.1).
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortCreatedAt SortKey = "created_at"
	SortFilename  SortKey = "filename"
	SortSize      SortKey = "size"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// DocumentFilter is the filter shape accepted by Store.query_documents
// (spec §4.1): status, canonical_term, and free text.
type DocumentFilter struct {
	Status         *DocumentStatus
	CanonicalTerm  *string
	PrimaryCategory *string
	FreeText       *string
}

// Page is a 1-based page request.
type Page struct {
	Number  int
	PerPage int
}

func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// QueryResult is the {rows, total} shape from Store.query_documents.
type QueryResult struct {
	Rows  []Document
	Total int64
}

// VectorMatch is one element of the vector_search result (spec §4.1).
type VectorMatch struct {
	DocumentID  int64
	CosineScore float64
}

// TextMatch is one element of the fulltext_search result (spec §4.1).
type TextMatch struct {
	DocumentID int64
	Rank       float64
}

// SearchRequest is the HTTP Surface GET /documents/search input (spec §4.7).
type SearchRequest struct {
	Query           string        `form:"q"`
	CanonicalTerm   string        `form:"canonical_term"`
	PrimaryCategory string        `form:"primary_category"`
	SortBy          SortKey       `form:"sort_by"`
	SortDirection   SortDirection `form:"sort_direction"`
	Page            int           `form:"page"`
	PerPage         int           `form:"per_page"`
}

// Facet is one bucket of the facet counts returned on page 1 (spec §4.7).
type Facet struct {
	PrimaryCategory string         `json:"primary_category"`
	Count           int            `json:"count"`
	Subcategories   map[string]int `json:"subcategories,omitempty"`
}

// Pagination is the envelope pagination block (spec §4.7).
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// SearchResult is the envelope returned by the Search engine (spec §4.7).
type SearchResult struct {
	Documents  []ScoredDocument `json:"documents"`
	Pagination Pagination       `json:"pagination"`
	TotalCount int              `json:"total_count"`
	Facets     []Facet          `json:"facets,omitempty"`
}

// ScoredDocument pairs a Document with its computed relevance score and the
// component breakdown used to compute it (kept for observability/tests).
type ScoredDocument struct {
	Document Document      `json:"document"`
	Score    float64       `json:"score"`
	Breakdown ScoreBreakdown `json:"score_breakdown,omitempty"`
}

// ScoreBreakdown is the per-factor score before weighting (spec §4.7).
type ScoreBreakdown struct {
	Vector     float64 `json:"vector"`
	Text       float64 `json:"text"`
	Taxonomy   float64 `json:"taxonomy"`
	Quality    float64 `json:"quality"`
	Freshness  float64 `json:"freshness"`
	Popularity float64 `json:"popularity"`
}
