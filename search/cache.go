package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/doccat/server/broker"
	"github.com/doccat/server/models"
)

// cacheKeyParams mirrors spec §4.7's stable hash input: {normalized_q,
// filters, sort_by, sort_direction, page, per_page}.
type cacheKeyParams struct {
	Query           string             `json:"q"`
	CanonicalTerm   string             `json:"canonical_term"`
	PrimaryCategory string             `json:"primary_category"`
	SortBy          models.SortKey     `json:"sort_by"`
	SortDirection   models.SortDirection `json:"sort_direction"`
	Page            int                `json:"page"`
	PerPage         int                `json:"per_page"`
}

// cacheKey builds the stable search:{hash} key, grounded on the teacher's
// cacheServiceImpl.GenerateCacheKey sha256-of-JSON pattern.
func cacheKey(req models.SearchRequest) string {
	params := cacheKeyParams{
		Query:           normalizeForTokenCount(req.Query),
		CanonicalTerm:   req.CanonicalTerm,
		PrimaryCategory: req.PrimaryCategory,
		SortBy:          req.SortBy,
		SortDirection:   req.SortDirection,
		Page:            req.Page,
		PerPage:         req.PerPage,
	}
	data, _ := json.Marshal(params)
	sum := sha256.Sum256(data)
	return broker.SearchKey(hex.EncodeToString(sum[:]))
}
