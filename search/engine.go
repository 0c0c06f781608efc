package search

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/doccat/server/ai"
	"github.com/doccat/server/broker"
	"github.com/doccat/server/config"
	"github.com/doccat/server/logger"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
	"github.com/doccat/server/taxonomy"
)

var log = logger.New("search")

// Engine is the spec §4.7 Search & Relevance contract.
type Engine interface {
	Search(ctx context.Context, req models.SearchRequest) (models.SearchResult, error)
	TopQueries(ctx context.Context, limit int) ([]store.TopQuery, error)
}

type engine struct {
	st  store.Store
	br  broker.Broker
	gw  ai.Gateway
	tax taxonomy.Engine
	cfg config.SearchConfig
}

func New(st store.Store, br broker.Broker, gw ai.Gateway, tax taxonomy.Engine, cfg config.SearchConfig) Engine {
	return &engine{st: st, br: br, gw: gw, tax: tax, cfg: cfg}
}

const candidateTopK = 100

// Search implements spec §4.7 end to end: classification, weighting,
// candidate union, scoring, pagination, facets, caching, and analytics.
func (e *engine) Search(ctx context.Context, req models.SearchRequest) (models.SearchResult, error) {
	req = applyDefaults(req, e.cfg)

	key := cacheKey(req)
	if cached, ok, err := e.br.Get(ctx, key); err == nil && ok {
		var result models.SearchResult
		if err := json.Unmarshal(cached, &result); err == nil {
			e.logQueryAsync(ctx, req.Query)
			return result, nil
		}
	}

	result, err := e.computeResult(ctx, req)
	if err != nil {
		return models.SearchResult{}, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := e.br.Set(ctx, key, data, time.Duration(e.cfg.SearchCacheTTLS)*time.Second); err != nil {
			log.Warnw("failed to populate search cache", "error", err)
		}
	}

	e.logQueryAsync(ctx, req.Query)
	return result, nil
}

// logQueryAsync records analytics without ever failing the caller's query
// (spec §4.7): RecordSearchQuery runs in its own goroutine with a
// background context, and a failure is only logged.
func (e *engine) logQueryAsync(ctx context.Context, q string) {
	if strings.TrimSpace(q) == "" {
		return
	}
	go func() {
		bgCtx := context.Background()
		if err := e.st.RecordSearchQuery(bgCtx, q, nil); err != nil {
			log.Warnw("search analytics logging failed", "error", err)
		}
	}()
}

func (e *engine) TopQueries(ctx context.Context, limit int) ([]store.TopQuery, error) {
	return e.st.TopQueries(ctx, limit, 7)
}

func applyDefaults(req models.SearchRequest, cfg config.SearchConfig) models.SearchRequest {
	if req.SortBy == "" {
		req.SortBy = models.SortRelevance
	}
	if req.SortDirection == "" {
		req.SortDirection = models.SortDesc
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = cfg.DefaultPerPage
		if req.PerPage == 0 {
			req.PerPage = 12
		}
	}
	max := cfg.MaxPerPage
	if max == 0 {
		max = 50
	}
	if req.PerPage > max {
		req.PerPage = max
	}
	return req
}

func (e *engine) computeResult(ctx context.Context, req models.SearchRequest) (models.SearchResult, error) {
	filter := models.DocumentFilter{}
	filtered := false
	if req.CanonicalTerm != "" {
		filter.CanonicalTerm = &req.CanonicalTerm
		filtered = true
	}
	if req.PrimaryCategory != "" {
		filter.PrimaryCategory = &req.PrimaryCategory
		filtered = true
	}

	var weights Weights
	var class QueryClass
	if !e.cfg.UseEnhancedRelevance {
		weights = LegacyWeights
	} else {
		primaryCategories, err := e.primaryCategorySet(ctx)
		if err != nil {
			return models.SearchResult{}, err
		}
		class = Classify(req.Query, primaryCategories)
		weights = WeightsFor(class, filtered)
	}

	candidates, topTextRank, err := e.buildCandidateSet(ctx, req.Query, filter)
	if err != nil {
		return models.SearchResult{}, err
	}

	now := time.Now()
	scored := make([]models.ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		breakdown := models.ScoreBreakdown{
			Vector:     c.vectorScore,
			Text:       normalizeRank(c.textRank, topTextRank),
			Taxonomy:   scoreTaxonomy(c.mappedTerms, c.primaryCategoryMatch, req.Query, req.CanonicalTerm),
			Freshness:  scoreFreshness(c.doc.CreatedAt, now),
		}
		breakdown.Quality = scoreQuality(c.doc, len(c.mappedTerms) > 0)
		breakdown.Popularity = scorePopularity(breakdown.Quality, len(c.mappedTerms))

		score := breakdown.Vector*weights.Vector +
			breakdown.Text*weights.Text +
			breakdown.Taxonomy*weights.Taxonomy +
			breakdown.Quality*weights.Quality +
			breakdown.Freshness*weights.Freshness +
			breakdown.Popularity*weights.Popularity

		scored = append(scored, models.ScoredDocument{Document: c.doc, Score: score, Breakdown: breakdown})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Document.CreatedAt.Equal(scored[j].Document.CreatedAt) {
			return scored[i].Document.CreatedAt.After(scored[j].Document.CreatedAt)
		}
		return scored[i].Document.ID < scored[j].Document.ID
	})

	total := len(scored)
	offset := (req.Page - 1) * req.PerPage
	end := offset + req.PerPage
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	page := scored[offset:end]

	result := models.SearchResult{
		Documents: page,
		Pagination: models.Pagination{
			Page:    req.Page,
			PerPage: req.PerPage,
			Total:   total,
			HasNext: end < total,
		},
		TotalCount: total,
	}

	if req.Page == 1 {
		facets, err := e.facets(ctx)
		if err != nil {
			log.Warnw("facet computation failed", "error", err)
		} else {
			result.Facets = facets
		}
	}

	return result, nil
}

func (e *engine) primaryCategorySet(ctx context.Context) (map[string]bool, error) {
	h, err := e.tax.Hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(h))
	for pc := range h {
		set[strings.ToLower(pc)] = true
	}
	return set, nil
}
