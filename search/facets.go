package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/doccat/server/broker"
	"github.com/doccat/server/models"
)

// facets returns the page-1-only facet counts, cached for 24h under
// facets:enhanced:all and computed from the unfiltered corpus (spec §4.7).
func (e *engine) facets(ctx context.Context) ([]models.Facet, error) {
	if cached, ok, err := e.br.Get(ctx, broker.KeyFacetsAll); err == nil && ok {
		var facets []models.Facet
		if err := json.Unmarshal(cached, &facets); err == nil {
			return facets, nil
		}
	}

	counts, err := e.st.FacetCounts(ctx)
	if err != nil {
		return nil, err
	}

	byCategory := map[string]*models.Facet{}
	var order []string
	for _, c := range counts {
		f, ok := byCategory[c.PrimaryCategory]
		if !ok {
			f = &models.Facet{PrimaryCategory: c.PrimaryCategory, Subcategories: map[string]int{}}
			byCategory[c.PrimaryCategory] = f
			order = append(order, c.PrimaryCategory)
		}
		f.Count += int(c.Count)
		if c.Subcategory != "" {
			f.Subcategories[c.Subcategory] += int(c.Count)
		}
	}

	facets := make([]models.Facet, 0, len(order))
	for _, pc := range order {
		facets = append(facets, *byCategory[pc])
	}

	ttl := 24 * time.Hour
	if data, err := json.Marshal(facets); err == nil {
		if err := e.br.Set(ctx, broker.KeyFacetsAll, data, ttl); err != nil {
			log.Warnw("failed to cache facets", "error", err)
		}
	}

	return facets, nil
}
