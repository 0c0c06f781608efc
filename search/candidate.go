package search

import (
	"context"
	"strings"

	"github.com/doccat/server/models"
)

type candidate struct {
	doc                  models.Document
	vectorScore          float64
	textRank             float64
	mappedTerms          []string
	primaryCategoryMatch bool
}

// buildCandidateSet implements spec §4.7's candidate set: union of top-K
// vector matches and top-K full-text matches (each K=candidateTopK),
// loaded as full Documents with their taxonomy mappings resolved for
// scoring. When q is empty the candidate set is the 2*candidateTopK most
// recently created documents matching the filter, unscored (the "empty"
// class carries zero V/T weight, so vector and text scores are irrelevant
// there).
func (e *engine) buildCandidateSet(ctx context.Context, q string, filter models.DocumentFilter) ([]candidate, float64, error) {
	ids := map[int64]*candidate{}
	var topTextRank float64

	q = strings.TrimSpace(q)
	if q != "" {
		vec, err := e.gw.Embed(ctx, q, 0)
		if err == nil && len(vec) > 0 {
			matches, err := e.st.VectorSearch(ctx, vec, candidateTopK, filter)
			if err != nil {
				return nil, 0, err
			}
			for _, m := range matches {
				c := ids[m.DocumentID]
				if c == nil {
					c = &candidate{}
					ids[m.DocumentID] = c
				}
				c.vectorScore = m.CosineScore
			}
		} else if err != nil {
			log.Warnw("query embedding failed, continuing with text-only candidates", "error", err)
		}

		textMatches, err := e.st.FulltextSearch(ctx, q, filter)
		if err != nil {
			return nil, 0, err
		}
		for _, m := range textMatches {
			if m.Rank > topTextRank {
				topTextRank = m.Rank
			}
			c := ids[m.DocumentID]
			if c == nil {
				c = &candidate{}
				ids[m.DocumentID] = c
			}
			c.textRank = m.Rank
		}
	} else {
		page := models.Page{Number: 1, PerPage: candidateTopK * 2}
		result, err := e.st.QueryDocuments(ctx, filter, models.SortCreatedAt, models.SortDesc, page)
		if err != nil {
			return nil, 0, err
		}
		for _, d := range result.Rows {
			ids[d.ID] = &candidate{doc: d}
		}
	}

	out := make([]candidate, 0, len(ids))
	for id, c := range ids {
		if c.doc.ID == 0 {
			doc, err := e.st.Get(ctx, id)
			if err != nil {
				continue
			}
			c.doc = *doc
		}
		c.mappedTerms, c.primaryCategoryMatch = e.resolveTermsForDoc(ctx, c.doc, filter.PrimaryCategory)
		out = append(out, *c)
	}
	return out, topTextRank, nil
}

func (e *engine) resolveTermsForDoc(ctx context.Context, doc models.Document, primaryCategoryFilter *string) ([]string, bool) {
	var terms []string
	match := false
	for _, m := range doc.TaxonomyMaps {
		term, err := e.st.GetTaxonomyTerm(ctx, m.TermID)
		if err != nil {
			continue
		}
		terms = append(terms, term.Term)
		if primaryCategoryFilter != nil && term.PrimaryCategory != nil && *term.PrimaryCategory == *primaryCategoryFilter {
			match = true
		}
	}
	return terms, match
}
