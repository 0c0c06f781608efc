package search

import (
	"encoding/json"
	"math"
	"time"

	"github.com/doccat/server/models"
)

// scoreQuality implements spec §4.7's piecewise quality score: the count
// of present derived fields among {extracted_text, ai_analysis.summary,
// search_vector, non-empty taxonomy mappings} maps to {0, 0.33, 0.66, 1.0}.
func scoreQuality(d models.Document, hasMappings bool) float64 {
	present := 0
	if d.ExtractedText != nil && *d.ExtractedText != "" {
		present++
	}
	var analysis struct {
		Summary string `json:"summary"`
	}
	if len(d.AIAnalysis) > 0 && json.Unmarshal(d.AIAnalysis, &analysis) == nil && analysis.Summary != "" {
		present++
	}
	if d.SearchVector != nil {
		present++
	}
	if hasMappings {
		present++
	}
	switch present {
	case 0:
		return 0
	case 1:
		return 0.33
	case 2:
		return 0.66
	default:
		return 1.0
	}
}

// scoreFreshness implements spec §4.7's freshness buckets.
func scoreFreshness(createdAt time.Time, now time.Time) float64 {
	age := now.Sub(createdAt)
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age <= 90*24*time.Hour:
		return 0.6
	default:
		return 0.2
	}
}

// scorePopularity is the deterministic placeholder from spec §4.7:
// min(1.0, quality + 0.1*log1p(mapping_count)).
func scorePopularity(quality float64, mappingCount int) float64 {
	v := quality + 0.1*math.Log1p(float64(mappingCount))
	if v > 1.0 {
		return 1.0
	}
	return v
}

// scoreTaxonomy implements spec §4.7's taxonomy component: 1.0 exact
// canonical-term match, 0.7 primary-category match, 0.4 keyword-mapping
// bonus, 0 otherwise.
func scoreTaxonomy(mappedTerms []string, primaryCategoryMatch bool, q, canonicalTerm string) float64 {
	for _, t := range mappedTerms {
		if t == q || t == canonicalTerm {
			return 1.0
		}
	}
	if primaryCategoryMatch {
		return 0.7
	}
	if len(mappedTerms) > 0 {
		return 0.4
	}
	return 0
}

// normalizeRank divides rank by the top rank observed in the candidate
// set, per spec §4.7's "normalized by the top rank in the candidate set".
func normalizeRank(rank, topRank float64) float64 {
	if topRank <= 0 {
		return 0
	}
	v := rank / topRank
	if v > 1.0 {
		return 1.0
	}
	return v
}
