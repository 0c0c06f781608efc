// Package taxonomy manages the controlled vocabulary and resolves
// free-text to canonical terms (spec §4.4). Read-mostly: mutations only via
// find_or_create and initialize; readers tolerate eventual consistency of
// the in-memory snapshot, refreshed every 5 minutes or on explicit
// invalidation (spec §5).
package taxonomy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doccat/server/broker"
	"github.com/doccat/server/logger"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
)

var log = logger.New("taxonomy")

// Engine is the spec §4.4 contract.
type Engine interface {
	Initialize(ctx context.Context, source []models.TaxonomyRow) (models.Statistics, error)
	Hierarchy(ctx context.Context) (models.Hierarchy, error)
	CanonicalTerms(ctx context.Context) ([]string, error)
	Search(ctx context.Context, prefixOrSubstring string, limit int) ([]string, error)
	Resolve(ctx context.Context, verbatim string) (*string, error)
	ValidateMapping(ctx context.Context, mappings []models.KeywordMapping) (models.ValidationResult, error)
	FindOrCreate(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error)
	Statistics(ctx context.Context) (models.Statistics, error)
}

type engine struct {
	st     store.Store
	broker broker.Broker

	mu       sync.RWMutex
	snapshot []models.TaxonomyTerm
	lastLoad time.Time

	refreshInterval time.Duration
}

// New constructs the engine and performs an initial snapshot load.
func New(ctx context.Context, st store.Store, br broker.Broker, refreshInterval time.Duration) (Engine, error) {
	e := &engine{st: st, broker: br, refreshInterval: refreshInterval}
	if err := e.refresh(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *engine) refresh(ctx context.Context) error {
	terms, err := e.st.ListTaxonomyTerms(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.snapshot = terms
	e.lastLoad = time.Now()
	e.mu.Unlock()
	return nil
}

func (e *engine) maybeRefresh(ctx context.Context) {
	e.mu.RLock()
	stale := time.Since(e.lastLoad) > e.refreshInterval
	e.mu.RUnlock()
	if stale {
		if err := e.refresh(ctx); err != nil {
			log.Warnw("snapshot refresh failed, continuing with stale data", "error", err)
		}
	}
}

func (e *engine) terms() []models.TaxonomyTerm {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.TaxonomyTerm, len(e.snapshot))
	copy(out, e.snapshot)
	return out
}

// Initialize loads a hierarchy from a tabular source idempotently: creates
// missing terms and synonyms (spec §4.4). The flat (primary_category,
// subcategory, term, synonyms) source has no parent_id column and
// Initialize never sets parent_id. No cycle check over parent_id is
// performed, here or in FindOrCreate.
func (e *engine) Initialize(ctx context.Context, source []models.TaxonomyRow) (models.Statistics, error) {
	var terms []models.TaxonomyTerm
	var synonymsByTerm = map[string][]string{}

	for _, row := range source {
		pc := row.PrimaryCategory
		sc := row.Subcategory
		terms = append(terms, models.TaxonomyTerm{
			Term:            row.Term,
			PrimaryCategory: &pc,
			Subcategory:     &sc,
		})
		synonymsByTerm[row.Term] = row.Synonyms
	}

	if err := e.st.TaxonomyBulkUpsert(ctx, terms, nil); err != nil {
		return models.Statistics{}, err
	}

	if err := e.refresh(ctx); err != nil {
		return models.Statistics{}, err
	}

	var synonyms []models.TaxonomySynonym
	for _, t := range e.terms() {
		for _, syn := range synonymsByTerm[t.Term] {
			synonyms = append(synonyms, models.TaxonomySynonym{TermID: t.ID, Synonym: syn})
		}
	}
	if len(synonyms) > 0 {
		if err := e.st.TaxonomyBulkUpsert(ctx, nil, synonyms); err != nil {
			return models.Statistics{}, err
		}
	}

	if err := e.refresh(ctx); err != nil {
		return models.Statistics{}, err
	}

	// hierarchy changes invalidate facets:enhanced:all (spec §4.4 invariant)
	if e.broker != nil {
		_ = e.broker.DeletePrefix(ctx, broker.KeyFacetsAll)
	}

	return e.Statistics(ctx)
}

func (e *engine) Hierarchy(ctx context.Context) (models.Hierarchy, error) {
	e.maybeRefresh(ctx)
	h := models.Hierarchy{}
	for _, t := range e.terms() {
		pc := ""
		if t.PrimaryCategory != nil {
			pc = *t.PrimaryCategory
		}
		sc := ""
		if t.Subcategory != nil {
			sc = *t.Subcategory
		}
		if _, ok := h[pc]; !ok {
			h[pc] = map[string][]string{}
		}
		h[pc][sc] = append(h[pc][sc], t.Term)
	}
	return h, nil
}

func (e *engine) CanonicalTerms(ctx context.Context) ([]string, error) {
	e.maybeRefresh(ctx)
	var out []string
	for _, t := range e.terms() {
		out = append(out, t.Term)
	}
	sort.Strings(out)
	return out, nil
}

func (e *engine) Search(ctx context.Context, prefixOrSubstring string, limit int) ([]string, error) {
	e.maybeRefresh(ctx)
	q := strings.ToLower(strings.TrimSpace(prefixOrSubstring))
	var out []string
	for _, t := range e.terms() {
		if strings.Contains(strings.ToLower(t.Term), q) {
			out = append(out, t.Term)
			if len(out) >= limit {
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Resolve matches in the deterministic order from spec §4.4: (1) exact
// case-insensitive canonical term, (2) exact synonym, (3) normalized
// equality, (4) fuzzy match (edit distance <=2) if exactly one candidate.
// Ties are broken lexicographically.
func (e *engine) Resolve(ctx context.Context, verbatim string) (*string, error) {
	e.maybeRefresh(ctx)
	terms := e.terms()
	sort.Slice(terms, func(i, j int) bool { return terms[i].Term < terms[j].Term })

	lower := strings.ToLower(verbatim)
	for _, t := range terms {
		if strings.ToLower(t.Term) == lower {
			term := t.Term
			return &term, nil
		}
	}
	for _, t := range terms {
		for _, s := range t.Synonyms {
			if strings.ToLower(s.Synonym) == lower {
				term := t.Term
				return &term, nil
			}
		}
	}

	normalized := normalize(verbatim)
	for _, t := range terms {
		if normalize(t.Term) == normalized {
			term := t.Term
			return &term, nil
		}
	}

	var candidates []string
	for _, t := range terms {
		if levenshtein(normalized, normalize(t.Term)) <= 2 {
			candidates = append(candidates, t.Term)
		}
	}
	if len(candidates) == 1 {
		return &candidates[0], nil
	}
	return nil, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// levenshtein is a plain stdlib implementation; no corpus repo imports a
// string-distance library, so this is the justified stdlib path (see
// DESIGN.md).
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// ValidateMapping drops mappings whose mapped_canonical_term is not a known
// canonical term, logging rejections (spec §4.4).
func (e *engine) ValidateMapping(ctx context.Context, mappings []models.KeywordMapping) (models.ValidationResult, error) {
	canon, err := e.CanonicalTerms(ctx)
	if err != nil {
		return models.ValidationResult{}, err
	}
	set := make(map[string]bool, len(canon))
	for _, c := range canon {
		set[c] = true
	}

	var result models.ValidationResult
	for _, m := range mappings {
		if m.MappedCanonicalTerm == nil || set[*m.MappedCanonicalTerm] {
			result.Valid = append(result.Valid, m)
			continue
		}
		log.Warnw("rejected keyword mapping: unknown canonical term", "verbatim", m.VerbatimTerm, "mapped", *m.MappedCanonicalTerm)
		result.Rejected = append(result.Rejected, m)
	}
	return result, nil
}

func (e *engine) FindOrCreate(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error) {
	t, err := e.st.FindOrCreateTaxonomyTerm(ctx, term, primaryCategory, subcategory)
	if err != nil {
		return nil, err
	}
	if err := e.refresh(ctx); err != nil {
		log.Warnw("snapshot refresh after find_or_create failed", "error", err)
	}
	return t, nil
}

func (e *engine) Statistics(ctx context.Context) (models.Statistics, error) {
	e.maybeRefresh(ctx)
	terms := e.terms()
	stats := models.Statistics{TotalTerms: len(terms)}
	primary := map[string]bool{}
	for _, t := range terms {
		stats.TotalSynonyms += len(t.Synonyms)
		if t.PrimaryCategory != nil && *t.PrimaryCategory != "" {
			primary[*t.PrimaryCategory] = true
		}
	}
	stats.PrimaryCategories = len(primary)
	return stats, nil
}
