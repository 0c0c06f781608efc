package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/doccat/server/models"
)

// fakeTaxonomyEngine implements taxonomy.Engine for handler-level tests.
type fakeTaxonomyEngine struct {
	hierarchy      models.Hierarchy
	hierarchyErr   error
	canonicalTerms []string
	searchResults  []string
	searchErr      error
}

func (f *fakeTaxonomyEngine) Initialize(ctx context.Context, source []models.TaxonomyRow) (models.Statistics, error) {
	panic("not used in httpapi tests")
}
func (f *fakeTaxonomyEngine) Hierarchy(ctx context.Context) (models.Hierarchy, error) {
	if f.hierarchyErr != nil {
		return nil, f.hierarchyErr
	}
	return f.hierarchy, nil
}
func (f *fakeTaxonomyEngine) CanonicalTerms(ctx context.Context) ([]string, error) {
	return f.canonicalTerms, nil
}
func (f *fakeTaxonomyEngine) Search(ctx context.Context, q string, limit int) ([]string, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}
func (f *fakeTaxonomyEngine) Resolve(ctx context.Context, verbatim string) (*string, error) {
	panic("not used in httpapi tests")
}
func (f *fakeTaxonomyEngine) ValidateMapping(ctx context.Context, mappings []models.KeywordMapping) (models.ValidationResult, error) {
	panic("not used in httpapi tests")
}
func (f *fakeTaxonomyEngine) FindOrCreate(ctx context.Context, term string, primaryCategory, subcategory *string) (*models.TaxonomyTerm, error) {
	panic("not used in httpapi tests")
}
func (f *fakeTaxonomyEngine) Statistics(ctx context.Context) (models.Statistics, error) {
	panic("not used in httpapi tests")
}

func TestTaxonomyHierarchy_ReturnsTree(t *testing.T) {
	tax := &fakeTaxonomyEngine{hierarchy: models.Hierarchy{"Finance": {"Payments": {"Invoice"}}}}
	h := NewTaxonomyHandlers(tax)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/taxonomy/hierarchy", nil)

	h.Hierarchy(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invoice")
}

func TestTaxonomyCategories_SortedAndDeduped(t *testing.T) {
	tax := &fakeTaxonomyEngine{hierarchy: models.Hierarchy{"Legal": {}, "Finance": {}}}
	h := NewTaxonomyHandlers(tax)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/taxonomy/categories", nil)

	h.Categories(c)
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Less(t, indexOf(body, "Finance"), indexOf(body, "Legal"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestCanonicalTerms_ReturnsList(t *testing.T) {
	tax := &fakeTaxonomyEngine{canonicalTerms: []string{"Invoice", "Contract"}}
	h := NewTaxonomyHandlers(tax)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/taxonomy/canonical-terms", nil)

	h.CanonicalTerms(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Contract")
}

func TestTaxonomySearch_RequiresQuery(t *testing.T) {
	tax := &fakeTaxonomyEngine{}
	h := NewTaxonomyHandlers(tax)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/taxonomy/search", nil)

	h.Search(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaxonomySearch_DelegatesToEngine(t *testing.T) {
	tax := &fakeTaxonomyEngine{searchResults: []string{"Invoice"}}
	h := NewTaxonomyHandlers(tax)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/taxonomy/search?q=inv&limit=5", nil)

	h.Search(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invoice")
}
