package httpapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/taxonomy"
)

// TaxonomyHandlers groups the spec §6.1 taxonomy read endpoints.
type TaxonomyHandlers struct {
	tax taxonomy.Engine
}

func NewTaxonomyHandlers(tax taxonomy.Engine) *TaxonomyHandlers {
	return &TaxonomyHandlers{tax: tax}
}

// Hierarchy handles GET /taxonomy/hierarchy.
func (h *TaxonomyHandlers) Hierarchy(c *gin.Context) {
	hier, err := h.tax.Hierarchy(c.Request.Context())
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to load taxonomy hierarchy"))
		return
	}
	c.JSON(http.StatusOK, hier)
}

// Categories handles GET /taxonomy/categories: the primary-category names
// from the hierarchy, sorted for stable pagination-free listing.
func (h *TaxonomyHandlers) Categories(c *gin.Context) {
	hier, err := h.tax.Hierarchy(c.Request.Context())
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to load taxonomy hierarchy"))
		return
	}
	categories := make([]string, 0, len(hier))
	for pc := range hier {
		categories = append(categories, pc)
	}
	sort.Strings(categories)
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// CanonicalTerms handles GET /taxonomy/canonical-terms.
func (h *TaxonomyHandlers) CanonicalTerms(c *gin.Context) {
	terms, err := h.tax.CanonicalTerms(c.Request.Context())
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to load canonical terms"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

// Search handles GET /taxonomy/search?q=&limit=.
func (h *TaxonomyHandlers) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		apperr.Respond(c, apperr.New(apperr.KindValidation, "q is required"))
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	terms, err := h.tax.Search(c.Request.Context(), q, limit)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "taxonomy search failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"terms": terms})
}
