package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/broker"
	"github.com/doccat/server/search"
	"github.com/doccat/server/session"
)

// HealthHandlers implements GET /health, GET /health/session, and
// GET /search/top-queries (spec §6.1, §9's observability carry-over).
type HealthHandlers struct {
	br     broker.Broker
	mgr    session.Manager
	engine search.Engine
}

func NewHealthHandlers(br broker.Broker, mgr session.Manager, engine search.Engine) *HealthHandlers {
	return &HealthHandlers{br: br, mgr: mgr, engine: engine}
}

// Health handles GET /health: a liveness probe covering the Cache/Broker
// and session backends (the relational Store is checked by the process
// supervisor via its own readiness probe, not here).
func (h *HealthHandlers) Health(c *gin.Context) {
	brokerHealth := h.br.Health(c.Request.Context())
	sessionHealth := h.mgr.Health(c.Request.Context())

	status := http.StatusOK
	if !brokerHealth.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"broker":  brokerHealth,
		"session": sessionHealth,
	})
}

// Session handles GET /health/session: a focused probe used by operators
// investigating X-Session-Warning reports.
func (h *HealthHandlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.mgr.Health(c.Request.Context()))
}

// TopQueries handles GET /search/top-queries?limit=.
func (h *HealthHandlers) TopQueries(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := h.engine.TopQueries(c.Request.Context(), limit)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to load top queries"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"queries": rows})
}
