package httpapi

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/doccat/server/config"
	"github.com/doccat/server/session"
)

// Handlers bundles every handler group NewRouter wires into the engine.
type Handlers struct {
	Documents *DocumentHandlers
	Taxonomy  *TaxonomyHandlers
	Auth      *AuthHandlers
	Health    *HealthHandlers
}

// NewRouter builds the gin engine: logging/recovery/CORS middleware, the
// session-cookie middleware, and every spec §6.1 route. Grounded on the
// teacher's setupRouter (cmd/main.go) gin.New()+cors.New()+route-group
// shape, with the Keycloak/JWT authMiddleware replaced by requireAuth.
func NewRouter(h Handlers, sessionMgr session.Manager, cfg *config.Config) *gin.Engine {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		corsConfig.AllowOrigins = parts
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.Use(sessionMiddleware(sessionMgr))

	router.GET("/health", h.Health.Health)
	router.GET("/health/session", h.Health.Session)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/login", h.Auth.Login)
		v1.POST("/logout", h.Auth.Logout)

		v1.GET("/documents/search", h.Documents.Search)
		v1.GET("/documents/:id", h.Documents.Get)
		v1.GET("/documents/:id/status", h.Documents.Status)
		v1.GET("/documents/:id/download", h.Documents.Download)
		v1.GET("/documents/:id/preview", h.Documents.Preview)

		v1.GET("/taxonomy/hierarchy", h.Taxonomy.Hierarchy)
		v1.GET("/taxonomy/categories", h.Taxonomy.Categories)
		v1.GET("/taxonomy/canonical-terms", h.Taxonomy.CanonicalTerms)
		v1.GET("/taxonomy/search", h.Taxonomy.Search)

		v1.GET("/search/top-queries", h.Health.TopQueries)

		// upload and reprocess are always protected per spec §4.8.
		protected := v1.Group("")
		protected.Use(requireAuth(cfg.Session))
		{
			protected.POST("/documents/upload", h.Documents.Upload)
			protected.POST("/documents/:id/reprocess", h.Documents.Reprocess)
		}
	}

	return router
}
