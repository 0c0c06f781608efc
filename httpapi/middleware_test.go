package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/doccat/server/config"
	"github.com/doccat/server/session"
)

func newMiddlewareTestRouter(mgr session.Manager, cfg config.SessionConfig) *gin.Engine {
	r := gin.New()
	r.Use(sessionMiddleware(mgr))
	r.GET("/protected", requireAuth(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestSessionMiddleware_EmitsWarningHeaderInFallback(t *testing.T) {
	mgr := newFakeSessionManager("pw")
	mgr.fallback = true
	r := newMiddlewareTestRouter(mgr, config.SessionConfig{RequireAuth: false})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Session-Warning"))
}

func TestSessionMiddleware_NoWarningWhenHealthy(t *testing.T) {
	mgr := newFakeSessionManager("pw")
	r := newMiddlewareTestRouter(mgr, config.SessionConfig{RequireAuth: false})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("X-Session-Warning"))
}

func TestRequireAuth_Disabled_AllowsAnyRequest(t *testing.T) {
	mgr := newFakeSessionManager("pw")
	r := newMiddlewareTestRouter(mgr, config.SessionConfig{RequireAuth: false})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_Enabled_RejectsMissingSession(t *testing.T) {
	mgr := newFakeSessionManager("pw")
	r := newMiddlewareTestRouter(mgr, config.SessionConfig{RequireAuth: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_Enabled_AllowsAuthenticatedSession(t *testing.T) {
	mgr := newFakeSessionManager("pw")
	mgr.sessions["sess-1"] = session.Payload{Auth: true}
	r := newMiddlewareTestRouter(mgr, config.SessionConfig{RequireAuth: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_EnabledWithFallbackAllowed_AllowsUnauthenticated(t *testing.T) {
	mgr := newFakeSessionManager("pw")
	r := newMiddlewareTestRouter(mgr, config.SessionConfig{RequireAuth: true, AllowUnauthenticatedOnSessionFailure: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
