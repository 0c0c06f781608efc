// Package httpapi is the HTTP Surface: gin handlers, routing, and
// middleware wiring every other component together (spec §6). Grounded on
// the teacher's handlers/ + cmd/main.go gin.New()+cors.New()+route-group
// conventions, with the teacher's JWT auth middleware replaced by the
// encrypted session-cookie middleware the spec mandates (spec §9's
// redesign away from bearer JWTs).
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/config"
	"github.com/doccat/server/logger"
	"github.com/doccat/server/session"
)

var log = logger.New("httpapi")

const sessionCookieName = "session_id"
const sessionContextKey = "doccat.session"

// sessionMiddleware loads the session cookie (if present), attaches its
// payload to the gin context, and emits X-Session-Warning whenever the
// session manager is running in fallback mode (spec §4.8).
func sessionMiddleware(mgr session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mgr.InFallback() {
			c.Header("X-Session-Warning", "session backend degraded: running in-memory, fallback sessions do not survive a restart")
		}

		cookie, err := c.Cookie(sessionCookieName)
		if err == nil && cookie != "" {
			if payload, err := mgr.Load(c.Request.Context(), cookie); err == nil {
				c.Set(sessionContextKey, payload)
			}
		}
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) *session.Payload {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	p, _ := v.(*session.Payload)
	return p
}

// requireAuth rejects requests without an authenticated session with an
// AuthError (401). It is applied to exactly the upload and reprocess route
// groups (spec §4.8). It admits every request when RequireAuth is false,
// and admits unauthenticated requests when
// AllowUnauthenticatedOnSessionFailure is true, whatever the session
// backend's state.
func requireAuth(cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RequireAuth {
			c.Next()
			return
		}
		p := sessionFromContext(c)
		if p == nil || !p.Auth {
			if cfg.AllowUnauthenticatedOnSessionFailure {
				c.Next()
				return
			}
			apperr.Respond(c, apperr.New(apperr.KindAuth, "authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func setSessionCookie(c *gin.Context, cfg config.SessionConfig, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, sessionID, cfg.TTLSeconds, "/", "", cfg.CookieSecure, true)
}

func clearSessionCookie(c *gin.Context, cfg config.SessionConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, "", -1, "/", "", cfg.CookieSecure, true)
}
