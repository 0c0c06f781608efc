package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/config"
	"github.com/doccat/server/session"
)

// AuthHandlers implements POST /login and POST /logout against the shared
// application password, with the fixed-window rate limit from spec §4.8.
type AuthHandlers struct {
	mgr   session.Manager
	limit *session.LoginRateLimiter
	cfg   config.SessionConfig
}

func NewAuthHandlers(mgr session.Manager, limit *session.LoginRateLimiter, cfg config.SessionConfig) *AuthHandlers {
	return &AuthHandlers{mgr: mgr, limit: limit, cfg: cfg}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login handles POST /login (spec §4.8, §6.1).
func (h *AuthHandlers) Login(c *gin.Context) {
	allowed, err := h.limit.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		log.Warnw("login rate limiter check failed, allowing request", "error", err)
		allowed = true
	}
	if !allowed {
		apperr.Respond(c, apperr.New(apperr.KindRateLimited, "too many login attempts, try again shortly"))
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.New(apperr.KindValidation, "password is required"))
		return
	}

	if !h.mgr.VerifyPassword(req.Password) {
		apperr.Respond(c, apperr.New(apperr.KindAuth, "invalid password"))
		return
	}

	sessionID, err := h.mgr.Create(c.Request.Context(), session.Payload{Auth: true})
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindStorage, err, "failed to create session"))
		return
	}

	setSessionCookie(c, h.cfg, sessionID)
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// Logout handles POST /logout.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie != "" {
		if err := h.mgr.Destroy(c.Request.Context(), cookie); err != nil {
			log.Warnw("session destroy failed during logout", "error", err)
		}
	}
	clearSessionCookie(c, h.cfg)
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}
