package apperr

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doccat/server/logger"
)

var log = logger.New("apperr")

// envelope is the §7 response body shape.
type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Kind      Kind           `json:"kind"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Respond writes err to c following the §7 envelope rules: 4xx echoes kind,
// message and details; 5xx echoes only kind and a request id, logging the
// real cause server-side.
func Respond(c *gin.Context, err error) {
	ae := As(err)
	status := ae.Kind.StatusCode()

	if status >= 500 {
		reqID := uuid.New().String()
		log.Errorw("internal error", "request_id", reqID, "cause", ae.Error())
		c.JSON(status, envelope{Error: envelopeBody{Kind: KindInternal, RequestID: reqID}})
		return
	}

	c.JSON(status, envelope{Error: envelopeBody{
		Kind:    ae.Kind,
		Message: ae.Message,
		Details: ae.Details,
	}})
}
