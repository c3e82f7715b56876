package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amoylab/inboxhub/internal/auth"
	"github.com/amoylab/inboxhub/internal/common/errorx"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/gin-gonic/gin"
)

type publishRequest struct {
	Type    string          `json:"type" binding:"required"`
	Scope   realtime.Scope  `json:"scope"`
	Payload json.RawMessage `json:"payload"`
}

// handlePublish accepts events from the CRM's business operations
func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errorx.ErrInvalidInput.WithDetail("reason", err.Error()))
		return
	}

	if kind := realtime.Kind(req.Type); kind.Reserved() {
		_ = c.Error(errorx.ErrInvalidEvent.WithDetail("reason", "event type "+req.Type+" is reserved"))
		return
	}

	var payload any
	if len(req.Payload) > 0 && !bytes.Equal(req.Payload, []byte("null")) {
		payload = req.Payload
	}
	ev, err := realtime.NewEvent(realtime.Kind(req.Type), req.Scope, payload)
	if err != nil {
		_ = c.Error(errorx.ErrInvalidEvent.WithDetail("reason", err.Error()))
		return
	}

	// non-admin callers stay inside their own tenant
	id, _ := auth.IdentityFrom(c)
	if !id.IsAdmin(s.cfg.Auth.AdminRole) && (ev.Scope.Broadcast || !id.OwnsKey(ev.Scope.RoutingKey)) {
		_ = c.Error(errorx.ErrScopeNotPermitted.WithDetail("scope", ev.Scope.String()))
		return
	}

	if err := s.publisher.Publish(c.Request.Context(), ev); err != nil {
		if errors.Is(err, realtime.ErrInvalidEvent) {
			_ = c.Error(errorx.ErrInvalidEvent.WithDetail("reason", err.Error()))
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"type":      ev.Type,
		"scope":     ev.Scope,
		"timestamp": ev.Timestamp,
	})
}
