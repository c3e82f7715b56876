package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amoylab/inboxhub/internal/auth"
	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/errorx"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/pkg/trace"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// routingKey resolves the key a stream request listens on
func routingKey(id *auth.Identity, scope string) (key, label string, err error) {
	switch scope {
	case "", realtime.ScopeTenant:
		return realtime.TenantKey(id.TenantID), realtime.ScopeTenant, nil
	case realtime.ScopeUser:
		if id.UserID == "" {
			return "", "", errorx.ValidationError("scope", scope, "identity carries no user id")
		}
		return realtime.UserKey(id.TenantID, id.UserID), realtime.ScopeUser, nil
	default:
		return "", "", errorx.ErrInvalidScope.WithDetail("scope", scope)
	}
}

// admit resolves the routing key and traces the admission
func (s *Server) admit(c *gin.Context, transport string) (key, label string, ok bool) {
	span := trace.Tracer(cnst.TraceRealtime).Start(c.Request.Context(), cnst.SpanStreamConnect).
		WithAttrs(attribute.String("transport", transport))
	defer span.End()

	id, found := auth.IdentityFrom(c)
	if !found {
		s.errs.HandleError(c, errorx.ErrUnauthorized)
		return "", "", false
	}
	key, label, err := routingKey(id, c.Query("scope"))
	if err != nil {
		span.Fail(err)
		s.errs.HandleError(c, err)
		return "", "", false
	}
	span.WithAttrs(attribute.String("routing_key", key))
	return key, label, true
}

func (s *Server) handleStream(c *gin.Context) {
	key, label, ok := s.admit(c, "sse")
	if !ok {
		return
	}

	w, err := realtime.NewSSEWriter(c.Writer)
	if err != nil {
		s.errs.HandleError(c, errorx.ErrStreamingUnsupported)
		return
	}
	sess, err := s.hub.Open(key, label, w)
	if err != nil {
		s.errs.HandleError(c, openError(err))
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	s.logger.Debug("stream opened", zap.String("routing_key", key), zap.String("session_id", sess.ID()))
	reason := s.hub.Serve(c.Request.Context(), sess)
	s.logger.Debug("stream closed",
		zap.String("routing_key", key),
		zap.String("session_id", sess.ID()),
		zap.String("reason", string(reason)))
}

func (s *Server) handleWebSocket(c *gin.Context) {
	key, label, ok := s.admit(c, "websocket")
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already answered the request
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess, err := s.hub.Open(key, label, realtime.NewWSWriter(conn, 10*time.Second))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		return
	}

	// the read side only exists to notice the client going away
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	reason := s.hub.Serve(ctx, sess)
	code := websocket.CloseNormalClosure
	if reason == realtime.ReasonShutdown {
		code = websocket.CloseGoingAway
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, string(reason)),
		time.Now().Add(time.Second))
}

func openError(err error) error {
	if errors.Is(err, realtime.ErrHubClosed) {
		return errorx.ErrShuttingDown
	}
	return err
}
