package realtime

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// SSEWriter frames events as text/event-stream and flushes after each one
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps a response writer which must implement http.Flusher
func NewSSEWriter(w io.Writer) (*SSEWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEWriter{w: w, flusher: f}, nil
}

// WriteEvent implements EventWriter
func (s *SSEWriter) WriteEvent(ev *Event) error {
	if err := ev.WriteSSE(s.w); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WSWriter sends each event as one JSON text frame
type WSWriter struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSWriter wraps an upgraded connection. A zero timeout disables write deadlines.
func NewWSWriter(conn *websocket.Conn, writeTimeout time.Duration) *WSWriter {
	return &WSWriter{conn: conn, writeTimeout: writeTimeout}
}

// WriteEvent implements EventWriter
func (w *WSWriter) WriteEvent(ev *Event) error {
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteJSON(ev.Envelope())
}
