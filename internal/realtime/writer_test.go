package realtime

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	ev, _ := NewEvent(KindTyping, ToKey("T1"), map[string]bool{"typing": true})
	require.NoError(t, w.WriteEvent(ev))
	assert.True(t, rec.Flushed)
	assert.Equal(t, "event: typing\ndata: {\"typing\":true}\n\n", rec.Body.String())

	_, err = NewSSEWriter(io.Discard)
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestWSWriter(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ev, _ := NewEvent(KindReadReceipt, ToKey("T1"), map[string]string{"id": "m1"})
		_ = NewWSWriter(conn, time.Second).WriteEvent(ev)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, KindReadReceipt, env.Type)
	assert.JSONEq(t, `{"id":"m1"}`, string(env.Payload))
	assert.False(t, env.Timestamp.IsZero())
}
