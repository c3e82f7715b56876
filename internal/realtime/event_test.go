package realtime

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindConnected, KindPing, KindMessageCreated, KindConversationUpdated, KindTyping, KindReadReceipt, "label-added"} {
		assert.True(t, k.Valid(), k)
	}
	for _, k := range []Kind{"", "Message", "message_created", "-typing", "typing-", "a b"} {
		assert.False(t, k.Valid(), k)
	}
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(KindMessageCreated, ToKey("T1"), map[string]any{"id": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(ev.Payload))
	assert.False(t, ev.Timestamp.IsZero())

	ev, err = NewEvent(KindTyping, Everyone(), nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(ev.Payload))

	_, err = NewEvent("", ToKey("T1"), nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = NewEvent(KindTyping, Scope{}, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = NewEvent(KindTyping, Scope{RoutingKey: "T1", Broadcast: true}, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = NewEvent(KindTyping, ToKey("T1"), make(chan int))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	var nilEvent *Event
	assert.ErrorIs(t, nilEvent.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, (&Event{Type: KindTyping, Scope: ToKey("T1"), Payload: []byte("{oops")}).Validate(), ErrInvalidEvent)
}

func TestWriteSSE(t *testing.T) {
	ev := &Event{
		Type:    KindMessageCreated,
		Scope:   ToKey("T1"),
		Payload: json.RawMessage("{\n  \"text\": \"こんにちは\"\n}"),
	}
	var buf bytes.Buffer
	require.NoError(t, ev.WriteSSE(&buf))
	assert.Equal(t, "event: message-created\ndata: {\"text\":\"こんにちは\"}\n\n", buf.String())

	buf.Reset()
	require.NoError(t, (&Event{Type: KindPing, Scope: ToKey("T1")}).WriteSSE(&buf))
	assert.Equal(t, "event: ping\ndata: {}\n\n", buf.String())
}

func TestEnvelopeAndJSON(t *testing.T) {
	ev, err := NewEvent(KindReadReceipt, ToKey("T1:U7"), map[string]string{"conversationId": "c1"})
	require.NoError(t, err)

	data, err := json.Marshal(ev.Envelope())
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "read-receipt", env["type"])
	assert.Equal(t, map[string]any{"conversationId": "c1"}, env["payload"])
	assert.NotContains(t, env, "scope")

	// the bus carries the scope too
	data, err = json.Marshal(ev)
	require.NoError(t, err)
	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())
	assert.Equal(t, ev.Scope, decoded.Scope)
	assert.True(t, ev.Timestamp.Equal(decoded.Timestamp))
}

func TestScopeTargetAndKeys(t *testing.T) {
	assert.Equal(t, "T1", TenantKey("T1"))
	assert.Equal(t, "T1:U7", UserKey("T1", "U7"))
	assert.Equal(t, "tenant", ToKey("T1").Target())
	assert.Equal(t, "user", ToKey("T1:U7").Target())
	assert.Equal(t, "broadcast", Everyone().Target())
	assert.Equal(t, "*", Everyone().String())
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key          string
		tenant, user string
		ok           bool
	}{
		{key: "T1", tenant: "T1", ok: true},
		{key: "T1:U7", tenant: "T1", user: "U7", ok: true},
		{key: ""},
		{key: ":U7"},
		{key: "T1:"},
		{key: "acme:bob:x"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			tenant, user, ok := ParseKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.tenant, tenant)
			assert.Equal(t, tt.user, user)
		})
	}

	assert.True(t, ValidID("acme"))
	assert.False(t, ValidID("acme:bob"))
	assert.False(t, ValidID(""))
	assert.False(t, IsUserKey("acme:bob:x"))

	_, err := NewEvent(KindTyping, ToKey("acme:bob:x"), nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = NewEvent(KindTyping, Scope{RoutingKey: "T1", Broadcast: true}, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
