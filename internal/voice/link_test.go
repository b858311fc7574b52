package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// fakeCall is a websocket server that plays scripted data messages and
// records whatever the link writes back.
type fakeCall struct {
	srv      *httptest.Server
	received chan map[string]any
}

func newFakeCall(t *testing.T, script ...string) *fakeCall {
	t.Helper()
	fc := &fakeCall{received: make(chan map[string]any, 8)}
	upgrader := websocket.Upgrader{}
	fc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, msg := range script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			var in map[string]any
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			fc.received <- in
		}
	}))
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCall) url() string {
	return "ws" + strings.TrimPrefix(fc.srv.URL, "http")
}

func nextEvent(t *testing.T, l *Link) Event {
	t.Helper()
	select {
	case ev, ok := <-l.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestLinkTranslatesDataMessages(t *testing.T) {
	fc := newFakeCall(t,
		`{"type": "state", "state": "listening"}`,
		`{"type": "transcript", "role": "user", "text": "my kn", "final": false}`,
		`not json`,
		`{"type": "playback_clear_buffer"}`,
		`{"type": "transcript", "role": "user", "text": "My knee hurts.", "final": true, "ordinal": 2}`,
		`{"type": "client_tool_invocation", "toolName": "changeStage", "invocationId": "inv-1", "parameters": {"newStage": "symptom"}}`,
		`{"type": "debug", "message": "LLM response: {}"}`,
		`{"type": "tool_result", "toolName": "fetchSlots", "result": "{\"hourly_slots\": {}}"}`,
	)
	link, err := Dial(context.Background(), fc.url(), LinkOptions{Logger: logging.Discard()})
	require.NoError(t, err)
	defer link.Leave(context.Background())

	ev := nextEvent(t, link)
	assert.Equal(t, EventStatus, ev.Kind)
	assert.Equal(t, "listening", ev.Status)

	ev = nextEvent(t, link)
	require.Equal(t, EventTranscript, ev.Kind)
	assert.Equal(t, "My knee hurts.", ev.Transcript.Text)
	assert.Equal(t, "user", ev.Transcript.Role)
	assert.Equal(t, 2, ev.Transcript.Ordinal)

	ev = nextEvent(t, link)
	require.Equal(t, EventToolInvocation, ev.Kind)
	assert.Equal(t, "changeStage", ev.Invocation.ToolName)
	assert.Equal(t, "inv-1", ev.Invocation.InvocationID)
	assert.JSONEq(t, `{"newStage": "symptom"}`, string(ev.Invocation.Parameters))

	ev = nextEvent(t, link)
	assert.Equal(t, EventDebug, ev.Kind)
	assert.Equal(t, "LLM response: {}", ev.Debug)

	ev = nextEvent(t, link)
	require.Equal(t, EventToolResult, ev.Kind)
	assert.Equal(t, "fetchSlots", ev.ToolResult.ToolName)
	assert.Equal(t, `{"hourly_slots": {}}`, ev.ToolResult.Text)
}

func TestLinkWritesToolResultsAndMessages(t *testing.T) {
	fc := newFakeCall(t)
	link, err := Dial(context.Background(), fc.url(), LinkOptions{Logger: logging.Discard()})
	require.NoError(t, err)
	defer link.Leave(context.Background())

	require.NoError(t, link.SendToolResult(context.Background(), ClientToolResult{
		InvocationID: "inv-1",
		Result:       `{"type":"new-stage"}`,
		ResponseType: ResponseTypeNewStage,
	}))
	got := <-fc.received
	assert.Equal(t, MessageClientToolResult, got["type"])
	assert.Equal(t, "inv-1", got["invocationId"])
	assert.Equal(t, ResponseTypeNewStage, got["responseType"])

	require.NoError(t, link.AddMessage(context.Background(), Message{ID: "m-1", Role: RoleTool, Content: "IMPORTANT"}))
	got = <-fc.received
	assert.Equal(t, MessageAddMessage, got["type"])
	msg, ok := got["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m-1", msg["id"])
	assert.Equal(t, RoleTool, msg["role"])
	assert.NotEmpty(t, msg["created_at"])
}

func TestLinkLeaveIsIdempotent(t *testing.T) {
	fc := newFakeCall(t)
	link, err := Dial(context.Background(), fc.url(), LinkOptions{Logger: logging.Discard()})
	require.NoError(t, err)

	require.NoError(t, link.Leave(context.Background()))
	require.NoError(t, link.Leave(context.Background()))

	select {
	case <-link.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	_, open := <-link.Events()
	assert.False(t, open)
	assert.ErrorIs(t, link.AddMessage(context.Background(), Message{ID: "late"}), ErrLinkClosed)
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/nowhere", LinkOptions{HandshakeTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
