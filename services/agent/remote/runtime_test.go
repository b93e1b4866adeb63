package remotesvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chekos/pedagogical-engine/core/agent"
	remotesvc "github.com/chekos/pedagogical-engine/services/agent/remote"
	testutil "github.com/chekos/pedagogical-engine/tests"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// fakeRemote upgrades the connection, reads the request frame and hands the connection to script.
func fakeRemote(t *testing.T, script func(ws *websocket.Conn, req remotesvc.RequestFrame)) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var req remotesvc.RequestFrame
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		script(ws, req)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newRequest(t *testing.T) agent.Request {
	tool := agent.NewTool("double", "doubles n", agent.Schema{
		Properties: map[string]interface{}{"n": map[string]interface{}{"type": "integer"}},
	}, func(_ context.Context, args json.RawMessage) (interface{}, error) {
		var in struct {
			N int `json:"n"`
		}
		_ = json.Unmarshal(args, &in)
		return map[string]int{"n": in.N * 2}, nil
	})
	role := agent.Role{Name: "lesson", Prompt: "Plan lessons.", Tools: []string{"double"}}
	ts, err := agent.NewRegistry(tool).Toolset(role)
	require.NoError(t, err)
	return agent.Request{
		SessionID: "s-1",
		Role:      role,
		Tools:     ts,
		Messages:  []agent.Message{{Role: agent.MessageUser, Content: "double 21"}},
	}
}

func TestRuntime_Relay(t *testing.T) {
	received := make(chan remotesvc.RequestFrame, 1)
	results := make(chan remotesvc.ToolResultFrame, 1)
	url := fakeRemote(t, func(ws *websocket.Conn, req remotesvc.RequestFrame) {
		received <- req
		_ = ws.WriteJSON(agent.Event{Type: agent.EventToolCall, CallID: "c1", Tool: "double", Input: json.RawMessage(`{"n":21}`)})
		var res remotesvc.ToolResultFrame
		if err := ws.ReadJSON(&res); err != nil {
			return
		}
		results <- res
		_ = ws.WriteJSON(agent.Event{Type: agent.EventText, Text: "It is 42."})
		_ = ws.WriteJSON(map[string]string{"type": "usage"})
		_ = ws.WriteJSON(agent.Event{Type: agent.EventDone})
	})

	conf := testutil.NewConfig(t)
	rt := remotesvc.NewRuntime(url, nil, testutil.NewLogger(conf))

	var events []agent.Event
	err := rt.Respond(context.Background(), newRequest(t), func(e agent.Event) { events = append(events, e) })
	require.NoError(t, err)

	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"tool_call", "tool_result", "text", "done"}, types)
	assert.Equal(t, "It is 42.", events[2].Text)

	req := <-received
	assert.Equal(t, "request", req.Type)
	assert.Equal(t, "s-1", req.SessionID)
	assert.Equal(t, "lesson", req.Role)
	assert.Equal(t, "Plan lessons.", req.System)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "double", req.Tools[0].Name)
	require.Len(t, req.Messages, 1)

	res := <-results
	assert.Equal(t, "c1", res.CallID)
	assert.JSONEq(t, `{"n":42}`, string(res.Output))
	assert.False(t, res.IsError)
}

func TestRuntime_RemoteError(t *testing.T) {
	url := fakeRemote(t, func(ws *websocket.Conn, _ remotesvc.RequestFrame) {
		_ = ws.WriteJSON(agent.Event{Type: agent.EventError, Error: "model unavailable"})
	})
	rt := remotesvc.NewRuntime(url, nil, nil)

	var events []agent.Event
	err := rt.Respond(context.Background(), newRequest(t), func(e agent.Event) { events = append(events, e) })
	require.EqualError(t, err, "model unavailable")
	require.Len(t, events, 1)
	assert.Equal(t, agent.EventError, events[0].Type)
}

func TestRuntime_Cancel(t *testing.T) {
	cancelled := make(chan string, 1)
	url := fakeRemote(t, func(ws *websocket.Conn, _ remotesvc.RequestFrame) {
		var frame map[string]string
		if err := ws.ReadJSON(&frame); err == nil {
			cancelled <- frame["type"]
		}
	})
	rt := remotesvc.NewRuntime(url, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := rt.Respond(ctx, newRequest(t), func(agent.Event) {})
	assert.Equal(t, context.Canceled, err)

	select {
	case typ := <-cancelled:
		assert.Equal(t, "cancel", typ)
	case <-time.After(2 * time.Second):
		t.Fatal("remote runtime never received the cancel frame")
	}
}

func TestRuntime_DialError(t *testing.T) {
	rt := remotesvc.NewRuntime("ws://127.0.0.1:1/agent", nil, nil)
	var events []agent.Event
	err := rt.Respond(context.Background(), newRequest(t), func(e agent.Event) { events = append(events, e) })
	require.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, agent.EventError, events[0].Type)
}
