package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/chekos/pedagogical-engine/apps/api/echo"
	"github.com/chekos/pedagogical-engine/core/agent"
	"github.com/chekos/pedagogical-engine/core/session"
)

func (f *fixture) createSession(t *testing.T, token string) session.Session {
	t.Helper()
	var s session.Session
	f.decode(t, httpTest{
		method: http.MethodPost, path: "/v1/sessions", token: token, wantCode: http.StatusCreated,
		body: marchallObj(t, session.NewSession{Role: agent.RoleAssessment}),
	}, &s)
	return s
}

func Test_agentApi_list(t *testing.T) {
	f := setup(t)

	f.run(t, httpTest{method: http.MethodGet, path: "/v1/agents", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)})

	var roles []agent.Role
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/agents", token: f.token(t, f.assistant)}, &roles)
	require.Len(t, roles, 3)
	assert.Equal(t, agent.RoleAssessment, roles[0].Name)
	assert.Equal(t, agent.RoleCurriculum, roles[1].Name)
	assert.Equal(t, agent.RoleLesson, roles[2].Name)
}

func Test_sessionApi(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.educator)

	t.Run("create", func(t *testing.T) {
		tests := []httpTest{
			{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{
				name: "Educator required", token: f.token(t, f.assistant), wantCode: http.StatusForbidden,
				body: marchallObj(t, session.NewSession{Role: agent.RoleAssessment}),
			},
			{
				name: "unknown role", token: token, wantCode: http.StatusBadRequest,
				body:     marchallObj(t, session.NewSession{Role: "poet"}),
				wantData: marchallObj(t, map[string]string{"role": "unknown agent role"}),
			},
			{
				name: "unknown group", token: token, wantCode: http.StatusBadRequest,
				body:     marchallObj(t, session.NewSession{Role: agent.RoleLesson, GroupID: "nope"}),
				wantData: marchallObj(t, map[string]string{"group_id": "unknown group"}),
			},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/sessions"
			t.Run(tt.name, func(t *testing.T) {
				f.run(t, tt)
			})
		}
	})

	s := f.createSession(t, token)
	assert.Equal(t, f.educator.ID, s.EducatorID)
	assert.Empty(t, s.Messages)

	other := f.educator
	other.ID, other.Username, other.Email = other.ID+"-other", "eve", "eve@school.test"
	otherToken := f.token(t, other)

	var list []session.Session
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/sessions", token: token}, &list)
	require.Len(t, list, 1)
	f.run(t, httpTest{method: http.MethodGet, path: "/v1/sessions", token: otherToken, wantData: marchallList(t)})

	t.Run("owner only", func(t *testing.T) {
		f.run(t, httpTest{method: http.MethodGet, path: "/v1/sessions/" + s.ID, token: otherToken, wantCode: http.StatusNotFound})
		f.run(t, httpTest{method: http.MethodGet, path: "/v1/sessions/" + s.ID, token: f.token(t, f.admin)})
		f.run(t, httpTest{method: http.MethodGet, path: "/v1/sessions/unknown", token: token, wantCode: http.StatusNotFound})
	})

	t.Run("turn", func(t *testing.T) {
		f.createLearner(t, "Ana", "")

		f.run(t, httpTest{
			method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/messages", token: token, wantCode: http.StatusBadRequest,
			body: marchallObj(t, session.NewMessage{}), wantData: marchallObj(t, map[string]string{"content": "this field is required"}),
		})

		f.runtime.ToolCalls = []agent.MockToolCall{
			{Tool: "get_learner", Input: json.RawMessage(`{"learner_id": "ana"}`)},
			{Tool: "save_lesson", Input: json.RawMessage(`{"markdown": "# Nope"}`)},
		}
		defer func() { f.runtime.ToolCalls = nil }()

		var res echoapi.TurnResponse
		f.decode(t, httpTest{
			method: http.MethodPost, path: "/v1/sessions/" + s.ID + "/messages", token: token,
			body: marchallObj(t, session.NewMessage{Content: "Where is Ana?"}),
		}, &res)
		assert.Equal(t, agent.MessageAssistant, res.Reply.Role)
		assert.Equal(t, "echo: Where is Ana?", res.Reply.Content)

		types := make([]string, 0, len(res.Events))
		for _, e := range res.Events {
			types = append(types, e.Type)
		}
		assert.Equal(t, []string{
			agent.EventToolCall, agent.EventToolResult,
			agent.EventToolCall, agent.EventToolResult,
			agent.EventText, agent.EventDone,
		}, types)
		assert.False(t, res.Events[1].IsError)
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(res.Events[1].Output, &out))
		assert.Equal(t, "ana", out["id"])
		assert.True(t, res.Events[3].IsError, "assessment sessions cannot save lessons")

		var got session.Session
		f.decode(t, httpTest{method: http.MethodGet, path: "/v1/sessions/" + s.ID, token: token}, &got)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, agent.MessageUser, got.Messages[0].Role)
		assert.Equal(t, "Where is Ana?", got.Messages[0].Content)
	})

	f.run(t, httpTest{method: http.MethodDelete, path: "/v1/sessions/" + s.ID, token: otherToken, wantCode: http.StatusNotFound})
	f.run(t, httpTest{method: http.MethodDelete, path: "/v1/sessions/" + s.ID, token: token, wantCode: http.StatusNoContent})
	f.run(t, httpTest{method: http.MethodGet, path: "/v1/sessions/" + s.ID, token: token, wantCode: http.StatusNotFound})
}

func dialSession(t *testing.T, srv *httptest.Server, id, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + id + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) agent.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var e agent.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func Test_sessionApi_stream(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.educator)
	s := f.createSession(t, token)

	srv := httptest.NewServer(f.app)
	defer srv.Close()

	t.Run("auth", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + s.ID + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		other := f.educator
		other.ID = other.ID + "-other"
		_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+f.token(t, other), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("frames", func(t *testing.T) {
		conn := dialSession(t, srv, s.ID, token)

		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "ping"}))
		assert.Equal(t, "pong", readEvent(t, conn).Type)

		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "dance"}))
		e := readEvent(t, conn)
		assert.Equal(t, agent.EventError, e.Type)
		assert.Equal(t, `unknown frame type "dance"`, e.Error)

		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "message"}))
		e = readEvent(t, conn)
		assert.Equal(t, agent.EventError, e.Type)
		assert.NotEmpty(t, e.Error)

		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "message", Content: "hello"}))
		e = readEvent(t, conn)
		assert.Equal(t, agent.EventText, e.Type)
		assert.Equal(t, "echo: hello", e.Text)
		assert.Equal(t, agent.EventDone, readEvent(t, conn).Type)
	})

	t.Run("busy and cancel", func(t *testing.T) {
		block := make(chan struct{})
		f.runtime.Block = block
		defer func() { f.runtime.Block = nil }()

		conn := dialSession(t, srv, s.ID, token)
		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "message", Content: "first"}))
		require.Eventually(t, func() bool { return len(f.runtime.Requests()) == 2 }, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "message", Content: "second"}))
		e := readEvent(t, conn)
		assert.Equal(t, "busy", e.Type)
		assert.Equal(t, session.ErrBusy.Error(), e.Error)

		// a turn refused on another connection leaves the running one cancellable
		conn2 := dialSession(t, srv, s.ID, token)
		require.NoError(t, conn2.WriteJSON(echoapi.ClientFrame{Type: "message", Content: "second"}))
		e = readEvent(t, conn2)
		assert.Equal(t, "busy", e.Type)
		assert.Equal(t, session.ErrBusy.Error(), e.Error)
		require.NoError(t, conn2.WriteJSON(echoapi.ClientFrame{Type: "cancel"}))
		require.NoError(t, conn2.WriteJSON(echoapi.ClientFrame{Type: "ping"}))
		assert.Equal(t, "pong", readEvent(t, conn2).Type)

		require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "cancel"}))
		e = readEvent(t, conn)
		assert.Equal(t, agent.EventError, e.Type)
		assert.Equal(t, "context canceled", e.Error)

		close(block)
		// the cancelled turn may still be releasing the session
		for i := 0; i < 50; i++ {
			require.NoError(t, conn.WriteJSON(echoapi.ClientFrame{Type: "message", Content: "third"}))
			if e = readEvent(t, conn); e.Type != "busy" {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		assert.Equal(t, agent.EventText, e.Type)
		assert.Equal(t, "echo: third", e.Text)
		assert.Equal(t, agent.EventDone, readEvent(t, conn).Type)
	})

	var got session.Session
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/sessions/" + s.ID, token: token}, &got)
	contents := make([]string, 0, len(got.Messages))
	for _, m := range got.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"hello", "echo: hello", "first", "third", "echo: third"}, contents)
}
