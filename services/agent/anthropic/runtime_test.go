package anthropicsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chekos/pedagogical-engine/core/agent"
	anthropicsvc "github.com/chekos/pedagogical-engine/services/agent/anthropic"
	testutil "github.com/chekos/pedagogical-engine/tests"
)

type fakeAPI struct {
	mu       sync.Mutex
	replies  []func(w http.ResponseWriter)
	requests []map[string]interface{}
}

func (api *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	api.mu.Lock()
	api.requests = append(api.requests, body)
	n := len(api.requests)
	api.mu.Unlock()

	if n > len(api.replies) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	api.replies[n-1](w)
}

func message(stopReason string, content ...map[string]interface{}) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"content":       content,
			"stop_reason":   stopReason,
			"stop_sequence": nil,
			"usage":         map[string]interface{}{"input_tokens": 10, "output_tokens": 5},
		})
	}
}

func text(s string) map[string]interface{} {
	return map[string]interface{}{"type": "text", "text": s}
}

func toolUse(id, name string, input map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "tool_use", "id": id, "name": name, "input": input}
}

func overloaded(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(529)
	_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
}

func badRequest(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
}

func newRuntime(t *testing.T, api *fakeAPI, maxTurns int) *anthropicsvc.Runtime {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	conf := testutil.NewConfig(t)
	cfg := anthropicsvc.ConfigFrom(conf)
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	cfg.MaxTurns = maxTurns
	cfg.MaxRetries = 2
	cfg.InitBackoff = time.Millisecond
	return anthropicsvc.NewRuntime(cfg, testutil.NewLogger(conf))
}

func request(t *testing.T) agent.Request {
	tool := agent.NewTool("lookup", "looks a skill up", agent.Schema{
		Properties: map[string]interface{}{"skill_id": map[string]interface{}{"type": "string"}},
		Required:   []string{"skill_id"},
	}, func(_ context.Context, args json.RawMessage) (interface{}, error) {
		var in struct {
			SkillID string `json:"skill_id"`
		}
		_ = json.Unmarshal(args, &in)
		return map[string]string{"label": "Label of " + in.SkillID}, nil
	})
	role := agent.Role{Name: "tutor", Prompt: "You tutor.", Tools: []string{"lookup"}}
	ts, err := agent.NewRegistry(tool).Toolset(role)
	require.NoError(t, err)
	return agent.Request{
		Role:  role,
		Tools: ts,
		Messages: []agent.Message{
			{Role: agent.MessageAssistant, Content: "dropped greeting"},
			{Role: agent.MessageUser, Content: "What is counting?"},
		},
		Context: map[string]string{"group_id": "period-3"},
	}
}

func eventTypes(events []agent.Event) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestRuntime_ToolLoop(t *testing.T) {
	api := &fakeAPI{replies: []func(http.ResponseWriter){
		message("tool_use", text("Let me check."), toolUse("tu_1", "lookup", map[string]interface{}{"skill_id": "counting"})),
		message("end_turn", text("Counting is the first skill.")),
	}}
	rt := newRuntime(t, api, 4)

	var events []agent.Event
	err := rt.Respond(context.Background(), request(t), func(e agent.Event) { events = append(events, e) })
	require.NoError(t, err)

	assert.Equal(t, []string{"text", "tool_call", "tool_result", "text", "done"}, eventTypes(events))
	assert.Equal(t, "tu_1", events[1].CallID)
	assert.JSONEq(t, `{"skill_id":"counting"}`, string(events[1].Input))
	assert.JSONEq(t, `{"label":"Label of counting"}`, string(events[2].Output))
	assert.Equal(t, "Counting is the first skill.", events[3].Text)

	require.Len(t, api.requests, 2)
	first := api.requests[0]
	assert.Equal(t, "claude-sonnet-4-5", first["model"])
	msgs := first["messages"].([]interface{})
	assert.Len(t, msgs, 1, "leading assistant message dropped")
	system := first["system"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, system["text"], "- group_id: period-3")
	tools := first["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].(map[string]interface{})["name"])
	schema := tools[0].(map[string]interface{})["input_schema"].(map[string]interface{})
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []interface{}{"skill_id"}, schema["required"])

	second := api.requests[1]["messages"].([]interface{})
	require.Len(t, second, 3)
	last := second[2].(map[string]interface{})
	assert.Equal(t, "user", last["role"])
	block := last["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "tu_1", block["tool_use_id"])
}

func TestRuntime_Retry(t *testing.T) {
	api := &fakeAPI{replies: []func(http.ResponseWriter){
		overloaded,
		message("end_turn", text("Hello.")),
	}}
	rt := newRuntime(t, api, 4)

	var events []agent.Event
	require.NoError(t, rt.Respond(context.Background(), request(t), func(e agent.Event) { events = append(events, e) }))
	assert.Equal(t, []string{"text", "done"}, eventTypes(events))
	assert.Len(t, api.requests, 2)
}

func TestRuntime_Errors(t *testing.T) {
	t.Run("not retryable", func(t *testing.T) {
		api := &fakeAPI{replies: []func(http.ResponseWriter){badRequest}}
		rt := newRuntime(t, api, 4)
		var events []agent.Event
		err := rt.Respond(context.Background(), request(t), func(e agent.Event) { events = append(events, e) })
		require.Error(t, err)
		assert.Equal(t, []string{"error"}, eventTypes(events))
		assert.Len(t, api.requests, 1)
	})

	t.Run("retries exhausted", func(t *testing.T) {
		api := &fakeAPI{replies: []func(http.ResponseWriter){overloaded, overloaded, overloaded}}
		rt := newRuntime(t, api, 4)
		err := rt.Respond(context.Background(), request(t), func(agent.Event) {})
		require.Error(t, err)
		assert.Len(t, api.requests, 3)
	})

	t.Run("turn limit", func(t *testing.T) {
		loop := message("tool_use", toolUse("tu_1", "lookup", map[string]interface{}{"skill_id": "x"}))
		api := &fakeAPI{replies: []func(http.ResponseWriter){loop, loop}}
		rt := newRuntime(t, api, 2)
		var events []agent.Event
		err := rt.Respond(context.Background(), request(t), func(e agent.Event) { events = append(events, e) })
		assert.Equal(t, anthropicsvc.ErrMaxTurns, err)
		assert.Equal(t, "error", events[len(events)-1].Type)
		assert.Len(t, api.requests, 2)
	})

	t.Run("empty transcript", func(t *testing.T) {
		rt := newRuntime(t, &fakeAPI{}, 4)
		err := rt.Respond(context.Background(), agent.Request{}, func(agent.Event) {})
		assert.Error(t, err)
	})
}
