package agent

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Event types
const (
	EventText       = "text"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventError      = "error"
	EventDone       = "done"
)

// Message roles
const (
	MessageUser      = "user"
	MessageAssistant = "assistant"
)

// Event is one step of a runtime response, streamed to the client as it happens.
type Event struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Request is one assistant turn: the transcript ending with the user message.
type Request struct {
	SessionID string
	Role      Role
	Messages  []Message
	Tools     *Toolset
	// Context is appended to the role prompt, e.g. the session group.
	Context map[string]string
}

// SystemPrompt returns the role prompt followed by the request context, sorted by key.
func (req Request) SystemPrompt() string {
	if len(req.Context) == 0 {
		return req.Role.Prompt
	}
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.Role.Prompt)
	b.WriteString("\n\nContext:\n")
	for _, k := range keys {
		b.WriteString("- " + k + ": " + req.Context[k] + "\n")
	}
	return b.String()
}

// Runtime produces the assistant turn for req. Events are emitted in order;
// the last one is either done or error. The returned error mirrors the error event.
type Runtime interface {
	Respond(ctx context.Context, req Request, emit func(Event)) error
}

// CallTool runs a tool of req.Tools and emits its tool_call and tool_result events.
// A failed call is reported to the model as an error result, not returned.
func CallTool(ctx context.Context, req Request, emit func(Event), callID, name string, input json.RawMessage) (json.RawMessage, bool) {
	emit(Event{Type: EventToolCall, CallID: callID, Tool: name, Input: input})
	out, err := req.Tools.Call(ctx, name, input)
	isErr := err != nil
	if isErr {
		out = ErrorResult(err)
	}
	emit(Event{Type: EventToolResult, CallID: callID, Tool: name, Output: out, IsError: isErr})
	return out, isErr
}

// MockToolCall is a tool call scripted on a MockRuntime.
type MockToolCall struct {
	Tool  string
	Input json.RawMessage
}

// MockRuntime is a scripted Runtime for tests. It runs its tool calls through the
// request toolset, then replies with Reply or echoes the last user message.
type MockRuntime struct {
	Reply     string
	ToolCalls []MockToolCall
	Err       error
	// Block, when set, holds the response until it is closed or the context is done.
	Block chan struct{}

	mu       sync.Mutex
	requests []Request
}

var _ Runtime = (*MockRuntime)(nil)

func (rt *MockRuntime) Respond(ctx context.Context, req Request, emit func(Event)) error {
	rt.mu.Lock()
	rt.requests = append(rt.requests, req)
	rt.mu.Unlock()

	if rt.Block != nil {
		select {
		case <-rt.Block:
		case <-ctx.Done():
			emit(Event{Type: EventError, Error: ctx.Err().Error()})
			return ctx.Err()
		}
	}
	for i, tc := range rt.ToolCalls {
		CallTool(ctx, req, emit, "call_"+strconv.Itoa(i+1), tc.Tool, tc.Input)
	}
	if rt.Err != nil {
		emit(Event{Type: EventError, Error: rt.Err.Error()})
		return rt.Err
	}

	reply := rt.Reply
	if reply == "" && len(req.Messages) > 0 {
		reply = "echo: " + req.Messages[len(req.Messages)-1].Content
	}
	emit(Event{Type: EventText, Text: reply})
	emit(Event{Type: EventDone})
	return nil
}

// Requests returns the requests received so far.
func (rt *MockRuntime) Requests() []Request {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]Request(nil), rt.requests...)
}
