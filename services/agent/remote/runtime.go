// Package remotesvc relays agent turns to an external runtime over WebSocket.
//
// The relay sends one request frame, then forwards the events the remote side
// streams back. Tool calls are run locally through the role toolset and answered
// with a tool_result frame, so the remote runtime never reaches the stores directly.
package remotesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
)

const (
	maxFrameSize = 1 << 20
	writeTimeout = 10 * time.Second
)

// Relay frame types, on top of the agent event types.
const (
	FrameRequest    = "request"
	FrameToolResult = "tool_result"
	FrameCancel     = "cancel"
)

// RequestFrame opens a turn on the remote runtime.
type RequestFrame struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	Role      string             `json:"role"`
	Model     string             `json:"model,omitempty"`
	MaxTurns  int                `json:"max_turns,omitempty"`
	System    string             `json:"system"`
	Messages  []agent.Message    `json:"messages"`
	Tools     []agent.Definition `json:"tools"`
}

// ToolResultFrame answers a tool_call event.
type ToolResultFrame struct {
	Type    string          `json:"type"`
	CallID  string          `json:"call_id"`
	Output  json.RawMessage `json:"output"`
	IsError bool            `json:"is_error,omitempty"`
}

type Runtime struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger core.Logger
}

var _ agent.Runtime = (*Runtime)(nil)

func NewRuntime(url string, header http.Header, logger core.Logger) *Runtime {
	return &Runtime{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func NewRuntimeFromConfig(conf *core.Config, logger core.Logger) *Runtime {
	return NewRuntime(conf.Agent.RemoteURL, nil, logger)
}

// conn serializes the writes of the read loop and the cancel watcher.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (rt *Runtime) Respond(ctx context.Context, req agent.Request, emit func(agent.Event)) error {
	fail := func(err error) error {
		emit(agent.Event{Type: agent.EventError, Error: err.Error()})
		return err
	}

	ws, _, err := rt.dialer.DialContext(ctx, rt.url, rt.header)
	if err != nil {
		return fail(errors.Wrap(err, "dialing remote runtime"))
	}
	ws.SetReadLimit(maxFrameSize)
	c := &conn{ws: ws}
	defer func() {
		c.mu.Lock()
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.mu.Unlock()
		_ = ws.Close()
	}()

	err = c.write(RequestFrame{
		Type:      FrameRequest,
		SessionID: req.SessionID,
		Role:      req.Role.Name,
		Model:     req.Role.Model,
		MaxTurns:  req.Role.MaxTurns,
		System:    req.SystemPrompt(),
		Messages:  req.Messages,
		Tools:     req.Tools.Definitions(),
	})
	if err != nil {
		return fail(errors.Wrap(err, "sending request"))
	}

	// a cancelled turn tells the remote side, then unblocks the read below
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.write(map[string]string{"type": FrameCancel})
			_ = ws.SetReadDeadline(time.Now())
		case <-finished:
		}
	}()

	for {
		var ev agent.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fail(errors.New("remote runtime closed the connection before finishing"))
			}
			return fail(errors.Wrap(err, "reading remote event"))
		}

		switch ev.Type {
		case agent.EventToolCall:
			out, isErr := agent.CallTool(ctx, req, emit, ev.CallID, ev.Tool, ev.Input)
			err := c.write(ToolResultFrame{Type: FrameToolResult, CallID: ev.CallID, Output: out, IsError: isErr})
			if err != nil {
				return fail(errors.Wrap(err, "sending tool result"))
			}
		case agent.EventText, agent.EventToolResult:
			emit(ev)
		case agent.EventError:
			emit(ev)
			return errors.New(ev.Error)
		case agent.EventDone:
			emit(ev)
			return nil
		default:
			if rt.logger != nil {
				rt.logger.Debug("remote runtime: ignored frame " + ev.Type)
			}
		}
	}
}
