package echoapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
	"github.com/chekos/pedagogical-engine/core/session"
)

// WebSocket frame types, on top of the agent event types
const (
	frameMessage = "message"
	frameCancel  = "cancel"
	framePing    = "ping"
	framePong    = "pong"
	frameBusy    = "busy"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 128 << 10
	wsSendBuffer     = 64
)

// ClientFrame is a frame sent by the client over the session WebSocket.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type sessionApi struct {
	svc        session.Service
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
	upgrader   websocket.Upgrader
}

func registerSessionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	wsJWT echo.MiddlewareFunc,
	conf *core.Config,
	svc session.Service,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) {
	api := sessionApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(conf),
		},
	}

	// browsers cannot set headers on WebSocket requests: the token comes in the query string
	g.GET("/sessions/:id/ws", api.stream, wsJWT, api.ownerMiddleware)

	sg := g.Group("/sessions", jwt, educatorMiddleware())
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve, api.ownerMiddleware)
	sg.DELETE("/:id", api.destroy, api.ownerMiddleware)
	sg.POST("/:id/messages", api.turn, api.ownerMiddleware)
}

func checkOrigin(conf *core.Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || conf.Debug {
			return true
		}
		return strings.TrimSuffix(origin, "/") == strings.TrimSuffix(conf.FrontendBaseURL, "/")
	}
}

// ownerMiddleware loads the session into the context. Sessions of other educators are not found,
// except for admins.
func (api *sessionApi) ownerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "getting session")
		}
		if s.EducatorID != claims.Subject && !claims.IsAdmin {
			return errHttpNotFound
		}
		ctx.Set("object", s)
		return next(ctx)
	}
}

func (api *sessionApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sessions, err := api.svc.List(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := bindAndValidate(ctx, api.validate, &data, "NewSession"); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	s, err := api.svc.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	s, ok := ctx.Get("object").(session.Session)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// TurnResponse is the outcome of a turn run over plain HTTP.
type TurnResponse struct {
	Reply  agent.Message `json:"reply"`
	Events []agent.Event `json:"events"`
}

func (api *sessionApi) turn(ctx echo.Context) error {
	var data session.NewMessage
	if err := bindAndValidate(ctx, api.validate, &data, "NewMessage"); err != nil {
		return err
	}
	events := []agent.Event{}
	reply, err := api.svc.Turn(ctx.Request().Context(), ctx.Param("id"), data.Content, func(e agent.Event) {
		events = append(events, e)
	})
	if err != nil {
		return errors.Wrap(err, "running turn")
	}
	return ctx.JSON(http.StatusOK, TurnResponse{Reply: reply, Events: events})
}

// stream upgrades to a WebSocket carrying the session turns. Every runtime event is relayed
// as it happens. Closing the connection cancels the running turn.
func (api *sessionApi) stream(ctx echo.Context) error {
	s, ok := ctx.Get("object").(session.Session)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	c := &wsConn{
		conn: conn,
		out:  make(chan agent.Event, wsSendBuffer),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	defer c.close()

	go c.writeLoop()
	api.readLoop(c, s.ID)
	return nil
}

type wsConn struct {
	conn   *websocket.Conn
	out    chan agent.Event
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	turnCancel context.CancelFunc // of the running turn, nil when idle
	turns      sync.WaitGroup
}

func (c *wsConn) send(e agent.Event) {
	select {
	case c.out <- e:
	case <-c.ctx.Done():
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close() // unblocks readLoop
	}()

	for {
		select {
		case e := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(e); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait),
			)
			return
		}
	}
}

func (c *wsConn) close() {
	c.cancel()
	c.turns.Wait()
	c.conn.Close()
}

func (api *sessionApi) readLoop(c *wsConn, sessionID string) {
	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var frame ClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				api.logger.Debug("session websocket closed", err, map[string]interface{}{"session": sessionID})
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch frame.Type {
		case framePing:
			c.send(agent.Event{Type: framePong})
		case frameCancel:
			c.mu.Lock()
			if c.turnCancel != nil {
				c.turnCancel()
			}
			c.mu.Unlock()
		case frameMessage:
			api.startTurn(c, sessionID, frame.Content)
		default:
			c.send(agent.Event{Type: agent.EventError, Error: "unknown frame type " + strconv.Quote(frame.Type)})
		}
	}
}

func (api *sessionApi) startTurn(c *wsConn, sessionID, content string) {
	nm := session.NewMessage{Content: content}
	if err := nm.Validate(api.validate); err != nil {
		c.send(agent.Event{Type: agent.EventError, Error: validationMessage(err, api.translator)})
		return
	}

	c.mu.Lock()
	if c.turnCancel != nil {
		c.mu.Unlock()
		c.send(agent.Event{Type: frameBusy, Error: session.ErrBusy.Error()})
		return
	}
	turnCtx, cancel := context.WithCancel(c.ctx)
	c.turnCancel = cancel
	c.mu.Unlock()

	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		defer func() {
			c.mu.Lock()
			c.turnCancel = nil
			c.mu.Unlock()
			cancel()
		}()

		var sawError bool
		_, err := api.svc.Turn(turnCtx, sessionID, nm.Content, func(e agent.Event) {
			if e.Type == agent.EventError {
				sawError = true
			}
			c.send(e)
		})
		switch {
		case err == nil:
		case errors.Cause(err) == session.ErrBusy:
			c.send(agent.Event{Type: frameBusy, Error: err.Error()})
		case !sawError:
			c.send(agent.Event{Type: agent.EventError, Error: err.Error()})
		}
		if err != nil && !core.IsConflict(err) && !core.IsNotFound(err) && c.ctx.Err() == nil {
			api.logger.Debug("session turn failed", err, map[string]interface{}{"session": sessionID})
		}
	}()
}
