// Package anthropicsvc runs agent turns on the Anthropic Messages API.
package anthropicsvc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
)

const (
	defaultMaxTokens   = 4096
	defaultMaxTurns    = 8
	defaultMaxRetries  = 5
	defaultInitBackoff = time.Second
	defaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2.0
)

var ErrMaxTurns = errors.New("the agent did not finish within its turn limit")

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// MaxTurns bounds the model calls of one response; a role MaxTurns overrides it.
	MaxTurns    int
	MaxRetries  int
	InitBackoff time.Duration
	MaxBackoff  time.Duration
}

func ConfigFrom(conf *core.Config) Config {
	return Config{
		APIKey:    conf.Agent.APIKey,
		BaseURL:   conf.Agent.BaseURL,
		Model:     conf.Agent.Model,
		MaxTokens: conf.Agent.MaxTokens,
		MaxTurns:  conf.Agent.MaxTurns,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitBackoff <= 0 {
		cfg.InitBackoff = defaultInitBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return cfg
}

type Runtime struct {
	client anthropic.Client
	cfg    Config
	logger core.Logger
}

var _ agent.Runtime = (*Runtime)(nil)

// NewRuntime returns a Messages API runtime. Retries are handled here, not by the SDK.
func NewRuntime(cfg Config, logger core.Logger, opts ...option.RequestOption) *Runtime {
	cfg = cfg.withDefaults()
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Runtime{
		client: anthropic.NewClient(append(reqOpts, opts...)...),
		cfg:    cfg,
		logger: logger,
	}
}

// Respond runs the tool use loop: every tool_use block of a model reply is run through
// req.Tools and answered with a tool_result, until the model stops asking for tools.
func (rt *Runtime) Respond(ctx context.Context, req agent.Request, emit func(agent.Event)) error {
	fail := func(err error) error {
		emit(agent.Event{Type: agent.EventError, Error: err.Error()})
		return err
	}

	model := rt.cfg.Model
	if req.Role.Model != "" {
		model = req.Role.Model
	}
	maxTurns := rt.cfg.MaxTurns
	if req.Role.MaxTurns > 0 {
		maxTurns = req.Role.MaxTurns
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(rt.cfg.MaxTokens),
		Messages:  transcript(req.Messages),
	}
	if len(params.Messages) == 0 {
		return fail(errors.New("the transcript has no user message"))
	}
	if prompt := req.SystemPrompt(); prompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt}}
	}
	if tools := toolParams(req.Tools.Definitions()); len(tools) > 0 {
		params.Tools = tools
	}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := rt.create(ctx, params)
		if err != nil {
			return fail(err)
		}
		params.Messages = append(params.Messages, resp.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					emit(agent.Event{Type: agent.EventText, Text: block.Text})
				}
			case "tool_use":
				out, isErr := agent.CallTool(ctx, req, emit, block.ID, block.Name, block.Input)
				results = append(results, anthropic.NewToolResultBlock(block.ID, string(out), isErr))
			}
		}
		if len(results) == 0 || resp.StopReason != anthropic.StopReasonToolUse {
			emit(agent.Event{Type: agent.EventDone})
			return nil
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
	}
	return fail(ErrMaxTurns)
}

// transcript converts the session messages, dropping anything before the first user message.
func transcript(msgs []agent.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case agent.MessageUser:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case agent.MessageAssistant:
			if len(params) == 0 {
				continue
			}
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

func toolParams(defs []agent.Definition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: d.Schema.Properties,
					Required:   d.Schema.Required,
				},
			},
		})
	}
	return tools
}

func (rt *Runtime) create(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	backoff := rt.cfg.InitBackoff
	for attempt := 0; ; attempt++ {
		resp, err := rt.client.Messages.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, errors.Wrap(err, "anthropic request failed")
		}
		if attempt == rt.cfg.MaxRetries {
			return nil, errors.Wrapf(err, "anthropic request failed after %d retries", attempt)
		}
		if rt.logger != nil {
			rt.logger.Warn("anthropic request failed, retrying", err, map[string]interface{}{
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			})
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > rt.cfg.MaxBackoff {
			backoff = rt.cfg.MaxBackoff
		}
	}
}

// isRetryable reports rate limits, overload and transient server errors.
func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") || strings.Contains(msg, "connection reset")
}
