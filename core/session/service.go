package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
	"github.com/chekos/pedagogical-engine/core/group"
)

type (
	Service interface {
		Create(ctx context.Context, ns NewSession, educatorID string) (Session, error)
		Get(ctx context.Context, id string) (Session, error)
		// List returns the sessions of educatorID, most recently updated first.
		List(ctx context.Context, educatorID string) ([]Session, error)
		Delete(ctx context.Context, id string) error
		// Turn appends the user message, runs the role runtime over the transcript and
		// appends the assistant reply. Only one turn runs at a time per session.
		Turn(ctx context.Context, id, content string, emit func(agent.Event)) (agent.Message, error)
		Roles() []agent.Role
	}

	service struct {
		repo      Repository
		groupRepo group.Repository
		catalog   *agent.Catalog
		tools     *agent.Registry
		runtime   agent.Runtime
		nowFunc   func() time.Time // mockable

		mu   sync.Mutex
		busy map[string]bool
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	groupRepo group.Repository,
	catalog *agent.Catalog,
	tools *agent.Registry,
	runtime agent.Runtime,
) Service {
	return &service{
		repo:      repo,
		groupRepo: groupRepo,
		catalog:   catalog,
		tools:     tools,
		runtime:   runtime,
		nowFunc:   time.Now,
		busy:      make(map[string]bool),
	}
}

func (svc *service) Roles() []agent.Role {
	return svc.catalog.List()
}

func (svc *service) Create(ctx context.Context, ns NewSession, educatorID string) (Session, error) {
	if _, err := svc.catalog.Get(ns.Role); err != nil {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "unknown agent role"})
	}
	if ns.GroupID != "" {
		ok, err := svc.groupRepo.Exists(ctx, ns.GroupID)
		if err != nil {
			return Session{}, err
		}
		if !ok {
			return Session{}, core.NewValidationError(nil, core.FieldError{Field: "group_id", Error: "unknown group"})
		}
	}

	now := svc.nowFunc().UTC()
	s := Session{
		ID:         uuid.New().String(),
		Role:       ns.Role,
		EducatorID: educatorID,
		GroupID:    ns.GroupID,
		Messages:   []agent.Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := svc.repo.Save(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "saving session")
	}
	return s, nil
}

func (svc *service) Get(ctx context.Context, id string) (Session, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *service) List(ctx context.Context, educatorID string) ([]Session, error) {
	all, err := svc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(all))
	for _, s := range all {
		if educatorID == "" || s.EducatorID == educatorID {
			sessions = append(sessions, s)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
	return sessions, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.Delete(ctx, id)
}

func (svc *service) acquire(id string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.busy[id] {
		return false
	}
	svc.busy[id] = true
	return true
}

func (svc *service) release(id string) {
	svc.mu.Lock()
	delete(svc.busy, id)
	svc.mu.Unlock()
}

func (svc *service) Turn(ctx context.Context, id, content string, emit func(agent.Event)) (agent.Message, error) {
	content = core.CleanString(content)
	if content == "" {
		return agent.Message{}, core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field is required"})
	}
	if !svc.acquire(id) {
		return agent.Message{}, ErrBusy
	}
	defer svc.release(id)

	s, err := svc.repo.Get(ctx, id)
	if err != nil {
		return agent.Message{}, err
	}
	role, err := svc.catalog.Get(s.Role)
	if err != nil {
		return agent.Message{}, core.NewConflictError("the session role " + s.Role + " is no longer available")
	}
	tools, err := svc.tools.Toolset(role)
	if err != nil {
		return agent.Message{}, errors.Wrap(err, "building toolset")
	}

	// the user message is kept even when the runtime fails
	s.Messages = append(s.Messages, agent.Message{Role: agent.MessageUser, Content: content, CreatedAt: svc.nowFunc().UTC()})
	s.UpdatedAt = svc.nowFunc().UTC()
	if err = svc.repo.Save(ctx, s); err != nil {
		return agent.Message{}, errors.Wrap(err, "saving session")
	}

	req := agent.Request{
		SessionID: s.ID,
		Role:      role,
		Messages:  s.Messages,
		Tools:     tools,
		Context:   map[string]string{"educator_id": s.EducatorID},
	}
	if s.GroupID != "" {
		req.Context["group_id"] = s.GroupID
	}

	var texts []string
	err = svc.runtime.Respond(ctx, req, func(e agent.Event) {
		if e.Type == agent.EventText && e.Text != "" {
			texts = append(texts, e.Text)
		}
		if emit != nil {
			emit(e)
		}
	})
	if err != nil {
		return agent.Message{}, err
	}

	reply := agent.Message{Role: agent.MessageAssistant, Content: strings.Join(texts, "\n\n"), CreatedAt: svc.nowFunc().UTC()}
	s.Messages = append(s.Messages, reply)
	s.UpdatedAt = reply.CreatedAt
	if err = svc.repo.Save(ctx, s); err != nil {
		return agent.Message{}, errors.Wrap(err, "saving session")
	}
	return reply, nil
}
