package session

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
)

var (
	ErrNotFound = core.NewNotFoundError("session")
	ErrBusy     = core.NewConflictError("a turn is already running in this session")
)

// Session is a chat between an educator and one agent role.
type Session struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	EducatorID string          `json:"educator_id"`
	GroupID    string          `json:"group_id,omitempty"`
	Messages   []agent.Message `json:"messages"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type NewSession struct {
	Role    string `json:"role" validate:"required,slug"`
	GroupID string `json:"group_id" validate:"omitempty,slug"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Role = core.CleanString(ns.Role, true /* lower */)
	ns.GroupID = core.CleanString(ns.GroupID, true /* lower */)
	return validate.Struct(ns)
}

type NewMessage struct {
	Content string `json:"content" validate:"required,max=20000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}

type Repository interface {
	Get(ctx context.Context, id string) (Session, error)
	List(ctx context.Context) ([]Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}
