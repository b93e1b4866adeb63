package curriculum

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
)

// DefaultSkillsPerSession is the number of new skills a session covers when unset.
const DefaultSkillsPerSession = 3

var ErrNotFound = core.NewNotFoundError("curriculum")

type Session struct {
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	Skills   []string `json:"skills"`
	LessonID string   `json:"lesson_id,omitempty"`
}

// Curriculum is an ordered list of sessions. Frontmatter fields are tagged for
// yaml; the sessions and notes live in the markdown body.
type Curriculum struct {
	ID             string    `json:"id" yaml:"id,omitempty"`
	Title          string    `json:"title" yaml:"title"`
	GroupID        string    `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Domain         string    `json:"domain" yaml:"domain"`
	SessionMinutes int       `json:"session_minutes,omitempty" yaml:"session_minutes,omitempty"`
	Targets        []string  `json:"targets,omitempty" yaml:"targets,omitempty"`
	Known          []string  `json:"known,omitempty" yaml:"known,omitempty"`
	Sessions       []Session `json:"sessions" yaml:"-"`
	Notes          string    `json:"notes,omitempty" yaml:"-"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at,omitempty"`
}

// Skills returns the skills of all sessions, in order.
func (c Curriculum) Skills() []string {
	var ids []string
	for _, s := range c.Sessions {
		ids = append(ids, s.Skills...)
	}
	return ids
}

type NewCurriculum struct {
	Title            string   `json:"title" validate:"required"`
	GroupID          string   `json:"group_id" validate:"omitempty,slug"`
	Domain           string   `json:"domain" validate:"required_without=GroupID,omitempty,slug"`
	Targets          []string `json:"targets" validate:"required,min=1,dive,required"`
	Known            []string `json:"known" validate:"omitempty,dive,required"`
	SessionMinutes   int      `json:"session_minutes" validate:"gte=0"`
	SkillsPerSession int      `json:"skills_per_session" validate:"gte=0,lte=20"`
	Notes            string   `json:"notes"`
}

func (nc *NewCurriculum) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.GroupID = core.CleanString(nc.GroupID, true /* lower */)
	nc.Domain = core.CleanString(nc.Domain, true /* lower */)
	return validate.Struct(nc)
}

// AttachLesson links a stored lesson plan to a session.
type AttachLesson struct {
	Session  int    `json:"session" validate:"required,min=1"`
	LessonID string `json:"lesson_id" validate:"required,slug"`
}

func (al AttachLesson) Validate(validate *validator.Validate) error { return validate.Struct(al) }

type QueryFilter struct {
	GroupID string `query:"group_id"`
	Domain  string `query:"domain"`
}

func (qf QueryFilter) Match(c Curriculum) bool {
	if qf.GroupID != "" && c.GroupID != qf.GroupID {
		return false
	}
	if qf.Domain != "" && c.Domain != qf.Domain {
		return false
	}
	return true
}

type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (Curriculum, error)
	List(ctx context.Context) ([]Curriculum, error)
	Save(ctx context.Context, c Curriculum) error
	// Create saves a new record, returning core.ErrIDTaken when its ID is in use.
	Create(ctx context.Context, c Curriculum) error
	Delete(ctx context.Context, id string) error
}
