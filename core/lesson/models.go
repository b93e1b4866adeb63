package lesson

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
)

var ErrNotFound = core.NewNotFoundError("lesson")

type Section struct {
	Title      string   `json:"title"`
	Minutes    int      `json:"minutes,omitempty"`
	Activities []string `json:"activities,omitempty"`
}

type Plan struct {
	ID              string    `json:"id" yaml:"id,omitempty"`
	Title           string    `json:"title" yaml:"title"`
	GroupID         string    `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Domain          string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	DurationMinutes int       `json:"duration_minutes,omitempty" yaml:"duration_minutes,omitempty"`
	Skills          []string  `json:"skills,omitempty" yaml:"skills,omitempty"`
	Objectives      []string  `json:"objectives,omitempty" yaml:"-"`
	Prerequisites   []string  `json:"prerequisites,omitempty" yaml:"-"`
	Sections        []Section `json:"sections,omitempty" yaml:"-"`
	Assessment      []string  `json:"assessment,omitempty" yaml:"-"`
	Notes           string    `json:"notes,omitempty" yaml:"-"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at,omitempty"`
}

// SectionMinutes is the sum of the timed sections.
func (p Plan) SectionMinutes() int {
	var total int
	for _, s := range p.Sections {
		total += s.Minutes
	}
	return total
}

// Warning is a problem found while parsing that does not prevent the import.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes
const (
	WarnMissingDuration  = "missing_duration"
	WarnDurationMismatch = "duration_mismatch"
	WarnUntimedSection   = "untimed_section"
	WarnNoObjectives     = "no_objectives"
	WarnNoSections       = "no_sections"
)

type NewPlan struct {
	Title           string    `json:"title" validate:"required"`
	GroupID         string    `json:"group_id" validate:"omitempty,slug"`
	Domain          string    `json:"domain" validate:"omitempty,slug"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0"`
	Skills          []string  `json:"skills" validate:"omitempty,dive,required"`
	Objectives      []string  `json:"objectives"`
	Prerequisites   []string  `json:"prerequisites"`
	Sections        []Section `json:"sections" validate:"dive"`
	Assessment      []string  `json:"assessment"`
	Notes           string    `json:"notes"`
}

func (np *NewPlan) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.GroupID = core.CleanString(np.GroupID, true /* lower */)
	np.Domain = core.CleanString(np.Domain, true /* lower */)
	np.Notes = strings.TrimSpace(np.Notes)
	return validate.Struct(np)
}

func (np NewPlan) plan() Plan {
	return Plan{
		Title:           np.Title,
		GroupID:         np.GroupID,
		Domain:          np.Domain,
		DurationMinutes: np.DurationMinutes,
		Skills:          np.Skills,
		Objectives:      np.Objectives,
		Prerequisites:   np.Prerequisites,
		Sections:        np.Sections,
		Assessment:      np.Assessment,
		Notes:           np.Notes,
	}
}

// ImportPlan is a markdown lesson plan to parse and store.
type ImportPlan struct {
	Markdown string `json:"markdown" validate:"required"`
	GroupID  string `json:"group_id" validate:"omitempty,slug"`
	Domain   string `json:"domain" validate:"omitempty,slug"`
	// LinkSkills maps the objectives to skills of the domain graph.
	LinkSkills bool `json:"link_skills"`
}

func (ip ImportPlan) Validate(validate *validator.Validate) error { return validate.Struct(ip) }

type QueryFilter struct {
	GroupID string `query:"group_id"`
	Domain  string `query:"domain"`
	Skill   string `query:"skill"`
}

func (qf QueryFilter) Match(p Plan) bool {
	if qf.GroupID != "" && p.GroupID != qf.GroupID {
		return false
	}
	if qf.Domain != "" && p.Domain != qf.Domain {
		return false
	}
	if qf.Skill != "" {
		for _, s := range p.Skills {
			if s == qf.Skill {
				return true
			}
		}
		return false
	}
	return true
}

// Hit is a search result.
type Hit struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Score     float64  `json:"score"`
	Fragments []string `json:"fragments,omitempty"`
}

type (
	Repository interface {
		Exists(ctx context.Context, id string) (bool, error)
		Get(ctx context.Context, id string) (Plan, error)
		List(ctx context.Context) ([]Plan, error)
		Save(ctx context.Context, p Plan) error
		// Create saves a new record, returning core.ErrIDTaken when its ID is in use.
		Create(ctx context.Context, p Plan) error
		Delete(ctx context.Context, id string) error
	}

	// Index is the full-text index of lesson plans.
	Index interface {
		Index(p Plan) error
		Remove(id string) error
		Search(query string, limit int) ([]Hit, error)
	}
)
