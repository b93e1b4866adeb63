package group

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/markdown"
)

var ErrNotFound = core.NewNotFoundError("group")

const (
	sectionMembers     = "Members"
	sectionConstraints = "Constraints"
	sectionNotes       = "Notes"
)

type Profile struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Domain      string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	EducatorID  string    `json:"educator_id,omitempty" yaml:"educator_id,omitempty"`
	Schedule    string    `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Members     []string  `json:"members" yaml:"-"`
	Constraints []string  `json:"constraints" yaml:"-"`
	Notes       string    `json:"notes,omitempty" yaml:"-"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

func (p Profile) HasMember(id string) bool {
	for _, m := range p.Members {
		if m == id {
			return true
		}
	}
	return false
}

// MarshalBody renders the markdown body of p.
func MarshalBody(p Profile) []byte {
	var w markdown.Writer
	w.Heading(1, p.Name)
	w.Heading(2, sectionMembers)
	w.Items(p.Members)
	w.Heading(2, sectionConstraints)
	w.Items(p.Constraints)
	w.Heading(2, sectionNotes)
	w.Text(p.Notes)
	return w.Bytes()
}

// UnmarshalBody fills the members, constraints and notes of p from a markdown body.
// Member items may carry a trailing comment: "- maya-chen (joined in May)".
func UnmarshalBody(body []byte, p *Profile) {
	doc := markdown.Parse(body)
	if p.Name == "" {
		p.Name = doc.Title
	}
	p.Members = nil
	if s, ok := doc.Section(sectionMembers); ok {
		for _, item := range markdown.Items(s.Lines) {
			if fields := strings.Fields(item); len(fields) > 0 {
				p.Members = append(p.Members, fields[0])
			}
		}
	}
	p.Constraints = nil
	if s, ok := doc.Section(sectionConstraints); ok {
		p.Constraints = markdown.Items(s.Lines)
	}
	if s, ok := doc.Section(sectionNotes); ok {
		p.Notes = markdown.Text(s.Lines)
	}
}

type NewGroup struct {
	Name        string   `json:"name" validate:"required"`
	Domain      string   `json:"domain" validate:"omitempty,slug"`
	Schedule    string   `json:"schedule"`
	Members     []string `json:"members" validate:"omitempty,dive,slug"`
	Constraints []string `json:"constraints"`
	Notes       string   `json:"notes"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	ng.Domain = core.CleanString(ng.Domain, true /* lower */)
	ng.Schedule = core.CleanString(ng.Schedule)
	ng.Notes = strings.TrimSpace(ng.Notes)
	return validate.Struct(ng)
}

// UpdateGroup holds the fields that may change; nil fields are kept.
type UpdateGroup struct {
	Name        *string   `json:"name" validate:"omitempty,min=1"`
	Domain      *string   `json:"domain" validate:"omitempty,slug"`
	Schedule    *string   `json:"schedule"`
	Constraints *[]string `json:"constraints"`
	Notes       *string   `json:"notes"`
}

func (ug *UpdateGroup) Validate(validate *validator.Validate) error {
	if ug.Name != nil {
		*ug.Name = core.CleanString(*ug.Name)
	}
	if ug.Domain != nil {
		*ug.Domain = core.CleanString(*ug.Domain, true /* lower */)
	}
	return validate.Struct(ug)
}

type Members struct {
	LearnerIDs []string `json:"learner_ids" validate:"required,min=1,dive,required"`
}

func (m Members) Validate(validate *validator.Validate) error { return validate.Struct(m) }

type QueryFilter struct {
	EducatorID string `query:"educator_id"`
	Domain     string `query:"domain"`
	Search     string `query:"search"`
}

func (qf QueryFilter) Match(p Profile) bool {
	if qf.EducatorID != "" && p.EducatorID != qf.EducatorID {
		return false
	}
	if qf.Domain != "" && p.Domain != qf.Domain {
		return false
	}
	if s := strings.ToLower(core.CleanString(qf.Search)); s != "" {
		return strings.Contains(strings.ToLower(p.Name), s) || strings.Contains(p.ID, s)
	}
	return true
}

// SkillSummary aggregates one skill over the group members.
type SkillSummary struct {
	SkillID     string   `json:"skill_id"`
	Label       string   `json:"label"`
	Held        int      `json:"held"`     // members at or above the threshold
	Assessed    int      `json:"assessed"` // members with a direct assessment
	Inferred    int      `json:"inferred"` // members with an inferred state only
	MeanMastery float64  `json:"mean_mastery"`
	Gaps        []string `json:"gaps"` // members below the threshold
}

type Summary struct {
	GroupID     string         `json:"group_id"`
	Domain      string         `json:"domain"`
	MemberCount int            `json:"member_count"`
	Missing     []string       `json:"missing,omitempty"` // members without a profile
	Skills      []SkillSummary `json:"skills"`
}

// Skill returns the summary of id.
func (s Summary) Skill(id string) (SkillSummary, bool) {
	for _, ss := range s.Skills {
		if ss.SkillID == id {
			return ss, true
		}
	}
	return SkillSummary{}, false
}

// MajorityHeld returns the skills held by more than half of the members with a profile.
func (s Summary) MajorityHeld() []string {
	present := s.MemberCount - len(s.Missing)
	var ids []string
	for _, ss := range s.Skills {
		if present > 0 && ss.Held*2 > present {
			ids = append(ids, ss.SkillID)
		}
	}
	return ids
}

type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	Save(ctx context.Context, p Profile) error
	// Create saves a new record, returning core.ErrIDTaken when its ID is in use.
	Create(ctx context.Context, p Profile) error
	Delete(ctx context.Context, id string) error
}
