package learner

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/skill"
)

// DefaultGapThreshold is the mastery under which a skill counts as a gap.
const DefaultGapThreshold = 0.6

var ErrNotFound = core.NewNotFoundError("learner")

type SkillRecord struct {
	SkillID      string    `json:"skill_id"`
	Confidence   float64   `json:"confidence"`
	Demonstrated bool      `json:"demonstrated"`
	Source       string    `json:"source,omitempty"`
	AssessedAt   time.Time `json:"assessed_at,omitempty"`
	Note         string    `json:"note,omitempty"`
}

// Mastery is the estimated probability that the skill is held: the confidence
// of a demonstrated record, its complement for a gap.
func (r SkillRecord) Mastery() float64 {
	if r.Demonstrated {
		return r.Confidence
	}
	return 1 - r.Confidence
}

// Profile is a learner record. Frontmatter fields are tagged for yaml; skills
// and notes live in the markdown body.
type Profile struct {
	ID        string                 `json:"id" yaml:"id"`
	Name      string                 `json:"name" yaml:"name"`
	GroupID   string                 `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Domain    string                 `json:"domain,omitempty" yaml:"domain,omitempty"`
	Assessed  map[string]SkillRecord `json:"assessed" yaml:"-"`
	Inferred  map[string]SkillRecord `json:"inferred" yaml:"-"`
	Notes     string                 `json:"notes,omitempty" yaml:"-"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" yaml:"updated_at"`
}

// Confidence returns the assessed record of id, else the inferred one.
func (p Profile) Confidence(id string) (SkillRecord, bool) {
	if r, ok := p.Assessed[id]; ok {
		return r, true
	}
	if r, ok := p.Inferred[id]; ok {
		return r, true
	}
	return SkillRecord{SkillID: id}, false
}

// Mastery returns the mastery estimate of id, 0 when nothing is known.
func (p Profile) Mastery(id string) float64 {
	r, ok := p.Confidence(id)
	if !ok {
		return 0
	}
	return r.Mastery()
}

// Gap is a skill needed for the targets the learner likely does not hold.
type Gap struct {
	SkillID string  `json:"skill_id"`
	Mastery float64 `json:"mastery"`
	Known   bool    `json:"known"`
}

// Gaps returns the targets and their prerequisites whose mastery is below threshold
// (DefaultGapThreshold when <= 0), prerequisites first.
func (p Profile) Gaps(g *skill.Graph, targets []string, threshold float64) []Gap {
	if threshold <= 0 {
		threshold = DefaultGapThreshold
	}
	var gaps []Gap
	for _, id := range g.TopoOrder(g.Closure(targets)) {
		r, known := p.Confidence(id)
		m := 0.0
		if known {
			m = r.Mastery()
		}
		if m < threshold {
			gaps = append(gaps, Gap{SkillID: id, Mastery: m, Known: known})
		}
	}
	return gaps
}

// Evidence returns the assessed records as inference input, sorted by skill.
func (p Profile) Evidence() []skill.Assessment {
	ids := sortedKeys(p.Assessed)
	out := make([]skill.Assessment, 0, len(ids))
	for _, id := range ids {
		r := p.Assessed[id]
		out = append(out, skill.Assessment{SkillID: id, Confidence: r.Confidence, Demonstrated: r.Demonstrated})
	}
	return out
}

func sortedKeys(m map[string]SkillRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type NewLearner struct {
	Name    string `json:"name" validate:"required"`
	GroupID string `json:"group_id" validate:"omitempty,slug"`
	Domain  string `json:"domain" validate:"omitempty,slug"`
	Notes   string `json:"notes"`
}

func (nl *NewLearner) Validate(validate *validator.Validate) error {
	nl.Name = core.CleanString(nl.Name)
	nl.GroupID = core.CleanString(nl.GroupID, true /* lower */)
	nl.Domain = core.CleanString(nl.Domain, true /* lower */)
	nl.Notes = strings.TrimSpace(nl.Notes)
	return validate.Struct(nl)
}

// UpdateLearner holds the fields that may change; nil fields are kept.
type UpdateLearner struct {
	Name    *string `json:"name" validate:"omitempty,min=1"`
	GroupID *string `json:"group_id" validate:"omitempty,slug"`
	Domain  *string `json:"domain" validate:"omitempty,slug"`
	Notes   *string `json:"notes"`
}

func (ul *UpdateLearner) Validate(validate *validator.Validate) error {
	clean := func(s *string, lower bool) {
		if s != nil {
			*s = core.CleanString(*s, lower)
		}
	}
	clean(ul.Name, false)
	clean(ul.GroupID, true)
	clean(ul.Domain, true)
	return validate.Struct(ul)
}

// Evidence is a new assessment of one skill.
type Evidence struct {
	SkillID      string    `json:"skill_id" validate:"required"`
	Confidence   float64   `json:"confidence" validate:"confidence"`
	Demonstrated bool      `json:"demonstrated"`
	Note         string    `json:"note"`
	AssessedAt   time.Time `json:"assessed_at"`
}

type RecordAssessment struct {
	Domain   string     `json:"domain" validate:"omitempty,slug"`
	Evidence []Evidence `json:"evidence" validate:"required,min=1,dive"`
}

func (ra RecordAssessment) Validate(validate *validator.Validate) error { return validate.Struct(ra) }

type QueryFilter struct {
	GroupID string `query:"group_id"`
	Domain  string `query:"domain"`
	Search  string `query:"search"`
}

func (qf QueryFilter) Match(p Profile) bool {
	if qf.GroupID != "" && p.GroupID != qf.GroupID {
		return false
	}
	if qf.Domain != "" && p.Domain != qf.Domain {
		return false
	}
	if s := strings.ToLower(core.CleanString(qf.Search)); s != "" {
		if !strings.Contains(strings.ToLower(p.Name), s) && !strings.Contains(p.ID, s) {
			return false
		}
	}
	return true
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
