package skill

import (
	"context"

	"github.com/chekos/pedagogical-engine/core"
)

var ErrNotFound = core.NewNotFoundError("skill graph")

// Bloom's taxonomy levels, lowest first.
const (
	BloomRemember   = "remember"
	BloomUnderstand = "understand"
	BloomApply      = "apply"
	BloomAnalyze    = "analyze"
	BloomEvaluate   = "evaluate"
	BloomCreate     = "create"
)

var BloomLevels = []string{BloomRemember, BloomUnderstand, BloomApply, BloomAnalyze, BloomEvaluate, BloomCreate}

// Edge types
const (
	EdgePrerequisite = "prerequisite"
	EdgeRelated      = "related"
)

type Skill struct {
	ID          string `json:"id" validate:"required,slug"`
	Label       string `json:"label" validate:"required"`
	Description string `json:"description,omitempty"`
	BloomLevel  string `json:"bloom_level,omitempty" validate:"omitempty,bloom"`
	Assessable  bool   `json:"assessable"`
}

// Edge says Source is a prerequisite of Target. Confidence is how strongly
// demonstrating Target implies Source.
type Edge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type,omitempty"`
}

func (e Edge) IsPrerequisite() bool {
	return e.Type == "" || e.Type == EdgePrerequisite
}

type Graph struct {
	Domain  string  `json:"domain"`
	Version string  `json:"version,omitempty"`
	Skills  []Skill `json:"skills"`
	Edges   []Edge  `json:"edges"`

	skills     map[string]int    // id -> index in Skills
	prereqs    map[string][]Edge // target -> edges
	dependents map[string][]Edge // source -> edges
}

// Domain is the listing entry of a stored skill graph.
type Domain struct {
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	SkillCount int    `json:"skill_count"`
	EdgeCount  int    `json:"edge_count"`
}

type Repository interface {
	ListDomains(ctx context.Context) ([]Domain, error)
	GetGraph(ctx context.Context, domain string) (*Graph, error)
	SaveGraph(ctx context.Context, graph *Graph) error
}
