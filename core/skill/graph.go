package skill

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
)

// Index (re)builds the adjacency indexes. It must be called after Skills or Edges change.
func (g *Graph) Index() {
	g.skills = make(map[string]int, len(g.Skills))
	g.prereqs = make(map[string][]Edge)
	g.dependents = make(map[string][]Edge)
	for i, s := range g.Skills {
		if _, ok := g.skills[s.ID]; !ok {
			g.skills[s.ID] = i
		}
	}
	for _, e := range g.Edges {
		g.prereqs[e.Target] = append(g.prereqs[e.Target], e)
		g.dependents[e.Source] = append(g.dependents[e.Source], e)
	}
	for _, edges := range g.prereqs {
		sortEdges(edges, func(e Edge) string { return e.Source })
	}
	for _, edges := range g.dependents {
		sortEdges(edges, func(e Edge) string { return e.Target })
	}
}

func sortEdges(edges []Edge, key func(Edge) string) {
	sort.SliceStable(edges, func(i, j int) bool { return key(edges[i]) < key(edges[j]) })
}

func (g *Graph) ensureIndex() {
	if g.skills == nil {
		g.Index()
	}
}

func (g *Graph) Has(id string) bool {
	g.ensureIndex()
	_, ok := g.skills[id]
	return ok
}

func (g *Graph) Skill(id string) (Skill, bool) {
	g.ensureIndex()
	i, ok := g.skills[id]
	if !ok {
		return Skill{}, false
	}
	return g.Skills[i], true
}

// Prerequisites returns the edges pointing to id, sorted by source.
func (g *Graph) Prerequisites(id string) []Edge {
	g.ensureIndex()
	return g.prereqs[id]
}

// Dependents returns the edges leaving id, sorted by target.
func (g *Graph) Dependents(id string) []Edge {
	g.ensureIndex()
	return g.dependents[id]
}

// Validate reports every structural problem of the graph in one ValidationError.
func (g *Graph) Validate() error {
	var flds []core.FieldError
	add := func(field, format string, args ...interface{}) {
		flds = append(flds, core.FieldError{Field: field, Error: fmt.Sprintf(format, args...)})
	}

	if g.Domain == "" {
		add("domain", "domain is required")
	}
	seen := make(map[string]bool, len(g.Skills))
	for i, s := range g.Skills {
		field := fmt.Sprintf("skills[%d]", i)
		switch {
		case s.ID == "":
			add(field, "id is required")
		case !core.SlugRegex.MatchString(s.ID):
			add(field, "invalid id %q", s.ID)
		case seen[s.ID]:
			add(field, "duplicate id %q", s.ID)
		}
		seen[s.ID] = true
		if s.BloomLevel != "" && !IsBloomLevel(s.BloomLevel) {
			add(field, "unknown bloom level %q", s.BloomLevel)
		}
	}

	for i, e := range g.Edges {
		field := fmt.Sprintf("edges[%d]", i)
		if !seen[e.Source] {
			add(field, "unknown source %q", e.Source)
		}
		if !seen[e.Target] {
			add(field, "unknown target %q", e.Target)
		}
		if e.Source == e.Target {
			add(field, "self loop on %q", e.Source)
		}
		if !(e.Confidence > 0 && e.Confidence <= 1) {
			add(field, "confidence must be in (0, 1], got %v", e.Confidence)
		}
		if !(e.Type == "" || e.Type == EdgePrerequisite || e.Type == EdgeRelated) {
			add(field, "unknown edge type %q", e.Type)
		}
	}

	if len(flds) == 0 {
		g.Index()
		if cycle := g.findCycle(); cycle != nil {
			add("edges", "prerequisite cycle: %v", cycle)
		}
	}

	if len(flds) > 0 {
		return core.NewValidationError(errors.Errorf("invalid skill graph %q", g.Domain), flds...)
	}
	return nil
}

func IsBloomLevel(level string) bool {
	for _, l := range BloomLevels {
		if l == level {
			return true
		}
	}
	return false
}

// findCycle returns one prerequisite cycle (first node repeated at the end), or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Skills))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, e := range g.dependents[id] {
			if !e.IsPrerequisite() {
				continue
			}
			switch color[e.Target] {
			case grey:
				for i, s := range stack {
					if s == e.Target {
						cycle = append(append([]string{}, stack[i:]...), e.Target)
						return true
					}
				}
			case white:
				if visit(e.Target) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.sortedIDs() {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.Skills))
	for _, s := range g.Skills {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// Closure returns ids plus all their transitive prerequisites (unknown ids are dropped), sorted.
func (g *Graph) Closure(ids []string) []string {
	g.ensureIndex()
	seen := make(map[string]bool)
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if g.Has(id) && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.prereqs[id] {
			if e.IsPrerequisite() && !seen[e.Source] {
				seen[e.Source] = true
				queue = append(queue, e.Source)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TopoOrder orders ids so that every skill comes after its prerequisites among ids.
// Ties are broken by ID. Skills caught in a cycle are appended last, by ID.
func (g *Graph) TopoOrder(ids []string) []string {
	g.ensureIndex()
	in := make(map[string]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	indegree := make(map[string]int, len(in))
	for id := range in {
		indegree[id] = 0
	}
	for id := range in {
		for _, e := range g.prereqs[id] {
			if e.IsPrerequisite() && in[e.Source] {
				indegree[id]++
			}
		}
	}

	ready := make([]string, 0)
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(in))
	done := make(map[string]bool, len(in))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		done[id] = true

		var next []string
		for _, e := range g.dependents[id] {
			if !e.IsPrerequisite() || !in[e.Target] {
				continue
			}
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				next = append(next, e.Target)
			}
		}
		if len(next) > 0 {
			ready = append(ready, next...)
			sort.Strings(ready)
		}
	}

	if len(order) < len(in) {
		var rest []string
		for id := range in {
			if !done[id] {
				rest = append(rest, id)
			}
		}
		sort.Strings(rest)
		order = append(order, rest...)
	}
	return order
}
