package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chekos/pedagogical-engine/core"
)

// fractions: counting -> compare-numbers -> fractions -> add-fractions
//                        number-line ----^
func newTestGraph() *Graph {
	g := &Graph{
		Domain: "math",
		Skills: []Skill{
			{ID: "counting", Label: "Counting", BloomLevel: BloomRemember, Assessable: true},
			{ID: "compare-numbers", Label: "Compare numbers", BloomLevel: BloomUnderstand, Assessable: true},
			{ID: "number-line", Label: "Number line", BloomLevel: BloomUnderstand, Assessable: true},
			{ID: "fractions", Label: "Fractions", BloomLevel: BloomUnderstand, Assessable: true},
			{ID: "add-fractions", Label: "Add fractions", BloomLevel: BloomApply, Assessable: true},
			{ID: "word-problems", Label: "Word problems", BloomLevel: BloomAnalyze},
		},
		Edges: []Edge{
			{Source: "counting", Target: "compare-numbers", Confidence: 0.9},
			{Source: "compare-numbers", Target: "fractions", Confidence: 0.8},
			{Source: "number-line", Target: "fractions", Confidence: 0.7},
			{Source: "fractions", Target: "add-fractions", Confidence: 0.9},
			{Source: "add-fractions", Target: "word-problems", Confidence: 0.5, Type: EdgeRelated},
		},
	}
	g.Index()
	return g
}

func TestGraph_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(g *Graph)
		wantErrs []string
	}{
		{name: "valid", mutate: func(g *Graph) {}},
		{name: "duplicate id", mutate: func(g *Graph) {
			g.Skills = append(g.Skills, Skill{ID: "counting", Label: "again"})
		}, wantErrs: []string{`duplicate id "counting"`}},
		{name: "unknown endpoints", mutate: func(g *Graph) {
			g.Edges = append(g.Edges, Edge{Source: "ghost", Target: "fractions", Confidence: 0.5})
		}, wantErrs: []string{`unknown source "ghost"`}},
		{name: "bad confidence and self loop", mutate: func(g *Graph) {
			g.Edges = append(g.Edges, Edge{Source: "counting", Target: "counting", Confidence: 1.5})
		}, wantErrs: []string{`self loop on "counting"`, "confidence must be in (0, 1], got 1.5"}},
		{name: "cycle", mutate: func(g *Graph) {
			g.Edges = append(g.Edges, Edge{Source: "add-fractions", Target: "counting", Confidence: 0.5})
		}, wantErrs: []string{"prerequisite cycle: [add-fractions counting compare-numbers fractions add-fractions]"}},
		{name: "related edges may cycle", mutate: func(g *Graph) {
			g.Edges = append(g.Edges, Edge{Source: "word-problems", Target: "add-fractions", Confidence: 0.5, Type: EdgeRelated})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph()
			tt.mutate(g)
			err := g.Validate()
			if len(tt.wantErrs) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			msgs := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				msgs = append(msgs, f.Error)
			}
			assert.Subset(t, msgs, tt.wantErrs)
		})
	}
}

func TestGraph_Adjacency(t *testing.T) {
	g := newTestGraph()

	prereqs := g.Prerequisites("fractions")
	require.Len(t, prereqs, 2)
	assert.Equal(t, "compare-numbers", prereqs[0].Source)
	assert.Equal(t, "number-line", prereqs[1].Source)

	deps := g.Dependents("counting")
	require.Len(t, deps, 1)
	assert.Equal(t, "compare-numbers", deps[0].Target)

	s, ok := g.Skill("add-fractions")
	assert.True(t, ok)
	assert.Equal(t, "Add fractions", s.Label)
	_, ok = g.Skill("ghost")
	assert.False(t, ok)
}

func TestGraph_Closure(t *testing.T) {
	g := newTestGraph()
	assert.Equal(t,
		[]string{"add-fractions", "compare-numbers", "counting", "fractions", "number-line"},
		g.Closure([]string{"add-fractions", "ghost"}))
	// related edges are not prerequisites
	assert.Equal(t, []string{"word-problems"}, g.Closure([]string{"word-problems"}))
}

func TestGraph_TopoOrder(t *testing.T) {
	g := newTestGraph()
	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{name: "all", ids: []string{"add-fractions", "fractions", "number-line", "counting", "compare-numbers"},
			want: []string{"counting", "compare-numbers", "number-line", "fractions", "add-fractions"}},
		{name: "only edges among ids count", ids: []string{"add-fractions", "counting"}, want: []string{"add-fractions", "counting"}},
		{name: "empty", ids: nil, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.TopoOrder(tt.ids))
		})
	}
}
