package learner

import "github.com/chekos/pedagogical-engine/core/skill"

// counting -> compare-numbers -> fractions -> add-fractions
func newGraph() *skill.Graph {
	g := &skill.Graph{
		Domain: "math",
		Skills: []skill.Skill{
			{ID: "counting", Label: "Counting"},
			{ID: "compare-numbers", Label: "Compare numbers"},
			{ID: "fractions", Label: "Fractions"},
			{ID: "add-fractions", Label: "Add fractions"},
		},
		Edges: []skill.Edge{
			{Source: "counting", Target: "compare-numbers", Confidence: 0.9},
			{Source: "compare-numbers", Target: "fractions", Confidence: 0.8},
			{Source: "fractions", Target: "add-fractions", Confidence: 0.9},
		},
	}
	g.Index()
	return g
}
