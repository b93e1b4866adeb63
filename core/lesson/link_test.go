package lesson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/skill"
)

func newGraph(t *testing.T) *skill.Graph {
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
	require.NoError(t, g.Validate())
	g.Index()
	return g
}

func TestLinkSkills(t *testing.T) {
	g := newGraph(t)
	p := Plan{
		Title:  "Fractions",
		Skills: []string{"fractions"},
		Objectives: []string{
			"Add Fractions",
			"compare numbers",
			"Compare the numbers",
			"fractions",
			"Sing a song",
		},
	}

	res := LinkSkills(&p, g)
	require.Len(t, res.Links, 4)
	assert.Equal(t, Link{Objective: "Add Fractions", SkillID: "add-fractions", Ratio: 1}, res.Links[0])
	assert.Equal(t, Link{Objective: "compare numbers", SkillID: "compare-numbers", Ratio: 1}, res.Links[1])
	assert.Equal(t, "compare-numbers", res.Links[2].SkillID)
	assert.InDelta(t, 0.882, res.Links[2].Ratio, 0.001)
	assert.Equal(t, "fractions", res.Links[3].SkillID)
	assert.Equal(t, []string{"Sing a song"}, res.Unmatched)

	assert.Equal(t, []string{"fractions", "add-fractions", "compare-numbers"}, p.Skills)
}

func TestReadiness(t *testing.T) {
	g := newGraph(t)
	p := Plan{Title: "Adding fractions", Skills: []string{"add-fractions"}}

	ready := learner.Profile{
		ID: "ana",
		Assessed: map[string]learner.SkillRecord{
			"fractions":       {SkillID: "fractions", Confidence: 0.9, Demonstrated: true},
			"compare-numbers": {SkillID: "compare-numbers", Confidence: 0.8, Demonstrated: true},
		},
		Inferred: map[string]learner.SkillRecord{
			"counting": {SkillID: "counting", Confidence: 0.65, Demonstrated: true, Source: "compare-numbers"},
		},
	}
	partial := learner.Profile{
		ID: "ben",
		Assessed: map[string]learner.SkillRecord{
			"fractions": {SkillID: "fractions", Confidence: 0.7, Demonstrated: false},
		},
	}

	res := Readiness(p, g, []learner.Profile{ready, partial}, 0)
	require.Len(t, res, 2)

	assert.Equal(t, "ben", res[0].LearnerID)
	assert.False(t, res[0].Ready)
	require.Len(t, res[0].Missing, 3)
	assert.Equal(t, "counting", res[0].Missing[0].SkillID)
	assert.False(t, res[0].Missing[0].Known)
	assert.Equal(t, "fractions", res[0].Missing[2].SkillID)
	assert.True(t, res[0].Missing[2].Known)
	assert.InDelta(t, 0.3, res[0].Missing[2].Mastery, 1e-9)

	assert.Equal(t, "ana", res[1].LearnerID)
	assert.True(t, res[1].Ready)
	assert.Empty(t, res[1].Missing)
}
