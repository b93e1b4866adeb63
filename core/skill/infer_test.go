package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer(t *testing.T) {
	g := newTestGraph()

	tests := []struct {
		name     string
		evidence []Assessment
		opts     Options
		want     map[string]Inference // checked entries only
		absent   []string
		unknown  []string
	}{
		{
			name:     "demonstrated propagates to prerequisites with decay",
			evidence: []Assessment{{SkillID: "add-fractions", Confidence: 1, Demonstrated: true}},
			want: map[string]Inference{
				// 1 * 0.9 * 0.9
				"fractions": {SkillID: "fractions", Confidence: 0.81, Demonstrated: true, Source: "add-fractions", Depth: 1, Path: []string{"add-fractions", "fractions"}},
				// 0.81 * 0.8 * 0.9
				"compare-numbers": {SkillID: "compare-numbers", Confidence: 0.5832, Demonstrated: true, Source: "add-fractions", Depth: 2, Path: []string{"add-fractions", "fractions", "compare-numbers"}},
				// 0.81 * 0.7 * 0.9
				"number-line": {SkillID: "number-line", Confidence: 0.5103, Demonstrated: true, Source: "add-fractions", Depth: 2, Path: []string{"add-fractions", "fractions", "number-line"}},
				// 0.5832 * 0.9 * 0.9
				"counting": {SkillID: "counting", Confidence: 0.4724, Demonstrated: true, Source: "add-fractions", Depth: 3, Path: []string{"add-fractions", "fractions", "compare-numbers", "counting"}},
			},
			absent: []string{"add-fractions", "word-problems"},
		},
		{
			name:     "min confidence drops weak candidates",
			evidence: []Assessment{{SkillID: "add-fractions", Confidence: 1, Demonstrated: true}},
			opts:     Options{MinConfidence: 0.5},
			want: map[string]Inference{
				"number-line": {SkillID: "number-line", Confidence: 0.5103, Demonstrated: true, Source: "add-fractions", Depth: 2, Path: []string{"add-fractions", "fractions", "number-line"}},
			},
			absent: []string{"counting"},
		},
		{
			name:     "max depth",
			evidence: []Assessment{{SkillID: "add-fractions", Confidence: 1, Demonstrated: true}},
			opts:     Options{MaxDepth: 1},
			want: map[string]Inference{
				"fractions": {SkillID: "fractions", Confidence: 0.81, Demonstrated: true, Source: "add-fractions", Depth: 1, Path: []string{"add-fractions", "fractions"}},
			},
			absent: []string{"compare-numbers", "number-line", "counting"},
		},
		{
			name:     "gap propagates to dependents",
			evidence: []Assessment{{SkillID: "compare-numbers", Confidence: 0.9, Demonstrated: false}},
			want: map[string]Inference{
				// 0.9 * 0.8 * 0.9
				"fractions": {SkillID: "fractions", Confidence: 0.648, Demonstrated: false, Source: "compare-numbers", Depth: 1, Path: []string{"compare-numbers", "fractions"}},
				// 0.648 * 0.9 * 0.9
				"add-fractions": {SkillID: "add-fractions", Confidence: 0.5249, Demonstrated: false, Source: "compare-numbers", Depth: 2, Path: []string{"compare-numbers", "fractions", "add-fractions"}},
			},
			absent: []string{"counting", "number-line", "word-problems"},
		},
		{
			name: "assessed skills are never overwritten and positive evidence wins",
			evidence: []Assessment{
				{SkillID: "add-fractions", Confidence: 1, Demonstrated: true},
				{SkillID: "counting", Confidence: 0.9, Demonstrated: false},
				{SkillID: "ghost", Confidence: 1, Demonstrated: true},
			},
			want: map[string]Inference{
				"compare-numbers": {SkillID: "compare-numbers", Confidence: 0.5832, Demonstrated: true, Source: "add-fractions", Depth: 2, Path: []string{"add-fractions", "fractions", "compare-numbers"}},
				"fractions":       {SkillID: "fractions", Confidence: 0.81, Demonstrated: true, Source: "add-fractions", Depth: 1, Path: []string{"add-fractions", "fractions"}},
			},
			absent:  []string{"counting", "add-fractions"},
			unknown: []string{"ghost"},
		},
		{
			name: "several sources",
			evidence: []Assessment{
				{SkillID: "fractions", Confidence: 0.5, Demonstrated: true},
				{SkillID: "compare-numbers", Confidence: 0.95, Demonstrated: true},
			},
			want: map[string]Inference{
				"counting": {SkillID: "counting", Confidence: 0.7695, Demonstrated: true, Source: "compare-numbers", Depth: 1, Path: []string{"compare-numbers", "counting"}},
				// 0.5 * 0.7 * 0.9
				"number-line": {SkillID: "number-line", Confidence: 0.315, Demonstrated: true, Source: "fractions", Depth: 1, Path: []string{"fractions", "number-line"}},
			},
			absent: []string{"compare-numbers", "fractions"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Infer(g, tt.evidence, tt.opts)
			for id, want := range tt.want {
				got, ok := res.Get(id)
				require.True(t, ok, "missing inference for %s", id)
				assert.Equal(t, want, got)
			}
			for _, id := range tt.absent {
				_, ok := res.Get(id)
				assert.False(t, ok, "unexpected inference for %s", id)
			}
			assert.Equal(t, tt.unknown, res.Unknown)
		})
	}
}

func TestInfer_Ordering(t *testing.T) {
	res := Infer(newTestGraph(), []Assessment{{SkillID: "add-fractions", Confidence: 1, Demonstrated: true}}, Options{})
	ids := make([]string, 0, len(res.Inferred))
	for _, inf := range res.Inferred {
		ids = append(ids, inf.SkillID)
	}
	assert.Equal(t, []string{"fractions", "compare-numbers", "number-line", "counting"}, ids)
	assert.False(t, res.Truncated)
}

func TestInfer_MaxNodes(t *testing.T) {
	res := Infer(newTestGraph(), []Assessment{{SkillID: "add-fractions", Confidence: 1, Demonstrated: true}}, Options{MaxNodes: 2})
	assert.True(t, res.Truncated)
	require.Len(t, res.Inferred, 1)
	assert.Equal(t, "fractions", res.Inferred[0].SkillID)
}
