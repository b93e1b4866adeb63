package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/chekos/pedagogical-engine/apps/api/echo"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/lesson"
)

const fractionsMarkdown = `# Adding Fractions

Duration: 30 minutes

## Learning Objectives
- Add fractions with like denominators

## Plan

### Warm up (10 min)
- Pizza slices

### Practice (20 min)
- Number line
`

func Test_lessonApi_create(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.educator)

	tests := []httpTest{
		{
			name: "Educator required", token: f.token(t, f.assistant), wantCode: http.StatusForbidden,
			body: marchallObj(t, lesson.NewPlan{Title: "Fractions"}),
		},
		{
			name: "required fields", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "unknown domain", token: token, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, lesson.NewPlan{Title: "Cells", Domain: "biology", Skills: []string{"cells"}}),
			wantData: marchallObj(t, map[string]string{"domain": "unknown domain"}),
		},
		{
			name: "unknown skill", token: token, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, lesson.NewPlan{Title: "Fractions", Domain: "math", Skills: []string{"fractions", "algebra"}}),
			wantData: marchallObj(t, map[string]string{"skills[1]": "unknown skill algebra"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/lessons"
		t.Run(tt.name, func(t *testing.T) {
			f.run(t, tt)
		})
	}

	var res echoapi.PlanResponse
	f.decode(t, httpTest{
		method: http.MethodPost, path: "/v1/lessons", token: token, wantCode: http.StatusCreated,
		body: marchallObj(t, lesson.NewPlan{
			Title: "Fractions", Domain: "math", Skills: []string{"fractions"}, DurationMinutes: 45,
			Objectives: []string{"Add fractions"},
			Sections:   []lesson.Section{{Title: "Warm up", Minutes: 10}, {Title: "Practice"}},
		}),
	}, &res)
	assert.Equal(t, "fractions", res.Plan.ID)

	codes := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []string{lesson.WarnUntimedSection, lesson.WarnDurationMismatch}, codes)

	f.decode(t, httpTest{
		method: http.MethodPut, path: "/v1/lessons/fractions", token: token,
		body: marchallObj(t, lesson.NewPlan{
			Title: "Fractions", Domain: "math", Skills: []string{"fractions"}, DurationMinutes: 30,
			Objectives: []string{"Add fractions"},
			Sections:   []lesson.Section{{Title: "Warm up", Minutes: 10}, {Title: "Practice", Minutes: 20}},
		}),
	}, &res)
	assert.Equal(t, "fractions", res.Plan.ID)
	assert.Empty(t, res.Warnings)

	f.run(t, httpTest{
		method: http.MethodPut, path: "/v1/lessons/nope", token: token, wantCode: http.StatusNotFound,
		body: marchallObj(t, lesson.NewPlan{Title: "Nope"}), wantData: marchallObj(t, httpErr{Error: "lesson not found"}),
	})
}

func Test_lessonApi_importSearchExport(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.educator)

	f.run(t, httpTest{
		method: http.MethodPost, path: "/v1/lessons/import", token: token, wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"markdown": "this field is required"}),
	})

	var res echoapi.PlanResponse
	f.decode(t, httpTest{
		method: http.MethodPost, path: "/v1/lessons/import", token: token, wantCode: http.StatusCreated,
		body: marchallObj(t, lesson.ImportPlan{Markdown: fractionsMarkdown, Domain: "math"}),
	}, &res)
	assert.Equal(t, "adding-fractions", res.Plan.ID)
	assert.Equal(t, 30, res.Plan.DurationMinutes)
	require.Len(t, res.Plan.Sections, 2)
	assert.NotNil(t, res.Warnings)

	var plans []lesson.Plan
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/lessons", token: f.token(t, f.assistant)}, &plans)
	require.Len(t, plans, 1)

	t.Run("search", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "query required", wantCode: http.StatusBadRequest, path: "/v1/lessons/search",
				wantData: marchallObj(t, map[string]string{"q": "q is a required field"}),
			},
			{
				name: "invalid limit", wantCode: http.StatusBadRequest, path: "/v1/lessons/search?q=pizza&limit=0",
				wantData: marchallObj(t, map[string]string{"limit": "limit must be between 1 and 50"}),
			},
			{
				name: "no hits", path: "/v1/lessons/search?q=xylophone",
				wantData: marchallList(t),
			},
		}
		for _, tt := range tests {
			tt.method = http.MethodGet
			tt.token = token
			t.Run(tt.name, func(t *testing.T) {
				f.run(t, tt)
			})
		}

		var hits []lesson.Hit
		f.decode(t, httpTest{method: http.MethodGet, path: "/v1/lessons/search?q=pizza&limit=5", token: token}, &hits)
		require.Len(t, hits, 1)
		assert.Equal(t, "adding-fractions", hits[0].ID)
	})

	t.Run("export", func(t *testing.T) {
		rec := f.run(t, httpTest{method: http.MethodGet, path: "/v1/lessons/adding-fractions/export", token: token})
		assert.Equal(t, "text/markdown; charset=UTF-8", rec.Header().Get("Content-Type"))

		p, _, err := lesson.Parse(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "Adding Fractions", p.Title)
		assert.Equal(t, res.Plan.Sections, p.Sections)
	})

	f.run(t, httpTest{method: http.MethodDelete, path: "/v1/lessons/adding-fractions", token: token, wantCode: http.StatusNoContent})
	f.run(t, httpTest{method: http.MethodGet, path: "/v1/lessons/search?q=pizza", token: token, wantData: marchallList(t)})
}

func Test_lessonApi_readiness(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.educator)
	ctx := context.Background()

	ana := f.createLearner(t, "Ana", "period-3")
	f.createLearner(t, "Ben", "period-3")
	f.createLearner(t, "Cy", "period-4")
	_, _, err := f.learnerSvc.RecordAssessment(ctx, ana.ID, learner.RecordAssessment{
		Evidence: []learner.Evidence{
			{SkillID: "counting", Confidence: 0.9, Demonstrated: true},
			{SkillID: "compare-numbers", Confidence: 0.9, Demonstrated: true},
		},
	})
	require.NoError(t, err)

	_, _, err = f.lessonSvc.Create(ctx, lesson.NewPlan{Title: "Fractions", GroupID: "period-3", Domain: "math", Skills: []string{"fractions"}})
	require.NoError(t, err)
	_, _, err = f.lessonSvc.Create(ctx, lesson.NewPlan{Title: "Free play"})
	require.NoError(t, err)

	var res []lesson.LearnerReadiness
	f.decode(t, httpTest{method: http.MethodGet, path: "/v1/lessons/fractions/readiness", token: token}, &res)
	require.Len(t, res, 2)
	assert.Equal(t, "ben", res[0].LearnerID)
	assert.False(t, res[0].Ready)
	assert.Len(t, res[0].Missing, 2)
	assert.Equal(t, "ana", res[1].LearnerID)
	assert.True(t, res[1].Ready)
	assert.Empty(t, res[1].Missing)

	f.run(t, httpTest{
		method: http.MethodGet, path: "/v1/lessons/free-play/readiness", token: token, wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Error: "the lesson has no domain"}),
	})
	f.run(t, httpTest{
		method: http.MethodGet, path: "/v1/lessons/nope/readiness", token: token, wantCode: http.StatusNotFound,
		wantData: marchallObj(t, httpErr{Error: "lesson not found"}),
	})
}
