package files

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chekos/pedagogical-engine/core/agent"
	"github.com/chekos/pedagogical-engine/core/curriculum"
	"github.com/chekos/pedagogical-engine/core/group"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/lesson"
	"github.com/chekos/pedagogical-engine/core/session"
	"github.com/chekos/pedagogical-engine/core/skill"
)

func TestSkillRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSkillRepository(newTestStore(t))

	_, err := repo.GetGraph(ctx, "math")
	assert.Equal(t, skill.ErrNotFound, err)
	_, err = repo.GetGraph(ctx, "../math")
	assert.Equal(t, skill.ErrNotFound, err)

	bad := &skill.Graph{Domain: "math", Skills: []skill.Skill{{ID: "a", Label: "A"}}, Edges: []skill.Edge{{Source: "a", Target: "b", Confidence: 1}}}
	assert.Error(t, repo.SaveGraph(ctx, bad))

	g := &skill.Graph{
		Domain:  "math",
		Version: "2",
		Skills:  []skill.Skill{{ID: "counting", Label: "Counting"}, {ID: "adding", Label: "Adding"}},
		Edges:   []skill.Edge{{Source: "counting", Target: "adding", Confidence: 0.9}},
	}
	require.NoError(t, repo.SaveGraph(ctx, g))

	got, err := repo.GetGraph(ctx, "math")
	require.NoError(t, err)
	assert.Equal(t, g.Skills, got.Skills)
	require.Len(t, got.Prerequisites("adding"), 1)
	assert.Equal(t, "counting", got.Prerequisites("adding")[0].Source)

	domains, err := repo.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []skill.Domain{{Name: "math", Version: "2", SkillCount: 2, EdgeCount: 1}}, domains)
}

func TestLearnerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLearnerRepository(newTestStore(t))
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	ok, err := repo.Exists(ctx, "ana")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.Get(ctx, "ana")
	assert.Equal(t, learner.ErrNotFound, err)
	assert.Error(t, repo.Save(ctx, learner.Profile{ID: "../ana"}))

	p := learner.Profile{
		ID:      "ana",
		Name:    "Ana",
		GroupID: "period-3",
		Domain:  "math",
		Assessed: map[string]learner.SkillRecord{
			"adding": {SkillID: "adding", Confidence: 0.8, Demonstrated: true, Source: "assessment"},
		},
		Inferred:  map[string]learner.SkillRecord{},
		Notes:     "Likes puzzles.\n\n## Home\nPractises with parents.",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Save(ctx, p))

	got, err := repo.Get(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.GroupID, got.GroupID)
	assert.Equal(t, p.Notes, got.Notes)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	require.Contains(t, got.Assessed, "adding")
	assert.Equal(t, 0.8, got.Assessed["adding"].Confidence)
	assert.True(t, got.Assessed["adding"].Demonstrated)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "ana"))
	assert.Equal(t, learner.ErrNotFound, repo.Delete(ctx, "ana"))
}

func TestGroupRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(newTestStore(t))

	p := group.Profile{
		ID:          "period-3",
		Name:        "Period 3",
		Domain:      "math",
		Members:     []string{"ana", "ben"},
		Constraints: []string{"no screens"},
		Notes:       "Room 12.\n### Seating\nBy table.",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, p))

	got, err := repo.Get(ctx, "period-3")
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Members, got.Members)
	assert.Equal(t, p.Constraints, got.Constraints)
	assert.Equal(t, p.Notes, got.Notes)

	require.NoError(t, repo.Delete(ctx, "period-3"))
	_, err = repo.Get(ctx, "period-3")
	assert.Equal(t, group.ErrNotFound, err)
}

func TestLessonRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonRepository(newTestStore(t))

	p := lesson.Plan{
		ID:              "fractions",
		Title:           "Fractions",
		Domain:          "math",
		DurationMinutes: 30,
		Skills:          []string{"fractions"},
		Objectives:      []string{"Add fractions"},
		Sections:        []lesson.Section{{Title: "Warm up", Minutes: 10}, {Title: "Practice", Minutes: 20, Activities: []string{"Number line"}}},
	}
	require.NoError(t, repo.Save(ctx, p))

	got, err := repo.Get(ctx, "fractions")
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)
	assert.Equal(t, p.Skills, got.Skills)
	assert.Equal(t, p.Sections, got.Sections)

	ok, err := repo.Exists(ctx, "fractions")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, repo.Delete(ctx, "fractions"))
	assert.Equal(t, lesson.ErrNotFound, repo.Delete(ctx, "fractions"))
}

func TestCurriculumRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCurriculumRepository(newTestStore(t))

	c := curriculum.Curriculum{
		ID:      "fractions-unit",
		Title:   "Fractions unit",
		Domain:  "math",
		Targets: []string{"fractions"},
		Sessions: []curriculum.Session{
			{Number: 1, Title: "Counting", Skills: []string{"counting"}, LessonID: "counting-games"},
			{Number: 2, Title: "Fractions", Skills: []string{"fractions"}},
		},
	}
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.Get(ctx, "fractions-unit")
	require.NoError(t, err)
	assert.Equal(t, c.Title, got.Title)
	assert.Equal(t, c.Sessions, got.Sessions)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestStore(t))

	s := session.Session{
		ID:         "0b7c4a36-5d0b-4d4e-9a57-2f1c0f1e8a11",
		Role:       agent.RoleLesson,
		EducatorID: "ada",
		Messages:   []agent.Message{{Role: agent.MessageUser, Content: "hello", CreatedAt: time.Now().UTC()}},
	}
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Role, got.Role)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)

	require.NoError(t, repo.Delete(ctx, s.ID))
	_, err = repo.Get(ctx, s.ID)
	assert.Equal(t, session.ErrNotFound, err)
}
