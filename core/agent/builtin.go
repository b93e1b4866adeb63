package agent

import (
	"context"
	"encoding/json"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/curriculum"
	"github.com/chekos/pedagogical-engine/core/group"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/lesson"
	"github.com/chekos/pedagogical-engine/core/skill"
)

// Services are the dependencies of the built-in tools.
type Services struct {
	Validate      *validator.Validate
	Translator    ut.Translator
	SkillRepo     skill.Repository
	LearnerSvc    learner.Service
	GroupSvc      group.Service
	LessonSvc     lesson.Service
	CurriculumSvc curriculum.Service
}

func str(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func boolean(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func integer(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func strList(description string) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": description}
}

// NewBuiltinRegistry returns a registry holding every built-in tool.
func NewBuiltinRegistry(svcs Services) *Registry {
	b := builtins{svcs}
	return NewRegistry(
		NewTool("query_skill_graph",
			"Look up a domain skill graph. Without skill_id it lists the skills; with skill_id it returns the skill, "+
				"its prerequisites and its dependents.",
			Schema{
				Properties: map[string]interface{}{
					"domain":   str("Domain name, e.g. fractions"),
					"skill_id": str("Optional skill ID"),
				},
				Required: []string{"domain"},
			},
			b.querySkillGraph,
		),
		NewTool("get_learner", "Return a learner profile with assessed and inferred skills.",
			Schema{Properties: map[string]interface{}{"learner_id": str("Learner ID")}, Required: []string{"learner_id"}},
			b.getLearner,
		),
		NewTool("list_group", "Return a group profile and the name of each member.",
			Schema{Properties: map[string]interface{}{"group_id": str("Group ID")}, Required: []string{"group_id"}},
			b.listGroup,
		),
		NewTool("group_summary",
			"Aggregate the member profiles of a group: per skill, how many members hold it and who has a gap.",
			Schema{Properties: map[string]interface{}{"group_id": str("Group ID")}, Required: []string{"group_id"}},
			b.groupSummary,
		),
		NewTool("assess_learner",
			"Record assessment evidence on a learner profile and re-run the skill inference. "+
				"confidence is between 0 and 1; demonstrated is false for an observed gap.",
			Schema{
				Properties: map[string]interface{}{
					"learner_id": str("Learner ID"),
					"domain":     str("Domain, defaults to the learner domain"),
					"evidence": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"skill_id":     str("Skill ID"),
								"confidence":   map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
								"demonstrated": boolean("Whether the learner demonstrated the skill"),
								"note":         str("Short observation"),
							},
							"required": []string{"skill_id", "confidence", "demonstrated"},
						},
					},
				},
				Required: []string{"learner_id", "evidence"},
			},
			b.assessLearner,
		),
		NewTool("parse_lesson",
			"Parse a markdown lesson plan without saving it and return the plan with its warnings.",
			Schema{Properties: map[string]interface{}{"markdown": str("Lesson plan markdown")}, Required: []string{"markdown"}},
			b.parseLesson,
		),
		NewTool("save_lesson", "Parse and store a markdown lesson plan.",
			Schema{
				Properties: map[string]interface{}{
					"markdown":    str("Lesson plan markdown"),
					"group_id":    str("Group the lesson is for"),
					"domain":      str("Skill graph domain"),
					"link_skills": boolean("Map the objectives to skills of the domain"),
				},
				Required: []string{"markdown"},
			},
			b.saveLesson,
		),
		NewTool("lesson_readiness",
			"For a stored lesson, list the learners of its group missing prerequisites of the lesson skills.",
			Schema{Properties: map[string]interface{}{"lesson_id": str("Lesson ID")}, Required: []string{"lesson_id"}},
			b.lessonReadiness,
		),
		NewTool("search_lessons", "Full-text search over the stored lesson plans.",
			Schema{
				Properties: map[string]interface{}{"query": str("Search terms"), "limit": integer("Maximum number of hits")},
				Required:   []string{"query"},
			},
			b.searchLessons,
		),
		NewTool("sequence_curriculum",
			"Sequence the target skills (and their missing prerequisites) into sessions and store the curriculum.",
			Schema{
				Properties: map[string]interface{}{
					"title":              str("Curriculum title"),
					"group_id":           str("Group the curriculum is for"),
					"domain":             str("Domain, required without group_id"),
					"targets":            strList("Target skill IDs"),
					"known":              strList("Skill IDs already known"),
					"session_minutes":    integer("Length of a session"),
					"skills_per_session": integer("Maximum number of new skills per session"),
				},
				Required: []string{"title", "targets"},
			},
			b.sequenceCurriculum,
		),
	)
}

type builtins struct {
	Services
}

// validate runs the Validate method of v, translating the validator errors into a core.ValidationError.
func (b builtins) validate(v interface{ Validate(*validator.Validate) error }) error {
	err := v.Validate(b.Validate)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]core.FieldError, 0, len(verrs))
	for _, ve := range verrs {
		msg := ve.Error()
		if b.Translator != nil {
			msg = ve.Translate(b.Translator)
		}
		flds = append(flds, core.FieldError{Field: ve.Field(), Error: msg})
	}
	return core.NewValidationError(nil, flds...)
}

func required(field, value string) error {
	if core.CleanString(value) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: "this field is required"})
	}
	return nil
}

type skillDetail struct {
	Skill         skill.Skill  `json:"skill"`
	Prerequisites []skill.Edge `json:"prerequisites"`
	Dependents    []skill.Edge `json:"dependents"`
}

func (b builtins) querySkillGraph(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Domain  string `json:"domain"`
		SkillID string `json:"skill_id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("domain", in.Domain); err != nil {
		return nil, err
	}
	g, err := b.SkillRepo.GetGraph(ctx, core.CleanString(in.Domain, true))
	if err != nil {
		return nil, err
	}
	if in.SkillID == "" {
		return struct {
			Domain string        `json:"domain"`
			Skills []skill.Skill `json:"skills"`
			Edges  int           `json:"edge_count"`
		}{g.Domain, g.Skills, len(g.Edges)}, nil
	}
	s, ok := g.Skill(in.SkillID)
	if !ok {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "skill_id", Error: "unknown skill"})
	}
	return skillDetail{Skill: s, Prerequisites: g.Prerequisites(s.ID), Dependents: g.Dependents(s.ID)}, nil
}

func (b builtins) getLearner(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		LearnerID string `json:"learner_id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("learner_id", in.LearnerID); err != nil {
		return nil, err
	}
	return b.LearnerSvc.Get(ctx, in.LearnerID)
}

type member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (b builtins) listGroup(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		GroupID string `json:"group_id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("group_id", in.GroupID); err != nil {
		return nil, err
	}
	p, err := b.GroupSvc.Get(ctx, in.GroupID)
	if err != nil {
		return nil, err
	}
	members := make([]member, 0, len(p.Members))
	for _, id := range p.Members {
		m := member{ID: id}
		if lp, err := b.LearnerSvc.Get(ctx, id); err == nil {
			m.Name = lp.Name
		} else if !core.IsNotFound(err) {
			return nil, err
		}
		members = append(members, m)
	}
	return struct {
		Group   group.Profile `json:"group"`
		Members []member      `json:"members"`
	}{p, members}, nil
}

func (b builtins) groupSummary(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		GroupID string `json:"group_id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("group_id", in.GroupID); err != nil {
		return nil, err
	}
	return b.GroupSvc.Summary(ctx, in.GroupID)
}

func (b builtins) assessLearner(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		LearnerID string `json:"learner_id"`
		learner.RecordAssessment
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("learner_id", in.LearnerID); err != nil {
		return nil, err
	}
	if err := b.validate(in.RecordAssessment); err != nil {
		return nil, err
	}
	p, res, err := b.LearnerSvc.RecordAssessment(ctx, in.LearnerID, in.RecordAssessment)
	if err != nil {
		return nil, err
	}
	return struct {
		Profile   learner.Profile `json:"profile"`
		Inference skill.Result    `json:"inference"`
	}{p, res}, nil
}

type planResult struct {
	Plan     lesson.Plan      `json:"plan"`
	Warnings []lesson.Warning `json:"warnings"`
}

func (b builtins) parseLesson(_ context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Markdown string `json:"markdown"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("markdown", in.Markdown); err != nil {
		return nil, err
	}
	p, warnings, err := lesson.Parse([]byte(in.Markdown))
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "markdown", Error: err.Error()})
	}
	return planResult{p, warnings}, nil
}

func (b builtins) saveLesson(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in lesson.ImportPlan
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := b.validate(in); err != nil {
		return nil, err
	}
	p, warnings, err := b.LessonSvc.Import(ctx, in)
	if err != nil {
		return nil, err
	}
	return planResult{p, warnings}, nil
}

func (b builtins) lessonReadiness(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		LessonID string `json:"lesson_id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("lesson_id", in.LessonID); err != nil {
		return nil, err
	}
	return b.LessonSvc.Readiness(ctx, in.LessonID)
}

func (b builtins) searchLessons(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Limit < 0 || in.Limit > 50 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be between 0 and 50"})
	}
	return b.LessonSvc.Search(ctx, in.Query, in.Limit)
}

func (b builtins) sequenceCurriculum(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in curriculum.NewCurriculum
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := b.validate(&in); err != nil {
		return nil, err
	}
	return b.CurriculumSvc.Plan(ctx, in)
}
