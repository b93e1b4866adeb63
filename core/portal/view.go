// Package portal builds the read-only progress views shared with learners and parents.
package portal

import (
	"math"
	"strconv"
	"time"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/skill"
)

type Audience string

const (
	AudienceLearner  Audience = "learner"
	AudienceParent   Audience = "parent"
	AudienceEducator Audience = "educator"
)

func ParseAudience(s string) (Audience, error) {
	switch a := Audience(s); a {
	case AudienceLearner, AudienceParent, AudienceEducator:
		return a, nil
	case "":
		return AudienceLearner, nil
	}
	return "", core.NewValidationError(nil, core.FieldError{
		Field: "audience",
		Error: "must be one of: learner, parent, educator",
	})
}

type Band string

const (
	BandMastered   Band = "mastered"
	BandDeveloping Band = "developing"
	BandNotYet     Band = "not_yet"

	masteredFrom   = 0.8
	developingFrom = 0.5
)

// BandOf maps a mastery estimate to its band.
func BandOf(mastery float64) Band {
	switch {
	case mastery >= masteredFrom:
		return BandMastered
	case mastery >= developingFrom:
		return BandDeveloping
	}
	return BandNotYet
}

type SkillView struct {
	SkillID   string `json:"skill_id"`
	Label     string `json:"label"`
	Band      Band   `json:"band"`
	BandLabel string `json:"band_label"`
	Known     bool   `json:"known"`
	// educator only
	Mastery  *float64 `json:"mastery,omitempty"`
	Evidence string   `json:"evidence,omitempty"`
	Note     string   `json:"note,omitempty"`
}

// MasteryText formats the educator-only mastery, empty otherwise.
func (sv SkillView) MasteryText() string {
	if sv.Mastery == nil {
		return ""
	}
	return strconv.FormatFloat(*sv.Mastery, 'f', 2, 64)
}

// Labels are the localized texts of a view.
type Labels struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Updated    string `json:"updated"`
	Skill      string `json:"skill"`
	Level      string `json:"level"`
	Confidence string `json:"confidence"`
	Evidence   string `json:"evidence"`
	Notes      string `json:"notes"`
}

type View struct {
	LearnerID string      `json:"learner_id"`
	Name      string      `json:"name"`
	Domain    string      `json:"domain"`
	Language  string      `json:"language"`
	Audience  Audience    `json:"audience"`
	Labels    Labels      `json:"labels"`
	Mastered  int         `json:"mastered"`
	Total     int         `json:"total"`
	Skills    []SkillView `json:"skills"`
	Notes     string      `json:"notes,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IsEducator reports whether the view carries the educator-only details.
func (v View) IsEducator() bool { return v.Audience == AudienceEducator }

var defaultLocalizer = NewLocalizer(DefaultLanguage)

// Build renders the progress of p over the skills of g with the default localizer.
func Build(p learner.Profile, g *skill.Graph, lang string, audience Audience) (View, error) {
	return defaultLocalizer.Build(p, g, lang, audience)
}

// Build renders the progress of p over the skills of g, prerequisites first.
// Only the educator view carries exact mastery, evidence sources and notes.
func (l *Localizer) Build(p learner.Profile, g *skill.Graph, lang string, audience Audience) (View, error) {
	audience, err := ParseAudience(string(audience))
	if err != nil {
		return View{}, err
	}
	trans := l.Translator(lang)
	educator := audience == AudienceEducator

	ids := make([]string, 0, len(g.Skills))
	for _, s := range g.Skills {
		ids = append(ids, s.ID)
	}

	v := View{
		LearnerID: p.ID,
		Name:      p.Name,
		Domain:    g.Domain,
		Language:  l.Language(lang),
		Audience:  audience,
		Skills:    make([]SkillView, 0, len(ids)),
		Total:     len(ids),
		UpdatedAt: p.UpdatedAt,
	}
	for _, id := range g.TopoOrder(ids) {
		s, _ := g.Skill(id)
		r, known := p.Confidence(id)
		mastery := 0.0
		if known {
			mastery = r.Mastery()
		}
		sv := SkillView{SkillID: id, Label: s.Label, Known: known, Band: BandOf(mastery)}
		if sv.Label == "" {
			sv.Label = id
		}
		if sv.Band == BandMastered {
			v.Mastered++
		}
		if !known {
			sv.BandLabel = tr(trans, msgNotAssessed)
		} else {
			sv.BandLabel = tr(trans, string(sv.Band))
		}
		if educator {
			m := math.Round(mastery*100) / 100
			sv.Mastery = &m
			switch {
			case !known:
			case r.Source != "":
				sv.Evidence = tr(trans, msgInferredFrom, r.Source)
			default:
				sv.Evidence = tr(trans, msgAssessed)
			}
			sv.Note = r.Note
		}
		v.Skills = append(v.Skills, sv)
	}
	if educator {
		v.Notes = p.Notes
	}

	v.Labels = Labels{
		Title:      tr(trans, msgTitle, p.Name),
		Summary:    tr(trans, msgSummary, trans.FmtNumber(float64(v.Mastered), 0), trans.FmtNumber(float64(v.Total), 0)),
		Skill:      tr(trans, msgSkill),
		Level:      tr(trans, msgLevel),
		Confidence: tr(trans, msgConfidence),
		Evidence:   tr(trans, msgEvidence),
		Notes:      tr(trans, msgNotes),
	}
	if !p.UpdatedAt.IsZero() {
		v.Labels.Updated = tr(trans, msgUpdated, trans.FmtDateLong(p.UpdatedAt))
	}
	return v, nil
}
