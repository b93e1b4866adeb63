package curriculum

import (
	"strconv"
	"strings"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/skill"
)

type SequenceOptions struct {
	SkillsPerSession int
}

// Sequence orders the skills needed for targets into sessions. The needed skills
// are the targets and their transitive prerequisites, minus known skills. A skill
// always comes in a later session than each needed skill it depends on, including
// through known skills.
func Sequence(g *skill.Graph, targets, known []string, opts SequenceOptions) ([]Session, error) {
	per := opts.SkillsPerSession
	if per <= 0 {
		per = DefaultSkillsPerSession
	}
	var flds []core.FieldError
	for i, id := range targets {
		if !g.Has(id) {
			flds = append(flds, core.FieldError{
				Field: "targets[" + strconv.Itoa(i) + "]",
				Error: "unknown skill " + strconv.Quote(id),
			})
		}
	}
	if len(flds) > 0 {
		return nil, core.NewValidationError(nil, flds...)
	}

	isKnown := make(map[string]bool, len(known))
	for _, id := range known {
		isKnown[id] = true
	}

	// minAt is the first session a dependent of the skill may use. Known skills are
	// not placed but pass on the bound of their own prerequisites.
	minAt := make(map[string]int)
	var sessions []Session
	for _, id := range g.TopoOrder(g.Closure(targets)) {
		earliest := 0
		for _, e := range g.Prerequisites(id) {
			if at, ok := minAt[e.Source]; ok && e.IsPrerequisite() && at > earliest {
				earliest = at
			}
		}
		if isKnown[id] {
			minAt[id] = earliest
			continue
		}
		at := earliest
		for at < len(sessions) && len(sessions[at].Skills) >= per {
			at++
		}
		if at == len(sessions) {
			sessions = append(sessions, Session{Number: at + 1})
		}
		sessions[at].Skills = append(sessions[at].Skills, id)
		minAt[id] = at + 1
	}

	for i := range sessions {
		sessions[i].Title = sessionTitle(g, sessions[i].Skills)
	}
	return sessions, nil
}

func sessionTitle(g *skill.Graph, ids []string) string {
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := g.Skill(id); ok && s.Label != "" {
			labels = append(labels, s.Label)
		} else {
			labels = append(labels, id)
		}
	}
	return strings.Join(labels, ", ")
}
