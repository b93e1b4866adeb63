package lesson

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/skill"
)

// MinLinkRatio is the similarity above which an objective is linked to a skill label.
const MinLinkRatio = 0.75

type Link struct {
	Objective string  `json:"objective"`
	SkillID   string  `json:"skill_id"`
	Ratio     float64 `json:"ratio"`
}

type LinkResult struct {
	Links     []Link   `json:"links"`
	Unmatched []string `json:"unmatched,omitempty"`
}

// LinkSkills maps the objectives of p to skills of g: exact ID, then exact label,
// then the label with the best similarity ratio (at least MinLinkRatio). The
// linked skills are added to p.Skills.
func LinkSkills(p *Plan, g *skill.Graph) LinkResult {
	var res LinkResult
	for _, obj := range p.Objectives {
		if l, ok := matchSkill(obj, g); ok {
			res.Links = append(res.Links, l)
			p.Skills = appendUnique(p.Skills, l.SkillID)
		} else {
			res.Unmatched = append(res.Unmatched, obj)
		}
	}
	return res
}

func matchSkill(objective string, g *skill.Graph) (Link, bool) {
	text := strings.ToLower(core.CleanString(objective))
	if text == "" {
		return Link{}, false
	}
	if id := core.Slugify(text); g.Has(id) {
		return Link{Objective: objective, SkillID: id, Ratio: 1}, true
	}

	best := Link{Objective: objective}
	a := strings.Split(text, "")
	for _, s := range g.Skills {
		label := strings.ToLower(strings.TrimSpace(s.Label))
		if label == "" {
			continue
		}
		if label == text {
			return Link{Objective: objective, SkillID: s.ID, Ratio: 1}, true
		}
		m := difflib.NewMatcher(a, strings.Split(label, ""))
		if m.QuickRatio() < MinLinkRatio {
			continue
		}
		if r := m.Ratio(); r > best.Ratio {
			best.Ratio, best.SkillID = r, s.ID
		}
	}
	if best.Ratio >= MinLinkRatio {
		best.Ratio = float64(int(best.Ratio*1000+0.5)) / 1000
		return best, true
	}
	return Link{}, false
}

func appendUnique(ids []string, id string) []string {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// LearnerReadiness lists the prerequisites of a plan a learner likely misses.
type LearnerReadiness struct {
	LearnerID string        `json:"learner_id"`
	Name      string        `json:"name"`
	Ready     bool          `json:"ready"`
	Missing   []learner.Gap `json:"missing"`
}

// Readiness checks, for each learner, the transitive prerequisites of the plan
// skills (excluding the plan skills) against threshold (learner.DefaultGapThreshold when <= 0).
func Readiness(p Plan, g *skill.Graph, learners []learner.Profile, threshold float64) []LearnerReadiness {
	if threshold <= 0 {
		threshold = learner.DefaultGapThreshold
	}
	taught := make(map[string]bool, len(p.Skills))
	for _, s := range p.Skills {
		taught[s] = true
	}
	var prereqs []string
	for _, id := range g.Closure(p.Skills) {
		if !taught[id] {
			prereqs = append(prereqs, id)
		}
	}
	prereqs = g.TopoOrder(prereqs)

	out := make([]LearnerReadiness, 0, len(learners))
	for _, lp := range learners {
		lr := LearnerReadiness{LearnerID: lp.ID, Name: lp.Name, Missing: []learner.Gap{}}
		for _, id := range prereqs {
			r, known := lp.Confidence(id)
			m := 0.0
			if known {
				m = r.Mastery()
			}
			if m < threshold {
				lr.Missing = append(lr.Missing, learner.Gap{SkillID: id, Mastery: m, Known: known})
			}
		}
		lr.Ready = len(lr.Missing) == 0
		out = append(out, lr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ready != out[j].Ready {
			return !out[i].Ready
		}
		return len(out[i].Missing) > len(out[j].Missing)
	})
	return out
}
