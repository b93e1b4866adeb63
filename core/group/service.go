package group

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/skill"
)

type (
	Service interface {
		Create(ctx context.Context, ng NewGroup, educatorID string) (Profile, error)
		Get(ctx context.Context, id string) (Profile, error)
		List(ctx context.Context, filter QueryFilter) ([]Profile, error)
		Update(ctx context.Context, id string, ug UpdateGroup) (Profile, error)
		Delete(ctx context.Context, id string) error
		AddMembers(ctx context.Context, id string, learnerIDs ...string) (Profile, error)
		RemoveMembers(ctx context.Context, id string, learnerIDs ...string) (Profile, error)
		// Summary aggregates the member profiles over the group domain graph.
		Summary(ctx context.Context, id string) (Summary, error)
	}

	service struct {
		repo        Repository
		learnerRepo learner.Repository
		skillRepo   skill.Repository
		threshold   float64
		nowFunc     func() time.Time // mockable

		locks core.KeyedMutex // per group ID, held over read-modify-write
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, learnerRepo learner.Repository, skillRepo skill.Repository) Service {
	return &service{
		repo:        repo,
		learnerRepo: learnerRepo,
		skillRepo:   skillRepo,
		threshold:   learner.DefaultGapThreshold,
		nowFunc:     time.Now,
	}
}

func (svc *service) checkLearners(ctx context.Context, field string, ids []string) error {
	var flds []core.FieldError
	for i, id := range ids {
		ok, err := svc.learnerRepo.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			flds = append(flds, core.FieldError{
				Field: field + "[" + strconv.Itoa(i) + "]",
				Error: "unknown learner " + strconv.Quote(id),
			})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (svc *service) Create(ctx context.Context, ng NewGroup, educatorID string) (Profile, error) {
	if err := svc.checkLearners(ctx, "members", ng.Members); err != nil {
		return Profile{}, err
	}
	now := svc.nowFunc().UTC()
	p := Profile{
		Name:        ng.Name,
		Domain:      ng.Domain,
		EducatorID:  educatorID,
		Schedule:    ng.Schedule,
		Members:     dedupe(ng.Members),
		Constraints: ng.Constraints,
		Notes:       ng.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := core.CreateWithSlugID(ctx, ng.Name, func(ctx context.Context, id string) error {
		p.ID = id
		return svc.repo.Create(ctx, p)
	})
	if err != nil {
		return Profile{}, errors.Wrap(err, "saving group")
	}
	p.ID = id
	return p, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (svc *service) Get(ctx context.Context, id string) (Profile, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *service) List(ctx context.Context, filter QueryFilter) ([]Profile, error) {
	all, err := svc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(all))
	for _, p := range all {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (svc *service) Update(ctx context.Context, id string, ug UpdateGroup) (Profile, error) {
	defer svc.locks.Lock(id)()
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if ug.Name != nil && *ug.Name != "" {
		p.Name = *ug.Name
	}
	if ug.Domain != nil {
		p.Domain = *ug.Domain
	}
	if ug.Schedule != nil {
		p.Schedule = *ug.Schedule
	}
	if ug.Constraints != nil {
		p.Constraints = *ug.Constraints
	}
	if ug.Notes != nil {
		p.Notes = *ug.Notes
	}
	return svc.save(ctx, p)
}

func (svc *service) save(ctx context.Context, p Profile) (Profile, error) {
	p.UpdatedAt = svc.nowFunc().UTC()
	if err := svc.repo.Save(ctx, p); err != nil {
		return Profile{}, errors.Wrap(err, "saving group")
	}
	return p, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	defer svc.locks.Lock(id)()
	return svc.repo.Delete(ctx, id)
}

func (svc *service) AddMembers(ctx context.Context, id string, learnerIDs ...string) (Profile, error) {
	defer svc.locks.Lock(id)()
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if err = svc.checkLearners(ctx, "learner_ids", learnerIDs); err != nil {
		return Profile{}, err
	}
	p.Members = dedupe(append(p.Members, learnerIDs...))
	return svc.save(ctx, p)
}

func (svc *service) RemoveMembers(ctx context.Context, id string, learnerIDs ...string) (Profile, error) {
	defer svc.locks.Lock(id)()
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	drop := make(map[string]bool, len(learnerIDs))
	for _, lid := range learnerIDs {
		drop[lid] = true
	}
	members := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		if !drop[m] {
			members = append(members, m)
		}
	}
	p.Members = members
	return svc.save(ctx, p)
}

func (svc *service) Summary(ctx context.Context, id string) (Summary, error) {
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	if p.Domain == "" {
		return Summary{}, core.NewConflictError("group " + p.ID + " has no domain")
	}
	g, err := svc.skillRepo.GetGraph(ctx, p.Domain)
	if err != nil {
		return Summary{}, err
	}

	members := make([]learner.Profile, 0, len(p.Members))
	sum := Summary{GroupID: p.ID, Domain: p.Domain, MemberCount: len(p.Members)}
	for _, mid := range p.Members {
		lp, err := svc.learnerRepo.Get(ctx, mid)
		if err != nil {
			if core.IsNotFound(err) {
				sum.Missing = append(sum.Missing, mid)
				continue
			}
			return Summary{}, err
		}
		members = append(members, lp)
	}
	return Summarize(sum, g, members, svc.threshold), nil
}

// Summarize fills sum.Skills with one entry per skill of g, in prerequisite order.
func Summarize(sum Summary, g *skill.Graph, members []learner.Profile, threshold float64) Summary {
	ids := make([]string, 0, len(g.Skills))
	for _, s := range g.Skills {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)

	sum.Skills = make([]SkillSummary, 0, len(ids))
	for _, sid := range g.TopoOrder(ids) {
		s, _ := g.Skill(sid)
		ss := SkillSummary{SkillID: sid, Label: s.Label, Gaps: []string{}}
		var total float64
		for _, m := range members {
			_, assessed := m.Assessed[sid]
			r, known := m.Confidence(sid)
			mastery := 0.0
			if known {
				mastery = r.Mastery()
			}
			switch {
			case assessed:
				ss.Assessed++
			case known:
				ss.Inferred++
			}
			if mastery >= threshold {
				ss.Held++
			} else {
				ss.Gaps = append(ss.Gaps, m.ID)
			}
			total += mastery
		}
		if len(members) > 0 {
			ss.MeanMastery = math.Round(total/float64(len(members))*1e4) / 1e4
		}
		sum.Skills = append(sum.Skills, ss)
	}
	return sum
}
