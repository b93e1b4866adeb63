package learner

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/skill"
)

type (
	Service interface {
		Create(ctx context.Context, nl NewLearner) (Profile, error)
		Get(ctx context.Context, id string) (Profile, error)
		List(ctx context.Context, filter QueryFilter) ([]Profile, error)
		Update(ctx context.Context, id string, ul UpdateLearner) (Profile, error)
		Delete(ctx context.Context, id string) error
		// RecordAssessment merges evidence into the assessed skills (latest wins per skill),
		// re-runs the inference over the domain graph and saves the profile.
		RecordAssessment(ctx context.Context, id string, ra RecordAssessment) (Profile, skill.Result, error)
	}

	service struct {
		repo      Repository
		skillRepo skill.Repository
		opts      skill.Options
		nowFunc   func() time.Time // mockable

		locks core.KeyedMutex // per learner ID, held over read-modify-write
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, skillRepo skill.Repository) Service {
	return &service{
		repo:      repo,
		skillRepo: skillRepo,
		opts:      skill.DefaultOptions(),
		nowFunc:   time.Now,
	}
}

func (svc *service) Create(ctx context.Context, nl NewLearner) (Profile, error) {
	now := svc.nowFunc().UTC()
	p := Profile{
		Name:      nl.Name,
		GroupID:   nl.GroupID,
		Domain:    nl.Domain,
		Assessed:  make(map[string]SkillRecord),
		Inferred:  make(map[string]SkillRecord),
		Notes:     nl.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := core.CreateWithSlugID(ctx, nl.Name, func(ctx context.Context, id string) error {
		p.ID = id
		return svc.repo.Create(ctx, p)
	})
	if err != nil {
		return Profile{}, errors.Wrap(err, "saving learner")
	}
	p.ID = id
	return p, nil
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (svc *service) Update(ctx context.Context, id string, ul UpdateLearner) (Profile, error) {
	defer svc.locks.Lock(id)()
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if ul.Name != nil && *ul.Name != "" {
		p.Name = *ul.Name
	}
	if ul.GroupID != nil {
		p.GroupID = *ul.GroupID
	}
	if ul.Domain != nil {
		p.Domain = *ul.Domain
	}
	if ul.Notes != nil {
		p.Notes = *ul.Notes
	}
	p.UpdatedAt = svc.nowFunc().UTC()
	if err = svc.repo.Save(ctx, p); err != nil {
		return Profile{}, errors.Wrap(err, "saving learner")
	}
	return p, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	defer svc.locks.Lock(id)()
	return svc.repo.Delete(ctx, id)
}

func (svc *service) RecordAssessment(ctx context.Context, id string, ra RecordAssessment) (Profile, skill.Result, error) {
	defer svc.locks.Lock(id)()
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, skill.Result{}, err
	}
	domain := ra.Domain
	if domain == "" {
		domain = p.Domain
	}
	if domain == "" {
		return Profile{}, skill.Result{}, core.NewValidationError(nil,
			core.FieldError{Field: "domain", Error: "the learner has no domain, one must be provided"})
	}
	g, err := svc.skillRepo.GetGraph(ctx, domain)
	if err != nil {
		return Profile{}, skill.Result{}, err
	}

	now := svc.nowFunc().UTC()
	var unknown []core.FieldError
	for i, ev := range ra.Evidence {
		if !g.Has(ev.SkillID) {
			unknown = append(unknown, core.FieldError{
				Field: "evidence[" + strconv.Itoa(i) + "].skill_id",
				Error: "unknown skill " + strconv.Quote(ev.SkillID),
			})
		}
	}
	if len(unknown) > 0 {
		return Profile{}, skill.Result{}, core.NewValidationError(nil, unknown...)
	}

	if p.Assessed == nil {
		p.Assessed = make(map[string]SkillRecord)
	}
	for _, ev := range ra.Evidence {
		at := ev.AssessedAt.UTC()
		if ev.AssessedAt.IsZero() {
			at = now
		}
		if prev, ok := p.Assessed[ev.SkillID]; ok && prev.AssessedAt.After(at) {
			continue // latest wins
		}
		p.Assessed[ev.SkillID] = SkillRecord{
			SkillID:      ev.SkillID,
			Confidence:   ev.Confidence,
			Demonstrated: ev.Demonstrated,
			AssessedAt:   at,
			Note:         ev.Note,
		}
	}

	res := Reinfer(&p, g, svc.opts)
	if p.Domain == "" {
		p.Domain = domain
	}
	p.UpdatedAt = now
	if err = svc.repo.Save(ctx, p); err != nil {
		return Profile{}, skill.Result{}, errors.Wrap(err, "saving learner")
	}
	return p, res, nil
}

// Reinfer replaces the inferred skills of p that belong to g with a fresh
// inference over its assessed skills.
func Reinfer(p *Profile, g *skill.Graph, opts skill.Options) skill.Result {
	res := skill.Infer(g, p.Evidence(), opts)
	inferred := make(map[string]SkillRecord, len(p.Inferred)+len(res.Inferred))
	for id, r := range p.Inferred {
		if !g.Has(id) {
			inferred[id] = r
		}
	}
	for _, inf := range res.Inferred {
		inferred[inf.SkillID] = SkillRecord{
			SkillID:      inf.SkillID,
			Confidence:   inf.Confidence,
			Demonstrated: inf.Demonstrated,
			Source:       inf.Source,
		}
	}
	p.Inferred = inferred
	return res
}
