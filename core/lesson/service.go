package lesson

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/skill"
)

const defaultSearchLimit = 20

type (
	Service interface {
		Create(ctx context.Context, np NewPlan) (Plan, []Warning, error)
		// Import parses a markdown lesson plan and stores it.
		Import(ctx context.Context, ip ImportPlan) (Plan, []Warning, error)
		Get(ctx context.Context, id string) (Plan, error)
		List(ctx context.Context, filter QueryFilter) ([]Plan, error)
		Update(ctx context.Context, id string, np NewPlan) (Plan, []Warning, error)
		Delete(ctx context.Context, id string) error
		Search(ctx context.Context, query string, limit int) ([]Hit, error)
		Export(ctx context.Context, id string) ([]byte, error)
		Readiness(ctx context.Context, id string) ([]LearnerReadiness, error)
		// Reindex rebuilds the search index from the stored plans.
		Reindex(ctx context.Context) (int, error)
	}

	service struct {
		repo        Repository
		index       Index
		skillRepo   skill.Repository
		learnerRepo learner.Repository
		threshold   float64
		nowFunc     func() time.Time // mockable

		locks core.KeyedMutex // per lesson ID, held over read-modify-write
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, index Index, skillRepo skill.Repository, learnerRepo learner.Repository) Service {
	return &service{
		repo:        repo,
		index:       index,
		skillRepo:   skillRepo,
		learnerRepo: learnerRepo,
		threshold:   learner.DefaultGapThreshold,
		nowFunc:     time.Now,
	}
}

func (svc *service) checkSkills(ctx context.Context, p Plan) error {
	if p.Domain == "" || len(p.Skills) == 0 {
		return nil
	}
	g, err := svc.skillRepo.GetGraph(ctx, p.Domain)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "unknown domain"})
		}
		return err
	}
	var flds []core.FieldError
	for i, id := range p.Skills {
		if !g.Has(id) {
			flds = append(flds, core.FieldError{Field: skillsField(i), Error: "unknown skill " + id})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func skillsField(i int) string {
	return "skills[" + strconv.Itoa(i) + "]"
}

func (svc *service) save(ctx context.Context, p Plan) error {
	if err := svc.repo.Save(ctx, p); err != nil {
		return errors.Wrap(err, "saving lesson")
	}
	if err := svc.index.Index(p); err != nil {
		return errors.Wrap(err, "indexing lesson")
	}
	return nil
}

func (svc *service) create(ctx context.Context, p Plan) (Plan, error) {
	if err := svc.checkSkills(ctx, p); err != nil {
		return Plan{}, err
	}
	p.CreatedAt = svc.nowFunc().UTC()
	id, err := core.CreateWithSlugID(ctx, p.Title, func(ctx context.Context, id string) error {
		p.ID = id
		return svc.repo.Create(ctx, p)
	})
	if err != nil {
		return Plan{}, errors.Wrap(err, "saving lesson")
	}
	p.ID = id
	if err = svc.index.Index(p); err != nil {
		return Plan{}, errors.Wrap(err, "indexing lesson")
	}
	return p, nil
}

func (svc *service) Create(ctx context.Context, np NewPlan) (Plan, []Warning, error) {
	p, err := svc.create(ctx, np.plan())
	if err != nil {
		return Plan{}, nil, err
	}
	return p, Check(p), nil
}

func (svc *service) Import(ctx context.Context, ip ImportPlan) (Plan, []Warning, error) {
	p, warnings, err := Parse([]byte(ip.Markdown))
	if err != nil {
		return Plan{}, nil, core.NewValidationError(err, core.FieldError{Field: "markdown", Error: err.Error()})
	}
	if ip.GroupID != "" {
		p.GroupID = ip.GroupID
	}
	if ip.Domain != "" {
		p.Domain = ip.Domain
	}
	if ip.LinkSkills && p.Domain != "" {
		g, err := svc.skillRepo.GetGraph(ctx, p.Domain)
		if err != nil {
			if core.IsNotFound(err) {
				return Plan{}, nil, core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "unknown domain"})
			}
			return Plan{}, nil, err
		}
		res := LinkSkills(&p, g)
		for _, obj := range res.Unmatched {
			warnings = append(warnings, Warning{Code: "unlinked_objective", Message: "no skill matches objective: " + obj})
		}
	}
	if p, err = svc.create(ctx, p); err != nil {
		return Plan{}, nil, err
	}
	return p, warnings, nil
}

func (svc *service) Get(ctx context.Context, id string) (Plan, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *service) List(ctx context.Context, filter QueryFilter) ([]Plan, error) {
	all, err := svc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Plan, 0, len(all))
	for _, p := range all {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (svc *service) Update(ctx context.Context, id string, np NewPlan) (Plan, []Warning, error) {
	defer svc.locks.Lock(id)()
	old, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Plan{}, nil, err
	}
	p := np.plan()
	p.ID, p.CreatedAt = old.ID, old.CreatedAt
	if err = svc.checkSkills(ctx, p); err != nil {
		return Plan{}, nil, err
	}
	if err = svc.save(ctx, p); err != nil {
		return Plan{}, nil, err
	}
	return p, Check(p), nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	defer svc.locks.Lock(id)()
	if err := svc.repo.Delete(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.index.Remove(id), "unindexing lesson")
}

func (svc *service) Search(_ context.Context, query string, limit int) ([]Hit, error) {
	query = core.CleanString(query)
	if query == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return svc.index.Search(query, limit)
}

func (svc *service) Export(ctx context.Context, id string) ([]byte, error) {
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Render(p)
}

func (svc *service) Readiness(ctx context.Context, id string) ([]LearnerReadiness, error) {
	p, err := svc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Domain == "" {
		return nil, core.NewConflictError("the lesson has no domain")
	}
	g, err := svc.skillRepo.GetGraph(ctx, p.Domain)
	if err != nil {
		return nil, err
	}
	all, err := svc.learnerRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	var learners []learner.Profile
	for _, lp := range all {
		if p.GroupID == "" || lp.GroupID == p.GroupID {
			learners = append(learners, lp)
		}
	}
	return Readiness(p, g, learners, svc.threshold), nil
}

func (svc *service) Reindex(ctx context.Context) (int, error) {
	plans, err := svc.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range plans {
		if err = svc.index.Index(p); err != nil {
			return 0, errors.Wrapf(err, "indexing lesson %s", p.ID)
		}
	}
	return len(plans), nil
}
