package curriculum

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/group"
	"github.com/chekos/pedagogical-engine/core/lesson"
	"github.com/chekos/pedagogical-engine/core/skill"
)

type (
	Service interface {
		// Plan sequences the targets for a group (or a whole domain) and saves the curriculum.
		// Skills held by the majority of the group are treated as known.
		Plan(ctx context.Context, nc NewCurriculum) (Curriculum, error)
		Get(ctx context.Context, id string) (Curriculum, error)
		List(ctx context.Context, filter QueryFilter) ([]Curriculum, error)
		Delete(ctx context.Context, id string) error
		AttachLesson(ctx context.Context, id string, al AttachLesson) (Curriculum, error)
		Export(ctx context.Context, id string) ([]byte, error)
	}

	service struct {
		repo       Repository
		groupSvc   group.Service
		skillRepo  skill.Repository
		lessonRepo lesson.Repository
		nowFunc    func() time.Time // mockable

		locks core.KeyedMutex // per curriculum ID, held over read-modify-write
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, groupSvc group.Service, skillRepo skill.Repository, lessonRepo lesson.Repository) Service {
	return &service{
		repo:       repo,
		groupSvc:   groupSvc,
		skillRepo:  skillRepo,
		lessonRepo: lessonRepo,
		nowFunc:    time.Now,
	}
}

func (svc *service) known(ctx context.Context, nc NewCurriculum) (domain string, known []string, err error) {
	domain = nc.Domain
	known = append(known, nc.Known...)
	if nc.GroupID == "" {
		return domain, known, nil
	}

	grp, err := svc.groupSvc.Get(ctx, nc.GroupID)
	if err != nil {
		if core.IsNotFound(err) {
			return "", nil, core.NewValidationError(nil, core.FieldError{Field: "group_id", Error: "unknown group"})
		}
		return "", nil, err
	}
	switch {
	case grp.Domain == "":
		return domain, known, nil // nothing to summarize
	case domain == "":
		domain = grp.Domain
	case domain != grp.Domain:
		return "", nil, core.NewValidationError(nil, core.FieldError{
			Field: "domain",
			Error: "the group works in " + strconv.Quote(grp.Domain),
		})
	}

	sum, err := svc.groupSvc.Summary(ctx, grp.ID)
	if err != nil {
		return "", nil, errors.Wrap(err, "summarizing group")
	}
	return domain, append(known, sum.MajorityHeld()...), nil
}

func (svc *service) Plan(ctx context.Context, nc NewCurriculum) (Curriculum, error) {
	domain, known, err := svc.known(ctx, nc)
	if err != nil {
		return Curriculum{}, err
	}
	if domain == "" {
		return Curriculum{}, core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "a domain is required"})
	}
	g, err := svc.skillRepo.GetGraph(ctx, domain)
	if err != nil {
		if core.IsNotFound(err) {
			return Curriculum{}, core.NewValidationError(nil, core.FieldError{Field: "domain", Error: "unknown domain"})
		}
		return Curriculum{}, err
	}
	sessions, err := Sequence(g, nc.Targets, known, SequenceOptions{SkillsPerSession: nc.SkillsPerSession})
	if err != nil {
		return Curriculum{}, err
	}

	known = dedupe(known)
	c := Curriculum{
		Title:          nc.Title,
		GroupID:        nc.GroupID,
		Domain:         domain,
		SessionMinutes: nc.SessionMinutes,
		Targets:        nc.Targets,
		Known:          known,
		Sessions:       sessions,
		Notes:          nc.Notes,
		CreatedAt:      svc.nowFunc().UTC(),
	}
	id, err := core.CreateWithSlugID(ctx, nc.Title, func(ctx context.Context, id string) error {
		c.ID = id
		return svc.repo.Create(ctx, c)
	})
	if err != nil {
		return Curriculum{}, errors.Wrap(err, "saving curriculum")
	}
	c.ID = id
	return c, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (svc *service) Get(ctx context.Context, id string) (Curriculum, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *service) List(ctx context.Context, filter QueryFilter) ([]Curriculum, error) {
	all, err := svc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Curriculum, 0, len(all))
	for _, c := range all {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	defer svc.locks.Lock(id)()
	return svc.repo.Delete(ctx, id)
}

func (svc *service) AttachLesson(ctx context.Context, id string, al AttachLesson) (Curriculum, error) {
	defer svc.locks.Lock(id)()
	c, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Curriculum{}, err
	}
	if al.Session < 1 || al.Session > len(c.Sessions) {
		return Curriculum{}, core.NewValidationError(nil, core.FieldError{Field: "session", Error: "unknown session"})
	}
	ok, err := svc.lessonRepo.Exists(ctx, al.LessonID)
	if err != nil {
		return Curriculum{}, err
	}
	if !ok {
		return Curriculum{}, core.NewValidationError(nil, core.FieldError{Field: "lesson_id", Error: "unknown lesson"})
	}
	c.Sessions[al.Session-1].LessonID = al.LessonID
	if err = svc.repo.Save(ctx, c); err != nil {
		return Curriculum{}, errors.Wrap(err, "saving curriculum")
	}
	return c, nil
}

func (svc *service) Export(ctx context.Context, id string) ([]byte, error) {
	c, err := svc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Render(c)
}
