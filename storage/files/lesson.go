package files

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/lesson"
)

const lessonsDir = "lessons"

type lessonRepository struct {
	store *Store
}

var _ lesson.Repository = (*lessonRepository)(nil)

// NewLessonRepository stores plans in their canonical markdown form.
func NewLessonRepository(store *Store) lesson.Repository {
	return &lessonRepository{store: store}
}

func lessonPath(id string) string {
	return path.Join(lessonsDir, id+".md")
}

func (repo *lessonRepository) Exists(_ context.Context, id string) (bool, error) {
	return validID(id) && repo.store.Exists(lessonPath(id)), nil
}

func (repo *lessonRepository) Get(_ context.Context, id string) (lesson.Plan, error) {
	if !validID(id) {
		return lesson.Plan{}, lesson.ErrNotFound
	}
	data, err := repo.store.Read(lessonPath(id))
	if err != nil {
		if IsNotExist(err) {
			return lesson.Plan{}, lesson.ErrNotFound
		}
		return lesson.Plan{}, err
	}
	p, _, err := lesson.Parse(data)
	if err != nil {
		return lesson.Plan{}, errors.Wrapf(err, "decoding lesson %s", id)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (repo *lessonRepository) List(ctx context.Context) ([]lesson.Plan, error) {
	ids, err := repo.store.List(lessonsDir, ".md")
	if err != nil {
		return nil, err
	}
	plans := make([]lesson.Plan, 0, len(ids))
	for _, id := range ids {
		p, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (repo *lessonRepository) Save(_ context.Context, p lesson.Plan) error {
	if !validID(p.ID) {
		return errors.Wrap(ErrInvalidPath, p.ID)
	}
	data, err := lesson.Render(p)
	if err != nil {
		return errors.Wrap(err, "encoding lesson")
	}
	return repo.store.Write(lessonPath(p.ID), data)
}

func (repo *lessonRepository) Create(_ context.Context, p lesson.Plan) error {
	if !validID(p.ID) {
		return errors.Wrap(ErrInvalidPath, p.ID)
	}
	data, err := lesson.Render(p)
	if err != nil {
		return errors.Wrap(err, "encoding lesson")
	}
	return createErr(repo.store.Create(lessonPath(p.ID), data))
}

func (repo *lessonRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return lesson.ErrNotFound
	}
	if err := repo.store.Remove(lessonPath(id)); err != nil {
		if IsNotExist(err) {
			return lesson.ErrNotFound
		}
		return err
	}
	return nil
}
