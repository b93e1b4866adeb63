package files

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/curriculum"
)

const curriculaDir = "curricula"

type curriculumRepository struct {
	store *Store
}

var _ curriculum.Repository = (*curriculumRepository)(nil)

// NewCurriculumRepository stores curricula in their canonical markdown form.
func NewCurriculumRepository(store *Store) curriculum.Repository {
	return &curriculumRepository{store: store}
}

func curriculumPath(id string) string {
	return path.Join(curriculaDir, id+".md")
}

func (repo *curriculumRepository) Exists(_ context.Context, id string) (bool, error) {
	return validID(id) && repo.store.Exists(curriculumPath(id)), nil
}

func (repo *curriculumRepository) Get(_ context.Context, id string) (curriculum.Curriculum, error) {
	if !validID(id) {
		return curriculum.Curriculum{}, curriculum.ErrNotFound
	}
	data, err := repo.store.Read(curriculumPath(id))
	if err != nil {
		if IsNotExist(err) {
			return curriculum.Curriculum{}, curriculum.ErrNotFound
		}
		return curriculum.Curriculum{}, err
	}
	c, err := curriculum.Parse(data)
	if err != nil {
		return curriculum.Curriculum{}, errors.Wrapf(err, "decoding curriculum %s", id)
	}
	if c.ID == "" {
		c.ID = id
	}
	return c, nil
}

func (repo *curriculumRepository) List(ctx context.Context) ([]curriculum.Curriculum, error) {
	ids, err := repo.store.List(curriculaDir, ".md")
	if err != nil {
		return nil, err
	}
	curricula := make([]curriculum.Curriculum, 0, len(ids))
	for _, id := range ids {
		c, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		curricula = append(curricula, c)
	}
	return curricula, nil
}

func (repo *curriculumRepository) Save(_ context.Context, c curriculum.Curriculum) error {
	if !validID(c.ID) {
		return errors.Wrap(ErrInvalidPath, c.ID)
	}
	data, err := curriculum.Render(c)
	if err != nil {
		return errors.Wrap(err, "encoding curriculum")
	}
	return repo.store.Write(curriculumPath(c.ID), data)
}

func (repo *curriculumRepository) Create(_ context.Context, c curriculum.Curriculum) error {
	if !validID(c.ID) {
		return errors.Wrap(ErrInvalidPath, c.ID)
	}
	data, err := curriculum.Render(c)
	if err != nil {
		return errors.Wrap(err, "encoding curriculum")
	}
	return createErr(repo.store.Create(curriculumPath(c.ID), data))
}

func (repo *curriculumRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return curriculum.ErrNotFound
	}
	if err := repo.store.Remove(curriculumPath(id)); err != nil {
		if IsNotExist(err) {
			return curriculum.ErrNotFound
		}
		return err
	}
	return nil
}
