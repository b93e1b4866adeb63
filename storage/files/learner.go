package files

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/learner"
)

const learnersDir = "learners"

type learnerRepository struct {
	store *Store
}

var _ learner.Repository = (*learnerRepository)(nil)

func NewLearnerRepository(store *Store) learner.Repository {
	return &learnerRepository{store: store}
}

func learnerPath(id string) string {
	return path.Join(learnersDir, id+".md")
}

func validID(id string) bool {
	return core.SlugRegex.MatchString(id)
}

func (repo *learnerRepository) Exists(_ context.Context, id string) (bool, error) {
	return validID(id) && repo.store.Exists(learnerPath(id)), nil
}

func (repo *learnerRepository) Get(_ context.Context, id string) (learner.Profile, error) {
	if !validID(id) {
		return learner.Profile{}, learner.ErrNotFound
	}
	var p learner.Profile
	body, err := repo.store.ReadRecord(learnerPath(id), &p)
	if err != nil {
		if IsNotExist(err) {
			return learner.Profile{}, learner.ErrNotFound
		}
		return learner.Profile{}, err
	}
	if err = learner.UnmarshalBody(body, &p); err != nil {
		return learner.Profile{}, errors.Wrapf(err, "decoding learner %s", id)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (repo *learnerRepository) List(ctx context.Context) ([]learner.Profile, error) {
	ids, err := repo.store.List(learnersDir, ".md")
	if err != nil {
		return nil, err
	}
	profiles := make([]learner.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (repo *learnerRepository) Save(_ context.Context, p learner.Profile) error {
	if !validID(p.ID) {
		return errors.Wrap(ErrInvalidPath, p.ID)
	}
	return repo.store.WriteRecord(learnerPath(p.ID), p, learner.MarshalBody(p))
}

// Create saves a new profile, returning core.ErrIDTaken when its ID is in use.
func (repo *learnerRepository) Create(_ context.Context, p learner.Profile) error {
	if !validID(p.ID) {
		return errors.Wrap(ErrInvalidPath, p.ID)
	}
	return createErr(repo.store.CreateRecord(learnerPath(p.ID), p, learner.MarshalBody(p)))
}

// createErr maps an existing file to core.ErrIDTaken.
func createErr(err error) error {
	if IsExist(err) {
		return core.ErrIDTaken
	}
	return err
}

func (repo *learnerRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return learner.ErrNotFound
	}
	if err := repo.store.Remove(learnerPath(id)); err != nil {
		if IsNotExist(err) {
			return learner.ErrNotFound
		}
		return err
	}
	return nil
}
