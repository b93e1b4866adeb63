package files

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/group"
)

const groupsDir = "groups"

type groupRepository struct {
	store *Store
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(store *Store) group.Repository {
	return &groupRepository{store: store}
}

func groupPath(id string) string {
	return path.Join(groupsDir, id+".md")
}

func (repo *groupRepository) Exists(_ context.Context, id string) (bool, error) {
	return validID(id) && repo.store.Exists(groupPath(id)), nil
}

func (repo *groupRepository) Get(_ context.Context, id string) (group.Profile, error) {
	if !validID(id) {
		return group.Profile{}, group.ErrNotFound
	}
	var p group.Profile
	body, err := repo.store.ReadRecord(groupPath(id), &p)
	if err != nil {
		if IsNotExist(err) {
			return group.Profile{}, group.ErrNotFound
		}
		return group.Profile{}, err
	}
	group.UnmarshalBody(body, &p)
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (repo *groupRepository) List(ctx context.Context) ([]group.Profile, error) {
	ids, err := repo.store.List(groupsDir, ".md")
	if err != nil {
		return nil, err
	}
	groups := make([]group.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, p)
	}
	return groups, nil
}

func (repo *groupRepository) Save(_ context.Context, p group.Profile) error {
	if !validID(p.ID) {
		return errors.Wrap(ErrInvalidPath, p.ID)
	}
	return repo.store.WriteRecord(groupPath(p.ID), p, group.MarshalBody(p))
}

func (repo *groupRepository) Create(_ context.Context, p group.Profile) error {
	if !validID(p.ID) {
		return errors.Wrap(ErrInvalidPath, p.ID)
	}
	return createErr(repo.store.CreateRecord(groupPath(p.ID), p, group.MarshalBody(p)))
}

func (repo *groupRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return group.ErrNotFound
	}
	if err := repo.store.Remove(groupPath(id)); err != nil {
		if IsNotExist(err) {
			return group.ErrNotFound
		}
		return err
	}
	return nil
}
