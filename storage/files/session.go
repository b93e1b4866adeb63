package files

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/session"
)

const sessionsDir = "sessions"

type sessionRepository struct {
	store *Store
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(store *Store) session.Repository {
	return &sessionRepository{store: store}
}

func sessionPath(id string) string {
	return path.Join(sessionsDir, id+".json")
}

func (repo *sessionRepository) Get(_ context.Context, id string) (session.Session, error) {
	if !validID(id) {
		return session.Session{}, session.ErrNotFound
	}
	var s session.Session
	if err := repo.store.ReadJSON(sessionPath(id), &s); err != nil {
		if IsNotExist(err) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}
	return s, nil
}

func (repo *sessionRepository) List(ctx context.Context) ([]session.Session, error) {
	ids, err := repo.store.List(sessionsDir, ".json")
	if err != nil {
		return nil, err
	}
	sessions := make([]session.Session, 0, len(ids))
	for _, id := range ids {
		s, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (repo *sessionRepository) Save(_ context.Context, s session.Session) error {
	if !validID(s.ID) {
		return errors.Wrap(ErrInvalidPath, s.ID)
	}
	return repo.store.WriteJSON(sessionPath(s.ID), s)
}

func (repo *sessionRepository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return session.ErrNotFound
	}
	if err := repo.store.Remove(sessionPath(id)); err != nil {
		if IsNotExist(err) {
			return session.ErrNotFound
		}
		return err
	}
	return nil
}
