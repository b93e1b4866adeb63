package core

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrIDTaken is returned by repository Create methods when a record with the same ID exists.
var ErrIDTaken = errors.New("record id already taken")

const maxIDAttempts = 1000

// CreateWithSlugID creates a record named name through create, trying the slug of name,
// then slug-2, slug-3... while create returns ErrIDTaken. Names without any slug-able
// character get a random ID. It returns the ID the record was created with.
func CreateWithSlugID(ctx context.Context, name string, create func(ctx context.Context, id string) error) (string, error) {
	base := Slugify(name)
	for n := 1; n <= maxIDAttempts; n++ {
		var id string
		switch {
		case base == "":
			id = uuid.New().String()
		case n == 1:
			id = base
		default:
			id = base + "-" + strconv.Itoa(n)
		}
		err := create(ctx, id)
		if errors.Cause(err) == ErrIDTaken {
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return "", errors.Wrapf(ErrIDTaken, "no free id for %q", name)
}

// KeyedMutex serializes work per key, e.g. read-modify-write cycles on one record.
// The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock locks key and returns its unlock func.
func (km *KeyedMutex) Lock(key string) (unlock func()) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*keyedLock)
	}
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		km.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
