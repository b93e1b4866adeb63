package inmemdb

import (
	"sync"

	"github.com/chekos/pedagogical-engine/core/user"
)

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

// DB is an in-memory stand-in for the users database, used in DEV (database.engine=memory) and tests.
type DB struct {
	user *userTable
}

func NewDB() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
	}
}
