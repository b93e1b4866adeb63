package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/user"
	logsvc "github.com/chekos/pedagogical-engine/services/logger"
)

// NewConfig returns a TEST config whose data directory is a fresh temp dir.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	return core.NewTestConfig(t.TempDir())
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewDiscardLogger(conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}
