package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/user"
)

var roleFlags = map[string][]string{
	"admin":     {user.RoleAdmin},
	"educator":  {user.RoleEducator},
	"assistant": {user.RoleAssistant},
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd, role string) error {
	roles, ok := roleFlags[role]
	if !ok {
		return errors.Errorf("unknown role %q", role)
	}
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	if err != nil {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email); err != nil {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Name:      name,
			Username:  uname,
			Email:     email,
			Roles:     roles,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created user %s (%s)\n", usr.Username, usr.ID)
		return nil
	}

	if name != "" {
		usr.Name = name
	}
	usr.Email = email
	usr.Roles = roles
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	active := true
	if _, err = cli.usrRepo.UpdateUser(ctx, usr, &active); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated user %s (%s)\n", usr.Username, usr.ID)
	return nil
}
