package main

import (
	"context"
	"errors"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/user"
)

type newUserArgs struct {
	username string
	email    string
	name     string
	role     user.Role
	password string
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(args newUserArgs) error {
	ctx := context.Background()
	uname := core.CleanString(args.username, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)
	now := core.NowFunc()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if name := core.CleanString(args.name); name != "" {
		usr.Name = name
	}
	if args.role != user.RoleNone {
		usr.Role = args.role
	}
	switch usr.Role {
	case user.RoleTeacher:
		if len(usr.Subjects) == 0 {
			usr.Subjects = append([]core.Subject(nil), core.AllSubjects...)
		}
	case user.RoleAdmin, user.RoleStudent, user.RoleNone:
		usr.Subjects = nil
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(args.password); err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
