package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alyxedu/alyx/core/user"
)

var demoAccounts = []newUserArgs{
	{email: "teacher@example.com", name: "Ms. Johnson", role: user.RoleTeacher},
	{email: "student@example.com", name: "Alex Smith", role: user.RoleStudent},
}

// seed creates the demo accounts that do not exist yet, all sharing pwd.
func (cli *commandLine) seed(pwd string) error {
	ctx := context.Background()
	for _, acc := range demoAccounts {
		_, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: acc.email})
		if err == nil {
			cli.logger.Info(fmt.Sprintf("%s already exists", acc.email))
			continue
		}
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}

		acc.password = pwd
		if err = cli.addUser(acc); err != nil {
			return err
		}
		cli.logger.Info(fmt.Sprintf("%s created", acc.email), map[string]interface{}{"role": string(acc.role)})
	}
	return nil
}

