package main

import (
	"context"
	"fmt"

	"github.com/trezcool/invigil/core/user"
)

func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) error {
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.users.Create(ctx, nu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "created user %s (%s)\n", usr.Name, usr.ID)
	return nil
}
