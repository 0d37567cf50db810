package main

import (
	"context"
	"fmt"

	"github.com/trezcool/invigil/apps/api/echo"
)

func (cli *commandLine) token(ctx context.Context, email string) error {
	usr, err := cli.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := echoapi.GenerateToken(cli.conf, usr)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}
