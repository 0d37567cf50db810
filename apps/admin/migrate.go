package main

import (
	"context"
	"fmt"

	"github.com/trezcool/invigil/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

// migrate runs a goose command against the embedded migrations.
func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	command, rest := args[0], args[1:]
	if err := gooseRunFunc(ctx, cli.db, command, rest...); err != nil {
		return err
	}
	switch command {
	case "status", "version": // goose prints those itself
	default:
		_, _ = fmt.Fprintf(cli.out, "migrate %s: done\n", command)
	}
	return nil
}
