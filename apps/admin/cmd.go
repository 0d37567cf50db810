package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/services/scheduler"
)

// actor recorded on the changes made from the command line
const cliActor = "admin-cli"

var errHelp = errors.New("help provided")

type commandLine struct {
	db        *sql.DB
	conf      *core.Config
	logger    core.Logger
	validate  *validator.Validate
	users     *user.Service
	schedule  *schedule.Service
	timetable *timetable.Service
	notifier  scheduler.OfferNotifier
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                         - run a goose migration command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -name NAME -roles ROLES [-email EMAIL] [-card CARD] [-department DEPT]")
	_, _ = fmt.Fprintln(cli.out, "                                                 - create a user; roles: admin,invigilator,lecturer")
	_, _ = fmt.Fprintln(cli.out, "  import-exams -file FILE.xlsx [-tz ZONE]        - schedule the exams of a spreadsheet")
	_, _ = fmt.Fprintln(cli.out, "  import-timetable FILE...                       - import lecturer timetables (extracted text)")
	_, _ = fmt.Fprintln(cli.out, "  sweep [-window DURATION] [-dry-run]            - send the pending offer reminders now")
	_, _ = fmt.Fprintln(cli.out, "  token -email EMAIL                             - print an API token for a user")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "adduser":
		fs := cli.newFlagSet("adduser")
		name := fs.String("name", "", "The user's full name.")
		email := fs.String("email", "", "The user's email.")
		card := fs.String("card", "", "The user's attendance card id.")
		dept := fs.String("department", "", "The user's department.")
		roles := fs.String("roles", "", "Comma separated roles: admin, invigilator, lecturer.")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *name == "" || *roles == "" {
			fs.Usage()
			return errHelp
		}
		return cli.addUser(ctx, user.NewUser{
			Name:       *name,
			Email:      *email,
			CardID:     *card,
			Department: *dept,
			Roles:      parseRoles(*roles),
		})

	case "import-exams":
		fs := cli.newFlagSet("import-exams")
		file := fs.String("file", "", "The xlsx workbook to import.")
		tz := fs.String("tz", "UTC", "The time zone of the dates and times of the sheet.")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *file == "" {
			fs.Usage()
			return errHelp
		}
		return cli.importExams(ctx, *file, *tz)

	case "import-timetable":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.importTimetables(ctx, args[2:])

	case "sweep":
		fs := cli.newFlagSet("sweep")
		window := fs.Duration("window", cli.conf.Schedule.ReminderWindow, "Remind offers expiring within this duration.")
		dryRun := fs.Bool("dry-run", false, "Print the reminders instead of sending them.")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.sweep(ctx, *window, *dryRun)

	case "token":
		fs := cli.newFlagSet("token")
		email := fs.String("email", "", "The user's email.")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *email == "" {
			fs.Usage()
			return errHelp
		}
		return cli.token(ctx, *email)

	default:
		cli.printUsage()
		return errHelp
	}
}

// parseRoles accepts "admin,invigilator" as well as "admin:,invigilator:".
func parseRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if !strings.HasSuffix(r, ":") {
			r += ":"
		}
		roles = append(roles, r)
	}
	return roles
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
