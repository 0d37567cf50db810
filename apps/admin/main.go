package main

import (
	"log"
	"os"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/services/email"
	"github.com/trezcool/invigil/services/logger"
	"github.com/trezcool/invigil/storage/database"
	"github.com/trezcool/invigil/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	std := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()
	if err = db.Ping(); err != nil {
		logger.Fatal("pinging database", err)
	}

	// set up services
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	schedule.InitValidators(validate)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	ttSvc := timetable.NewService(sqlxrepos.NewTimetableRepository(db), usrSvc, conf.Schedule, logger)
	schedSvc := schedule.NewService(sqlxrepos.NewScheduleStore(db), usrSvc, ttSvc, conf.Schedule, logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "", 0), logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		db:        db.DB,
		conf:      conf,
		logger:    logger,
		validate:  validate,
		users:     usrSvc,
		schedule:  schedSvc,
		timetable: ttSvc,
		notifier:  emailsvc.NewNotifier(mailSvc, logger),
		out:       os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
