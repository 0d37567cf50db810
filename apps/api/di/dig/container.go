package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/invigil/apps/api/echo"
	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/core/user"
	emailsvc "github.com/trezcool/invigil/services/email"
	logsvc "github.com/trezcool/invigil/services/logger"
	"github.com/trezcool/invigil/services/scheduler"
	"github.com/trezcool/invigil/storage/database"
	sqlxrepos "github.com/trezcool/invigil/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf         *core.Config
	Logger       core.Logger
	UserSvc      *user.Service
	ScheduleSvc  *schedule.Service
	TimetableSvc *timetable.Service
	Validate     *validator.Validate
	Translator   ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	schedule.InitValidators(validate)
	return validate
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, log.New(os.Stdout, "", 0), logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTimetableService(repo timetable.Repository, users *user.Service, conf *core.Config, logger core.Logger) *timetable.Service {
	return timetable.NewService(repo, users, conf.Schedule, logger)
}

func newScheduleService(
	store schedule.Store,
	users *user.Service,
	lecturers *timetable.Service,
	conf *core.Config,
	logger core.Logger,
) *schedule.Service {
	return schedule.NewService(store, users, lecturers, conf.Schedule, logger)
}

func newReminderSweep(conf *core.Config, svc *schedule.Service, notifier *emailsvc.Notifier, logger core.Logger) (*scheduler.ReminderSweep, error) {
	return scheduler.NewReminderSweep(conf.Schedule, svc, notifier, logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:         p.Conf,
		Logger:       p.Logger,
		UserSvc:      p.UserSvc,
		ScheduleSvc:  p.ScheduleSvc,
		TimetableSvc: p.TimetableSvc,
		Validate:     p.Validate,
		Translator:   p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewScheduleStore, dig.As(new(schedule.Store))))
	must(c.Provide(sqlxrepos.NewTimetableRepository, dig.As(new(timetable.Repository))))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newEmailService))
	must(c.Provide(emailsvc.NewNotifier))
	must(c.Provide(user.NewService))
	must(c.Provide(newTimetableService))
	must(c.Provide(newScheduleService))
	must(c.Provide(newReminderSweep))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
