package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/services/logger"
	"github.com/trezcool/invigil/storage/database/inmem"
)

// Env wires the services on top of a fresh in-memory database.
type Env struct {
	DB        *inmemdb.DB
	UserRepo  user.Repository
	Store     schedule.Store
	Timetable *timetable.Service
	Users     *user.Service
	Schedule  *schedule.Service
	Conf      *core.Config
	Log       core.Logger
}

func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,
		AppName:  "Invigil",
		Schedule: core.DefaultScheduleConfig(),
	}
}

// NewLogger returns a disabled rollbar logger writing to io.Discard.
func NewLogger(conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

func Setup(t *testing.T) *Env {
	t.Helper()
	conf := NewConfig()
	logger := NewLogger(conf)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	store := inmemdb.NewScheduleStore(db)

	usrSvc := user.NewService(usrRepo)
	ttSvc := timetable.NewService(inmemdb.NewTimetableRepository(db), usrSvc, conf.Schedule, logger)
	return &Env{
		DB:        db,
		UserRepo:  usrRepo,
		Store:     store,
		Timetable: ttSvc,
		Users:     usrSvc,
		Schedule:  schedule.NewService(store, usrSvc, ttSvc, conf.Schedule, logger),
		Conf:      conf,
		Log:       logger,
	}
}

func CreateUser(t *testing.T, repo user.Repository, name, email, cardID string, roles []string, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Email:     email,
		CardID:    cardID,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateInvigilator(t *testing.T, repo user.Repository, name, cardID string) user.User {
	t.Helper()
	return CreateUser(t, repo, name, "", cardID, []string{user.RoleInvigilator}, true)
}

func CreateVenue(t *testing.T, store schedule.Store, id string, capacity int) schedule.Venue {
	t.Helper()
	v, err := store.CreateVenue(context.Background(), schedule.Venue{ID: id, Floor: "1", Capacity: capacity})
	if err != nil {
		t.Fatalf("CreateVenue() failed: %v", err)
	}
	return v
}

// Account returns the ledger counters of a user.
func Account(t *testing.T, repo user.Repository, id string) (cumulative, pending float64) {
	t.Helper()
	usr, err := repo.GetUser(context.Background(), user.GetFilter{ID: id})
	if err != nil {
		t.Fatalf("Account() failed: %v", err)
	}
	return usr.CumulativeHours, usr.PendingHours
}
