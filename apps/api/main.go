package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/invigil/apps/api/di/dig"
	echoapi "github.com/trezcool/invigil/apps/api/echo"
	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/services/scheduler"
)

type app struct {
	dig.In

	Conf     *core.Config
	Logger   core.Logger
	DBLogger core.Logger `name:"dbLogger"`
	DB       *sqlx.DB
	Sweep    *scheduler.ReminderSweep
	Server   *echoapi.Server
}

func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(a app) {
	a.Logger.Info(fmt.Sprintf("Application initializing : version %q", a.Conf.Build))
	defer func() {
		if err := a.DB.Close(); err != nil {
			a.DBLogger.Error("Failed to close", err)
		}
	}()
	defer a.Logger.Info("Application stopped")

	startDebugServer(a)

	a.Sweep.Start()
	go func() {
		a.Server.Start()
	}()

	select {
	case err := <-a.Server.Errors():
		a.Logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-a.Server.ShutdownSignal():
		a.Logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}
	shutdown(a)
}

// startDebugServer serves /debug/pprof (net/http/pprof) and /debug/vars (expvar).
func startDebugServer(a app) {
	expvar.NewString("build").Set(a.Conf.Build)
	expvar.NewString("env").Set(a.Conf.Env)
	expvar.Publish("reminder_next_run", expvar.Func(func() interface{} {
		return a.Sweep.Next().Format(time.RFC3339)
	}))

	go func() {
		if err := http.ListenAndServe(a.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			a.Logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}

// shutdown gives in-flight requests and a running sweep until the shutdown timeout.
func shutdown(a app) {
	ctx, cancel := context.WithTimeout(context.Background(), a.Conf.Server.ShutdownTimeout)
	defer cancel()

	a.Sweep.Stop(ctx)

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = a.Server.Close(); err != nil {
			a.Logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}
