// Package scheduler runs the periodic jobs of the engine.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
)

var NowFunc = time.Now // mockable

type (
	DigestSource interface {
		PendingOfferDigests(ctx context.Context, now time.Time, window time.Duration) ([]schedule.OfferDigest, error)
	}

	OfferNotifier interface {
		NotifyPendingOffers(digests []schedule.OfferDigest) int
	}
)

// ReminderSweep mails every invigilator with offers expiring within the configured window.
type ReminderSweep struct {
	cron     *cron.Cron
	spec     string
	window   time.Duration
	timeout  time.Duration
	source   DigestSource
	notifier OfferNotifier
	log      core.Logger
}

func NewReminderSweep(conf core.ScheduleConfig, source DigestSource, notifier OfferNotifier, log core.Logger) (*ReminderSweep, error) {
	defaults := core.DefaultScheduleConfig()
	if conf.ReminderSpec == "" {
		conf.ReminderSpec = defaults.ReminderSpec
	}
	if conf.ReminderWindow <= 0 {
		conf.ReminderWindow = defaults.ReminderWindow
	}

	cl := cronLogger{log}
	sweep := &ReminderSweep{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		spec:     conf.ReminderSpec,
		window:   conf.ReminderWindow,
		timeout:  5 * time.Minute,
		source:   source,
		notifier: notifier,
		log:      log,
	}
	if _, err := sweep.cron.AddFunc(conf.ReminderSpec, sweep.tick); err != nil {
		return nil, errors.Wrapf(err, "scheduling reminder sweep %q", conf.ReminderSpec)
	}
	return sweep, nil
}

// Run performs one sweep and returns the number of reminders queued.
func (s *ReminderSweep) Run(ctx context.Context) (int, error) {
	digests, err := s.source.PendingOfferDigests(ctx, NowFunc(), s.window)
	if err != nil {
		return 0, errors.Wrap(err, "collecting pending offers")
	}
	return s.notifier.NotifyPendingOffers(digests), nil
}

func (s *ReminderSweep) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.Run(ctx)
	if err != nil {
		s.log.Error("reminder sweep failed", err)
		return
	}
	s.log.Info("reminder sweep done", map[string]interface{}{"reminders": n})
}

func (s *ReminderSweep) Start() {
	s.log.Info("reminder sweep scheduled", map[string]interface{}{"spec": s.spec, "window": s.window.String()})
	s.cron.Start()
}

// Stop prevents new sweeps and waits for a running one, or for ctx.
func (s *ReminderSweep) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Next returns the time of the next scheduled sweep; zero until started.
func (s *ReminderSweep) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	log core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvMap(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, err, kvMap(keysAndValues))
}

func kvMap(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			m[k] = keysAndValues[i+1]
		}
	}
	return m
}
