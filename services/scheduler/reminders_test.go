package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/tests"
)

type sourceMock struct {
	digests []schedule.OfferDigest
	err     error
	now     time.Time
	window  time.Duration
}

func (m *sourceMock) PendingOfferDigests(_ context.Context, now time.Time, window time.Duration) ([]schedule.OfferDigest, error) {
	m.now, m.window = now, window
	return m.digests, m.err
}

type notifierMock struct {
	got []schedule.OfferDigest
}

func (m *notifierMock) NotifyPendingOffers(digests []schedule.OfferDigest) int {
	m.got = digests
	return len(digests)
}

func TestReminderSweep_Run(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	oldNow := NowFunc
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = oldNow })

	conf := testutil.NewConfig()
	conf.Schedule.ReminderWindow = 24 * time.Hour
	logger := testutil.NewLogger(conf)

	t.Run("notifies every digest", func(t *testing.T) {
		src := &sourceMock{digests: []schedule.OfferDigest{{InvigilatorID: "u1"}, {InvigilatorID: "u2"}}}
		ntf := &notifierMock{}
		sweep, err := NewReminderSweep(conf.Schedule, src, ntf, logger)
		require.NoError(t, err)

		n, err := sweep.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, now, src.now)
		assert.Equal(t, 24*time.Hour, src.window)
		assert.Len(t, ntf.got, 2)
	})

	t.Run("source failure", func(t *testing.T) {
		src := &sourceMock{err: errors.New("db down")}
		ntf := &notifierMock{}
		sweep, err := NewReminderSweep(conf.Schedule, src, ntf, logger)
		require.NoError(t, err)

		_, err = sweep.Run(context.Background())
		assert.EqualError(t, err, "collecting pending offers: db down")
		assert.Nil(t, ntf.got)
	})
}

func TestNewReminderSweep(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily", spec: "0 8 * * *"},
		{name: "default when empty", spec: ""},
		{name: "descriptor", spec: "@hourly"},
		{name: "invalid", spec: "every morning", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc := core.DefaultScheduleConfig()
			sc.ReminderSpec = tc.spec
			sweep, err := NewReminderSweep(sc, &sourceMock{}, &notifierMock{}, logger)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			sweep.Start()
			defer sweep.Stop(context.Background())
			assert.True(t, sweep.Next().After(time.Now()))
		})
	}
}

func TestKVMap(t *testing.T) {
	assert.Equal(t,
		map[string]interface{}{"now": 1, "entry": 2},
		kvMap([]interface{}{"now", 1, "entry", 2, "dangling"}),
	)
}
