package inmemdb

import (
	"context"
	"strconv"
	"sync"

	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/core/user"
)

type (
	// DB keeps every table in memory. Units of work run on a snapshot that replaces
	// the live tables on success, so a failed unit of work leaves no trace.
	DB struct {
		mu   sync.RWMutex // guards data
		txMu sync.Mutex   // serializes writers and units of work
		data *tables
	}

	tables struct {
		users       map[string]user.User
		venues      map[string]schedule.Venue
		sessions    map[string]schedule.VenueSession
		courses     map[string]schedule.Course
		exams       map[string]schedule.Exam
		links       map[string]schedule.VenueExam // examID|sessionID
		reports     map[string]schedule.Report
		assignments map[string]schedule.Assignment
		cardEvents  map[string]schedule.CardEvent // userID|direction|unix nano
		timetable   map[string][]timetable.Row    // lecturer -> rows
	}
)

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() *tables {
	return &tables{
		users:       make(map[string]user.User),
		venues:      make(map[string]schedule.Venue),
		sessions:    make(map[string]schedule.VenueSession),
		courses:     make(map[string]schedule.Course),
		exams:       make(map[string]schedule.Exam),
		links:       make(map[string]schedule.VenueExam),
		reports:     make(map[string]schedule.Report),
		assignments: make(map[string]schedule.Assignment),
		cardEvents:  make(map[string]schedule.CardEvent),
		timetable:   make(map[string][]timetable.Row),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.venues {
		c.venues[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.exams {
		c.exams[k] = v
	}
	for k, v := range t.links {
		c.links[k] = v
	}
	for k, v := range t.reports {
		c.reports[k] = v
	}
	for k, v := range t.assignments {
		c.assignments[k] = v
	}
	for k, v := range t.cardEvents {
		c.cardEvents[k] = v
	}
	for k, v := range t.timetable {
		c.timetable[k] = v
	}
	return c
}

// Flush drops every row; used between tests.
func (db *DB) Flush() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = newTables()
}

// base gives repositories access to either the live tables or a unit-of-work snapshot.
type base struct {
	db *DB
	tx *tables
}

func (b base) read(fn func(t *tables) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()
	return fn(b.db.data)
}

func (b base) write(fn func(t *tables) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.db.txMu.Lock()
	defer b.db.txMu.Unlock()
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	return fn(b.db.data)
}

// withinTx runs fn on a snapshot and publishes it when fn succeeds.
// Nested calls join the running unit of work.
func (b base) withinTx(ctx context.Context, fn func(tx *tables) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.db.txMu.Lock()
	defer b.db.txMu.Unlock()

	b.db.mu.RLock()
	snap := b.db.data.clone()
	b.db.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}

	b.db.mu.Lock()
	b.db.data = snap
	b.db.mu.Unlock()
	return nil
}

func linkKey(examID, sessionID string) string { return examID + "|" + sessionID }

func eventKey(ev schedule.CardEvent) string {
	return ev.UserID + "|" + string(ev.Direction) + "|" + strconv.FormatInt(ev.At.UnixNano(), 10)
}
