package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/ledger"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
)

type scheduleStore struct {
	base
}

var _ schedule.Store = (*scheduleStore)(nil) // interface compliance check

func NewScheduleStore(db *DB) *scheduleStore {
	return &scheduleStore{base: base{db: db}}
}

func (s *scheduleStore) WithinTx(ctx context.Context, fn func(repo schedule.Repository) error) error {
	return s.withinTx(ctx, func(tx *tables) error {
		return fn(&scheduleStore{base: base{db: s.db, tx: tx}})
	})
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// Venues

func (s *scheduleStore) CreateVenue(ctx context.Context, v schedule.Venue) (schedule.Venue, error) {
	err := s.write(func(t *tables) error {
		v.ID = newID(v.ID)
		t.venues[v.ID] = v
		return nil
	})
	return v, err
}

func (s *scheduleStore) GetVenue(ctx context.Context, id string) (schedule.Venue, error) {
	var v schedule.Venue
	err := s.read(func(t *tables) error {
		var ok bool
		if v, ok = t.venues[id]; !ok {
			return core.NewNotFoundError("venue", id)
		}
		return nil
	})
	return v, err
}

// LockVenue is GetVenue: units of work on the in-memory database are already serialized.
func (s *scheduleStore) LockVenue(ctx context.Context, id string) (schedule.Venue, error) {
	return s.GetVenue(ctx, id)
}

func (s *scheduleStore) QueryVenues(ctx context.Context) ([]schedule.Venue, error) {
	var venues []schedule.Venue
	err := s.read(func(t *tables) error {
		venues = make([]schedule.Venue, 0, len(t.venues))
		for _, v := range t.venues {
			venues = append(venues, v)
		}
		return nil
	})
	sort.Slice(venues, func(i, j int) bool { return venues[i].ID < venues[j].ID })
	return venues, err
}

// Sessions

func (s *scheduleStore) GetSession(ctx context.Context, id string) (schedule.VenueSession, error) {
	var sess schedule.VenueSession
	err := s.read(func(t *tables) error {
		var ok bool
		if sess, ok = t.sessions[id]; !ok {
			return core.NewNotFoundError("venue session", id)
		}
		return nil
	})
	return sess, err
}

func (s *scheduleStore) FindSession(ctx context.Context, venueID string, start, end time.Time) (schedule.VenueSession, error) {
	var found schedule.VenueSession
	err := s.read(func(t *tables) error {
		for _, sess := range t.sessions {
			if sess.VenueID == venueID && sess.StartAt.Equal(start) && sess.EndAt.Equal(end) {
				found = sess
				return nil
			}
		}
		return core.NewNotFoundError("venue session", venueID)
	})
	return found, err
}

func (s *scheduleStore) QueryOverlappingSessions(ctx context.Context, venueID string, start, end time.Time) ([]schedule.VenueSession, error) {
	var sessions []schedule.VenueSession
	err := s.read(func(t *tables) error {
		for _, sess := range t.sessions {
			if sess.VenueID == venueID && sess.StartAt.Before(end) && start.Before(sess.EndAt) {
				sessions = append(sessions, sess)
			}
		}
		return nil
	})
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartAt.Before(sessions[j].StartAt) })
	return sessions, err
}

func (s *scheduleStore) CreateSession(ctx context.Context, sess schedule.VenueSession) (schedule.VenueSession, error) {
	err := s.write(func(t *tables) error {
		if _, ok := t.venues[sess.VenueID]; !ok {
			return core.NewNotFoundError("venue", sess.VenueID)
		}
		for _, other := range t.sessions {
			if other.VenueID == sess.VenueID && other.StartAt.Before(sess.EndAt) && sess.StartAt.Before(other.EndAt) {
				return core.NewConflictError(core.ErrDoubleBooked, "venue", sess.VenueID)
			}
		}
		sess.ID = newID(sess.ID)
		t.sessions[sess.ID] = sess
		return nil
	})
	return sess, err
}

func (s *scheduleStore) DeleteSession(ctx context.Context, id string) error {
	return s.write(func(t *tables) error {
		delete(t.sessions, id)
		return nil
	})
}

// Courses & exams

func (s *scheduleStore) CreateCourse(ctx context.Context, c schedule.Course) (schedule.Course, error) {
	err := s.write(func(t *tables) error {
		c.ID = newID(c.ID)
		t.courses[c.ID] = c
		return nil
	})
	return c, err
}

func (s *scheduleStore) GetCourse(ctx context.Context, id string) (schedule.Course, error) {
	var c schedule.Course
	err := s.read(func(t *tables) error {
		var ok bool
		if c, ok = t.courses[id]; !ok {
			return core.NewNotFoundError("course", id)
		}
		return nil
	})
	return c, err
}

func (s *scheduleStore) FindCourse(ctx context.Context, key schedule.CourseKey) (schedule.Course, error) {
	key = key.Clean()
	var found schedule.Course
	err := s.read(func(t *tables) error {
		for _, c := range t.courses {
			if c.CourseKey == key {
				found = c
				return nil
			}
		}
		return core.NewNotFoundError("course", key.String())
	})
	return found, err
}

func (s *scheduleStore) UpdateCourse(ctx context.Context, c schedule.Course) (schedule.Course, error) {
	err := s.write(func(t *tables) error {
		if _, ok := t.courses[c.ID]; !ok {
			return core.NewNotFoundError("course", c.ID)
		}
		t.courses[c.ID] = c
		return nil
	})
	return c, err
}

func (s *scheduleStore) DeleteCourse(ctx context.Context, id string) error {
	return s.write(func(t *tables) error {
		if _, ok := t.courses[id]; !ok {
			return core.NewNotFoundError("course", id)
		}
		delete(t.courses, id)
		return nil
	})
}

func (s *scheduleStore) CreateExam(ctx context.Context, e schedule.Exam) (schedule.Exam, error) {
	err := s.write(func(t *tables) error {
		e.ID = newID(e.ID)
		t.exams[e.ID] = e
		return nil
	})
	return e, err
}

func (s *scheduleStore) GetExam(ctx context.Context, id string) (schedule.Exam, error) {
	var e schedule.Exam
	err := s.read(func(t *tables) error {
		var ok bool
		if e, ok = t.exams[id]; !ok {
			return core.NewNotFoundError("exam", id)
		}
		return nil
	})
	return e, err
}

func (s *scheduleStore) QueryExams(ctx context.Context, filter *schedule.ExamFilter) ([]schedule.Exam, error) {
	var exams []schedule.Exam
	err := s.read(func(t *tables) error {
		exams = make([]schedule.Exam, 0, len(t.exams))
		for _, e := range t.exams {
			if matchesExam(e, filter) {
				exams = append(exams, e)
			}
		}
		return nil
	})
	sort.Slice(exams, func(i, j int) bool {
		if !exams[i].StartAt.Equal(exams[j].StartAt) {
			return exams[i].StartAt.Before(exams[j].StartAt)
		}
		return exams[i].ID < exams[j].ID
	})
	return exams, err
}

func matchesExam(e schedule.Exam, filter *schedule.ExamFilter) bool {
	if filter == nil {
		return true
	}
	if filter.CourseID != "" && e.CourseID != filter.CourseID {
		return false
	}
	if filter.Active != nil && e.Active != *filter.Active {
		return false
	}
	if !filter.From.IsZero() && e.StartAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && e.StartAt.After(filter.To) {
		return false
	}
	return true
}

func (s *scheduleStore) UpdateExam(ctx context.Context, e schedule.Exam) (schedule.Exam, error) {
	err := s.write(func(t *tables) error {
		if _, ok := t.exams[e.ID]; !ok {
			return core.NewNotFoundError("exam", e.ID)
		}
		t.exams[e.ID] = e
		return nil
	})
	return e, err
}

func (s *scheduleStore) DeleteExam(ctx context.Context, id string) error {
	return s.write(func(t *tables) error {
		if _, ok := t.exams[id]; !ok {
			return core.NewNotFoundError("exam", id)
		}
		delete(t.exams, id)
		return nil
	})
}

// Links

func (s *scheduleStore) CreateVenueExam(ctx context.Context, ve schedule.VenueExam) error {
	return s.write(func(t *tables) error {
		t.links[linkKey(ve.ExamID, ve.SessionID)] = ve
		return nil
	})
}

func (s *scheduleStore) QueryVenueExams(ctx context.Context, examID, sessionID string) ([]schedule.VenueExam, error) {
	var links []schedule.VenueExam
	err := s.read(func(t *tables) error {
		for _, l := range t.links {
			if (examID == "" || l.ExamID == examID) && (sessionID == "" || l.SessionID == sessionID) {
				links = append(links, l)
			}
		}
		return nil
	})
	sort.Slice(links, func(i, j int) bool { return linkKey(links[i].ExamID, links[i].SessionID) < linkKey(links[j].ExamID, links[j].SessionID) })
	return links, err
}

func (s *scheduleStore) DeleteVenueExams(ctx context.Context, examID string) error {
	return s.write(func(t *tables) error {
		for k, l := range t.links {
			if l.ExamID == examID {
				delete(t.links, k)
			}
		}
		return nil
	})
}

// Reports

func (s *scheduleStore) CreateReport(ctx context.Context, r schedule.Report) (schedule.Report, error) {
	err := s.write(func(t *tables) error {
		r.ID = newID(r.ID)
		t.reports[r.ID] = r
		return nil
	})
	return r, err
}

func (s *scheduleStore) GetReport(ctx context.Context, id string) (schedule.Report, error) {
	var r schedule.Report
	err := s.read(func(t *tables) error {
		var ok bool
		if r, ok = t.reports[id]; !ok {
			return core.NewNotFoundError("report", id)
		}
		return nil
	})
	return r, err
}

func (s *scheduleStore) QueryReports(ctx context.Context, examID string) ([]schedule.Report, error) {
	var reports []schedule.Report
	err := s.read(func(t *tables) error {
		for _, r := range t.reports {
			if r.ExamID == examID {
				reports = append(reports, r)
			}
		}
		return nil
	})
	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, err
}

func (s *scheduleStore) DeleteReports(ctx context.Context, examID string) error {
	return s.write(func(t *tables) error {
		for id, r := range t.reports {
			if r.ExamID == examID {
				delete(t.reports, id)
			}
		}
		return nil
	})
}

// Assignments

func (s *scheduleStore) CreateAssignment(ctx context.Context, a schedule.Assignment) (schedule.Assignment, error) {
	err := s.write(func(t *tables) error {
		if _, ok := t.reports[a.ReportID]; !ok {
			return core.NewNotFoundError("report", a.ReportID)
		}
		a.ID = newID(a.ID)
		t.assignments[a.ID] = a
		return nil
	})
	return a, err
}

func (s *scheduleStore) GetAssignment(ctx context.Context, id string) (schedule.Assignment, error) {
	var a schedule.Assignment
	err := s.read(func(t *tables) error {
		var ok bool
		if a, ok = t.assignments[id]; !ok {
			return core.NewNotFoundError("assignment", id)
		}
		return nil
	})
	return a, err
}

func (s *scheduleStore) QueryAssignments(ctx context.Context, filter *schedule.AssignmentFilter) ([]schedule.Assignment, error) {
	var asgs []schedule.Assignment
	err := s.read(func(t *tables) error {
		for _, a := range t.assignments {
			if matchesAssignment(a, filter) {
				asgs = append(asgs, a)
			}
		}
		return nil
	})
	sort.Slice(asgs, func(i, j int) bool {
		if !asgs[i].CreatedAt.Equal(asgs[j].CreatedAt) {
			return asgs[i].CreatedAt.Before(asgs[j].CreatedAt)
		}
		return asgs[i].ID < asgs[j].ID
	})
	return asgs, err
}

func matchesAssignment(a schedule.Assignment, filter *schedule.AssignmentFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.IDs) > 0 && !contains(filter.IDs, a.ID) {
		return false
	}
	if filter.ExamID != "" && a.ExamID != filter.ExamID {
		return false
	}
	if len(filter.ReportIDs) > 0 && !contains(filter.ReportIDs, a.ReportID) {
		return false
	}
	if filter.InvigilatorID != "" && a.InvigilatorID != filter.InvigilatorID {
		return false
	}
	if len(filter.Responses) > 0 {
		var ok bool
		for _, r := range filter.Responses {
			ok = ok || a.Response == r
		}
		if !ok {
			return false
		}
	}
	if !filter.ExpiresAfter.IsZero() && !a.TimeExpire.After(filter.ExpiresAfter) {
		return false
	}
	if !filter.ExpiresBefore.IsZero() && a.TimeExpire.After(filter.ExpiresBefore) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *scheduleStore) UpdateAssignment(ctx context.Context, a schedule.Assignment) (schedule.Assignment, error) {
	err := s.write(func(t *tables) error {
		if _, ok := t.assignments[a.ID]; !ok {
			return core.NewNotFoundError("assignment", a.ID)
		}
		t.assignments[a.ID] = a
		return nil
	})
	return a, err
}

func (s *scheduleStore) DeleteAssignments(ctx context.Context, examID string) error {
	return s.write(func(t *tables) error {
		for id, a := range t.assignments {
			if a.ExamID == examID {
				delete(t.assignments, id)
			}
		}
		return nil
	})
}

func (s *scheduleStore) QueryDuties(ctx context.Context, invigilatorID string) ([]schedule.Duty, error) {
	var duties []schedule.Duty
	err := s.read(func(t *tables) error {
		for _, a := range t.assignments {
			if a.InvigilatorID != invigilatorID || a.Declined() {
				continue
			}
			exam, ok := t.exams[a.ExamID]
			if !ok {
				continue
			}
			duties = append(duties, schedule.Duty{
				AssignmentID: a.ID,
				ReportID:     a.ReportID,
				ExamID:       a.ExamID,
				StartAt:      exam.StartAt,
				EndAt:        exam.EndAt,
				Response:     a.Response,
			})
		}
		return nil
	})
	sort.Slice(duties, func(i, j int) bool { return duties[i].StartAt.Before(duties[j].StartAt) })
	return duties, err
}

// Invigilators & ledger

func (s *scheduleStore) QueryInvigilators(ctx context.Context) ([]user.User, error) {
	var users []user.User
	err := s.read(func(t *tables) error {
		for _, u := range t.users {
			if u.IsActive && u.IsInvigilator() {
				users = append(users, u)
			}
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, err
}

func (s *scheduleStore) LockAccounts(ctx context.Context, ids ...string) ([]ledger.Account, error) {
	var accs []ledger.Account
	err := s.read(func(t *tables) error {
		for _, id := range ids {
			if u, ok := t.users[id]; ok {
				accs = append(accs, ledger.Account{UserID: u.ID, Cumulative: u.CumulativeHours, Pending: u.PendingHours})
			}
		}
		return nil
	})
	sort.Slice(accs, func(i, j int) bool { return accs[i].UserID < accs[j].UserID })
	return accs, err
}

func (s *scheduleStore) SaveAccount(ctx context.Context, acc ledger.Account) error {
	return s.write(func(t *tables) error {
		u, ok := t.users[acc.UserID]
		if !ok {
			return user.ErrNotFound
		}
		u.CumulativeHours = acc.Cumulative
		u.PendingHours = acc.Pending
		t.users[u.ID] = u
		return nil
	})
}

// Card events

func (s *scheduleStore) CreateCardEvent(ctx context.Context, ev schedule.CardEvent) error {
	return s.write(func(t *tables) error {
		key := eventKey(ev)
		if _, ok := t.cardEvents[key]; ok {
			return core.ErrDuplicateEvent
		}
		ev.ID = newID(ev.ID)
		t.cardEvents[key] = ev
		return nil
	})
}
