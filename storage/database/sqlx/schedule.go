package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/attendance"
	"github.com/trezcool/invigil/core/ledger"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
)

const (
	foreignKeyViolation = "23503"
	exclusionViolation  = "23P01"
)

var (
	venueColumns      = []string{"id", "floor", "capacity"}
	sessionColumns    = []string{"id", "venue_id", "start_at", "end_at"}
	courseColumns     = []string{"id", "department", "code", "section", "intake", "practical_lecturer_id", "tutorial_lecturer_id", "class_lecturer_id", "student_count", "exam_id"}
	examColumns       = []string{"id", "course_id", "start_at", "end_at", "active", "output", "updated_by", "created_at", "updated_at"}
	venueExamColumns  = []string{"exam_id", "session_id", "capacity"}
	reportColumns     = []string{"id", "exam_id", "session_id"}
	assignmentColumns = []string{
		"id", "report_id", "exam_id", "invigilator_id", "check_in", "check_out", "time_create", "time_expire",
		"response", "remark", "reject_reason", "updated_by", "created_at", "updated_at",
	}
)

type (
	venueRow struct {
		ID       string `db:"id"`
		Floor    string `db:"floor"`
		Capacity int    `db:"capacity"`
	}

	sessionRow struct {
		ID      string    `db:"id"`
		VenueID string    `db:"venue_id"`
		StartAt time.Time `db:"start_at"`
		EndAt   time.Time `db:"end_at"`
	}

	courseRow struct {
		ID           string      `db:"id"`
		Department   string      `db:"department"`
		Code         string      `db:"code"`
		Section      string      `db:"section"`
		Intake       string      `db:"intake"`
		PracticalID  null.String `db:"practical_lecturer_id"`
		TutorialID   null.String `db:"tutorial_lecturer_id"`
		ClassID      null.String `db:"class_lecturer_id"`
		StudentCount int         `db:"student_count"`
		ExamID       null.String `db:"exam_id"`
	}

	examRow struct {
		ID        string    `db:"id"`
		CourseID  string    `db:"course_id"`
		StartAt   null.Time `db:"start_at"`
		EndAt     null.Time `db:"end_at"`
		Active    bool      `db:"active"`
		Output    string    `db:"output"`
		UpdatedBy string    `db:"updated_by"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	venueExamRow struct {
		ExamID    string `db:"exam_id"`
		SessionID string `db:"session_id"`
		Capacity  int    `db:"capacity"`
	}

	reportRow struct {
		ID        string `db:"id"`
		ExamID    string `db:"exam_id"`
		SessionID string `db:"session_id"`
	}

	assignmentRow struct {
		ID            string    `db:"id"`
		ReportID      string    `db:"report_id"`
		ExamID        string    `db:"exam_id"`
		InvigilatorID string    `db:"invigilator_id"`
		CheckIn       null.Time `db:"check_in"`
		CheckOut      null.Time `db:"check_out"`
		TimeCreate    time.Time `db:"time_create"`
		TimeExpire    time.Time `db:"time_expire"`
		Response      string    `db:"response"`
		Remark        string    `db:"remark"`
		RejectReason  string    `db:"reject_reason"`
		UpdatedBy     string    `db:"updated_by"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	dutyRow struct {
		AssignmentID string    `db:"assignment_id"`
		ReportID     string    `db:"report_id"`
		ExamID       string    `db:"exam_id"`
		StartAt      time.Time `db:"start_at"`
		EndAt        time.Time `db:"end_at"`
		Response     string    `db:"response"`
	}

	accountRow struct {
		ID         string  `db:"id"`
		Cumulative float64 `db:"cumulative_hours"`
		Pending    float64 `db:"pending_hours"`
	}
)

func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullTime(t time.Time) null.Time { return null.NewTime(t.UTC(), !t.IsZero()) }

func fromNullTime(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func (r sessionRow) session() schedule.VenueSession {
	return schedule.VenueSession{ID: r.ID, VenueID: r.VenueID, StartAt: r.StartAt.UTC(), EndAt: r.EndAt.UTC()}
}

func toCourseRow(c schedule.Course) courseRow {
	return courseRow{
		ID:           c.ID,
		Department:   c.Department,
		Code:         c.Code,
		Section:      c.Section,
		Intake:       c.Intake,
		PracticalID:  nullString(c.PracticalID),
		TutorialID:   nullString(c.TutorialID),
		ClassID:      nullString(c.ClassID),
		StudentCount: c.StudentCount,
		ExamID:       nullString(c.ExamID),
	}
}

func (r courseRow) course() schedule.Course {
	return schedule.Course{
		ID:           r.ID,
		CourseKey:    schedule.CourseKey{Department: r.Department, Code: r.Code, Section: r.Section, Intake: r.Intake},
		Lecturers:    schedule.Lecturers{PracticalID: r.PracticalID.String, TutorialID: r.TutorialID.String, ClassID: r.ClassID.String},
		StudentCount: r.StudentCount,
		ExamID:       r.ExamID.String,
	}
}

func toExamRow(e schedule.Exam) examRow {
	return examRow{
		ID:        e.ID,
		CourseID:  e.CourseID,
		StartAt:   nullTime(e.StartAt),
		EndAt:     nullTime(e.EndAt),
		Active:    e.Active,
		Output:    e.Output,
		UpdatedBy: e.UpdatedBy,
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
}

func (r examRow) exam() schedule.Exam {
	return schedule.Exam{
		ID:        r.ID,
		CourseID:  r.CourseID,
		StartAt:   fromNullTime(r.StartAt),
		EndAt:     fromNullTime(r.EndAt),
		Active:    r.Active,
		Output:    r.Output,
		UpdatedBy: r.UpdatedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func toAssignmentRow(a schedule.Assignment) assignmentRow {
	return assignmentRow{
		ID:            a.ID,
		ReportID:      a.ReportID,
		ExamID:        a.ExamID,
		InvigilatorID: a.InvigilatorID,
		CheckIn:       nullTime(a.CheckIn),
		CheckOut:      nullTime(a.CheckOut),
		TimeCreate:    a.TimeCreate.UTC(),
		TimeExpire:    a.TimeExpire.UTC(),
		Response:      string(a.Response),
		Remark:        string(a.Remark),
		RejectReason:  a.RejectReason,
		UpdatedBy:     a.UpdatedBy,
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
	}
}

func (r assignmentRow) assignment() schedule.Assignment {
	return schedule.Assignment{
		ID:            r.ID,
		ReportID:      r.ReportID,
		ExamID:        r.ExamID,
		InvigilatorID: r.InvigilatorID,
		CheckIn:       fromNullTime(r.CheckIn),
		CheckOut:      fromNullTime(r.CheckOut),
		TimeCreate:    r.TimeCreate.UTC(),
		TimeExpire:    r.TimeExpire.UTC(),
		Response:      schedule.Response(r.Response),
		Remark:        attendance.Remark(r.Remark),
		RejectReason:  r.RejectReason,
		UpdatedBy:     r.UpdatedBy,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (r assignmentRow) values() []interface{} {
	return []interface{}{
		r.ID, r.ReportID, r.ExamID, r.InvigilatorID, r.CheckIn, r.CheckOut, r.TimeCreate, r.TimeExpire,
		r.Response, r.Remark, r.RejectReason, r.UpdatedBy, r.CreatedAt, r.UpdatedAt,
	}
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

type scheduleStore struct {
	base
}

var _ schedule.Store = (*scheduleStore)(nil) // interface compliance check

func NewScheduleStore(db *sqlx.DB) *scheduleStore {
	return &scheduleStore{base: base{db: db}}
}

func (s *scheduleStore) WithinTx(ctx context.Context, fn func(repo schedule.Repository) error) error {
	return s.withinTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&scheduleStore{base: base{db: s.db, tx: tx}})
	})
}

// Venues

func (s *scheduleStore) CreateVenue(ctx context.Context, v schedule.Venue) (schedule.Venue, error) {
	q := psql.Insert("venue").Columns(venueColumns...).Values(v.ID, v.Floor, v.Capacity)
	if _, err := s.exec(ctx, q); err != nil {
		if isUniqueViolation(err) {
			return schedule.Venue{}, core.NewFieldValidationError("id", "venue "+v.ID+" already exists")
		}
		return schedule.Venue{}, errors.Wrap(err, "inserting venue")
	}
	return v, nil
}

func (s *scheduleStore) GetVenue(ctx context.Context, id string) (schedule.Venue, error) {
	var r venueRow
	if err := s.get(ctx, &r, psql.Select(venueColumns...).From("venue").Where(sq.Eq{"id": id})); err != nil {
		return schedule.Venue{}, trapNoRowsErr(err, "venue", id, "getting venue")
	}
	return schedule.Venue(r), nil
}

func (s *scheduleStore) LockVenue(ctx context.Context, id string) (schedule.Venue, error) {
	q := psql.Select(venueColumns...).From("venue").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE")
	var r venueRow
	if err := s.get(ctx, &r, q); err != nil {
		return schedule.Venue{}, trapNoRowsErr(err, "venue", id, "locking venue")
	}
	return schedule.Venue(r), nil
}

func (s *scheduleStore) QueryVenues(ctx context.Context) ([]schedule.Venue, error) {
	var rows []venueRow
	if err := s.sel(ctx, &rows, psql.Select(venueColumns...).From("venue").OrderBy("id")); err != nil {
		return nil, errors.Wrap(err, "querying venues")
	}
	venues := make([]schedule.Venue, 0, len(rows))
	for _, r := range rows {
		venues = append(venues, schedule.Venue(r))
	}
	return venues, nil
}

// Venue sessions

func (s *scheduleStore) GetSession(ctx context.Context, id string) (schedule.VenueSession, error) {
	if !isUUID(id) {
		return schedule.VenueSession{}, core.NewNotFoundError("session", id)
	}
	var r sessionRow
	if err := s.get(ctx, &r, psql.Select(sessionColumns...).From("venue_session").Where(sq.Eq{"id": id})); err != nil {
		return schedule.VenueSession{}, trapNoRowsErr(err, "session", id, "getting session")
	}
	return r.session(), nil
}

func (s *scheduleStore) FindSession(ctx context.Context, venueID string, start, end time.Time) (schedule.VenueSession, error) {
	q := psql.Select(sessionColumns...).From("venue_session").
		Where(sq.Eq{"venue_id": venueID, "start_at": start.UTC(), "end_at": end.UTC()})
	var r sessionRow
	if err := s.get(ctx, &r, q); err != nil {
		return schedule.VenueSession{}, trapNoRowsErr(err, "session", venueID, "finding session")
	}
	return r.session(), nil
}

func (s *scheduleStore) QueryOverlappingSessions(ctx context.Context, venueID string, start, end time.Time) ([]schedule.VenueSession, error) {
	q := psql.Select(sessionColumns...).From("venue_session").
		Where(sq.Eq{"venue_id": venueID}).
		Where(sq.Lt{"start_at": end.UTC()}).
		Where(sq.Gt{"end_at": start.UTC()}).
		OrderBy("start_at")
	var rows []sessionRow
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]schedule.VenueSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (s *scheduleStore) CreateSession(ctx context.Context, sess schedule.VenueSession) (schedule.VenueSession, error) {
	sess.ID = newID(sess.ID)
	sess.StartAt, sess.EndAt = sess.StartAt.UTC(), sess.EndAt.UTC()
	q := psql.Insert("venue_session").Columns(sessionColumns...).Values(sess.ID, sess.VenueID, sess.StartAt, sess.EndAt)
	if _, err := s.exec(ctx, q); err != nil {
		switch pqCode(err) {
		case uniqueViolation, exclusionViolation:
			return schedule.VenueSession{}, core.NewConflictError(core.ErrDoubleBooked, "venue", sess.VenueID)
		case foreignKeyViolation:
			return schedule.VenueSession{}, core.NewNotFoundError("venue", sess.VenueID)
		}
		return schedule.VenueSession{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

func (s *scheduleStore) DeleteSession(ctx context.Context, id string) error {
	if !isUUID(id) {
		return nil
	}
	_, err := s.exec(ctx, psql.Delete("venue_session").Where(sq.Eq{"id": id}))
	return errors.Wrap(err, "deleting session")
}

// Courses

func (s *scheduleStore) CreateCourse(ctx context.Context, c schedule.Course) (schedule.Course, error) {
	c.ID = newID(c.ID)
	r := toCourseRow(c)
	q := psql.Insert("course").Columns(courseColumns...).Values(
		r.ID, r.Department, r.Code, r.Section, r.Intake, r.PracticalID, r.TutorialID, r.ClassID, r.StudentCount, r.ExamID,
	)
	if _, err := s.exec(ctx, q); err != nil {
		return schedule.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (s *scheduleStore) GetCourse(ctx context.Context, id string) (schedule.Course, error) {
	if !isUUID(id) {
		return schedule.Course{}, core.NewNotFoundError("course", id)
	}
	var r courseRow
	if err := s.get(ctx, &r, psql.Select(courseColumns...).From("course").Where(sq.Eq{"id": id})); err != nil {
		return schedule.Course{}, trapNoRowsErr(err, "course", id, "getting course")
	}
	return r.course(), nil
}

func (s *scheduleStore) FindCourse(ctx context.Context, key schedule.CourseKey) (schedule.Course, error) {
	key = key.Clean()
	q := psql.Select(courseColumns...).From("course").Where(sq.Eq{
		"department": key.Department,
		"code":       key.Code,
		"section":    key.Section,
		"intake":     key.Intake,
	})
	var r courseRow
	if err := s.get(ctx, &r, q); err != nil {
		return schedule.Course{}, trapNoRowsErr(err, "course", key.String(), "finding course")
	}
	return r.course(), nil
}

func (s *scheduleStore) UpdateCourse(ctx context.Context, c schedule.Course) (schedule.Course, error) {
	r := toCourseRow(c)
	q := psql.Update("course").
		Set("department", r.Department).
		Set("code", r.Code).
		Set("section", r.Section).
		Set("intake", r.Intake).
		Set("practical_lecturer_id", r.PracticalID).
		Set("tutorial_lecturer_id", r.TutorialID).
		Set("class_lecturer_id", r.ClassID).
		Set("student_count", r.StudentCount).
		Set("exam_id", r.ExamID).
		Where(sq.Eq{"id": r.ID})
	n, err := s.exec(ctx, q)
	if err != nil {
		return schedule.Course{}, errors.Wrap(err, "updating course")
	}
	if n == 0 {
		return schedule.Course{}, core.NewNotFoundError("course", c.ID)
	}
	return c, nil
}

func (s *scheduleStore) DeleteCourse(ctx context.Context, id string) error {
	if !isUUID(id) {
		return core.NewNotFoundError("course", id)
	}
	n, err := s.exec(ctx, psql.Delete("course").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return core.NewNotFoundError("course", id)
	}
	return nil
}

// Exams

func (s *scheduleStore) CreateExam(ctx context.Context, e schedule.Exam) (schedule.Exam, error) {
	e.ID = newID(e.ID)
	r := toExamRow(e)
	q := psql.Insert("exam").Columns(examColumns...).Values(
		r.ID, r.CourseID, r.StartAt, r.EndAt, r.Active, r.Output, r.UpdatedBy, r.CreatedAt, r.UpdatedAt,
	)
	if _, err := s.exec(ctx, q); err != nil {
		return schedule.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return r.exam(), nil
}

func (s *scheduleStore) GetExam(ctx context.Context, id string) (schedule.Exam, error) {
	if !isUUID(id) {
		return schedule.Exam{}, core.NewNotFoundError("exam", id)
	}
	var r examRow
	if err := s.get(ctx, &r, psql.Select(examColumns...).From("exam").Where(sq.Eq{"id": id})); err != nil {
		return schedule.Exam{}, trapNoRowsErr(err, "exam", id, "getting exam")
	}
	return r.exam(), nil
}

func (s *scheduleStore) QueryExams(ctx context.Context, filter *schedule.ExamFilter) ([]schedule.Exam, error) {
	q := psql.Select(examColumns...).From("exam")
	if filter != nil {
		if filter.CourseID != "" {
			q = q.Where(sq.Eq{"course_id": filter.CourseID})
		}
		if filter.Active != nil {
			q = q.Where(sq.Eq{"active": *filter.Active})
		}
		if !filter.From.IsZero() {
			q = q.Where(sq.GtOrEq{"start_at": filter.From.UTC()})
		}
		if !filter.To.IsZero() {
			q = q.Where(sq.LtOrEq{"start_at": filter.To.UTC()})
		}
	}
	q = q.OrderBy("start_at ASC NULLS FIRST", "id ASC")

	var rows []examRow
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	exams := make([]schedule.Exam, 0, len(rows))
	for _, r := range rows {
		exams = append(exams, r.exam())
	}
	return exams, nil
}

func (s *scheduleStore) UpdateExam(ctx context.Context, e schedule.Exam) (schedule.Exam, error) {
	r := toExamRow(e)
	q := psql.Update("exam").
		Set("start_at", r.StartAt).
		Set("end_at", r.EndAt).
		Set("active", r.Active).
		Set("output", r.Output).
		Set("updated_by", r.UpdatedBy).
		Set("updated_at", r.UpdatedAt).
		Where(sq.Eq{"id": r.ID})
	n, err := s.exec(ctx, q)
	if err != nil {
		return schedule.Exam{}, errors.Wrap(err, "updating exam")
	}
	if n == 0 {
		return schedule.Exam{}, core.NewNotFoundError("exam", e.ID)
	}
	return r.exam(), nil
}

func (s *scheduleStore) DeleteExam(ctx context.Context, id string) error {
	if !isUUID(id) {
		return core.NewNotFoundError("exam", id)
	}
	n, err := s.exec(ctx, psql.Delete("exam").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	if n == 0 {
		return core.NewNotFoundError("exam", id)
	}
	return nil
}

// Exam <-> session links

func (s *scheduleStore) CreateVenueExam(ctx context.Context, ve schedule.VenueExam) error {
	q := psql.Insert("venue_exam").Columns(venueExamColumns...).Values(ve.ExamID, ve.SessionID, ve.Capacity).
		Suffix("ON CONFLICT (exam_id, session_id) DO UPDATE SET capacity = EXCLUDED.capacity")
	_, err := s.exec(ctx, q)
	return errors.Wrap(err, "linking session")
}

func (s *scheduleStore) QueryVenueExams(ctx context.Context, examID, sessionID string) ([]schedule.VenueExam, error) {
	q := psql.Select(venueExamColumns...).From("venue_exam")
	if examID != "" {
		if !isUUID(examID) {
			return nil, nil
		}
		q = q.Where(sq.Eq{"exam_id": examID})
	}
	if sessionID != "" {
		if !isUUID(sessionID) {
			return nil, nil
		}
		q = q.Where(sq.Eq{"session_id": sessionID})
	}
	var rows []venueExamRow
	if err := s.sel(ctx, &rows, q.OrderBy("exam_id", "session_id")); err != nil {
		return nil, errors.Wrap(err, "querying venue links")
	}
	links := make([]schedule.VenueExam, 0, len(rows))
	for _, r := range rows {
		links = append(links, schedule.VenueExam(r))
	}
	return links, nil
}

func (s *scheduleStore) DeleteVenueExams(ctx context.Context, examID string) error {
	if !isUUID(examID) {
		return nil
	}
	_, err := s.exec(ctx, psql.Delete("venue_exam").Where(sq.Eq{"exam_id": examID}))
	return errors.Wrap(err, "deleting venue links")
}

// Reports

func (s *scheduleStore) CreateReport(ctx context.Context, r schedule.Report) (schedule.Report, error) {
	r.ID = newID(r.ID)
	q := psql.Insert("report").Columns(reportColumns...).Values(r.ID, r.ExamID, r.SessionID)
	if _, err := s.exec(ctx, q); err != nil {
		return schedule.Report{}, errors.Wrap(err, "inserting report")
	}
	return r, nil
}

func (s *scheduleStore) GetReport(ctx context.Context, id string) (schedule.Report, error) {
	if !isUUID(id) {
		return schedule.Report{}, core.NewNotFoundError("report", id)
	}
	var r reportRow
	if err := s.get(ctx, &r, psql.Select(reportColumns...).From("report").Where(sq.Eq{"id": id})); err != nil {
		return schedule.Report{}, trapNoRowsErr(err, "report", id, "getting report")
	}
	return schedule.Report(r), nil
}

func (s *scheduleStore) QueryReports(ctx context.Context, examID string) ([]schedule.Report, error) {
	if !isUUID(examID) {
		return nil, nil
	}
	var rows []reportRow
	q := psql.Select(reportColumns...).From("report").Where(sq.Eq{"exam_id": examID}).OrderBy("id")
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	reports := make([]schedule.Report, 0, len(rows))
	for _, r := range rows {
		reports = append(reports, schedule.Report(r))
	}
	return reports, nil
}

func (s *scheduleStore) DeleteReports(ctx context.Context, examID string) error {
	if !isUUID(examID) {
		return nil
	}
	_, err := s.exec(ctx, psql.Delete("report").Where(sq.Eq{"exam_id": examID}))
	return errors.Wrap(err, "deleting reports")
}

// Assignments

func (s *scheduleStore) CreateAssignment(ctx context.Context, a schedule.Assignment) (schedule.Assignment, error) {
	a.ID = newID(a.ID)
	r := toAssignmentRow(a)
	q := psql.Insert("assignment").Columns(assignmentColumns...).Values(r.values()...)
	if _, err := s.exec(ctx, q); err != nil {
		if pqCode(err) == foreignKeyViolation {
			return schedule.Assignment{}, core.NewNotFoundError("report", a.ReportID)
		}
		return schedule.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return r.assignment(), nil
}

func (s *scheduleStore) GetAssignment(ctx context.Context, id string) (schedule.Assignment, error) {
	if !isUUID(id) {
		return schedule.Assignment{}, core.NewNotFoundError("assignment", id)
	}
	var r assignmentRow
	if err := s.get(ctx, &r, psql.Select(assignmentColumns...).From("assignment").Where(sq.Eq{"id": id})); err != nil {
		return schedule.Assignment{}, trapNoRowsErr(err, "assignment", id, "getting assignment")
	}
	return r.assignment(), nil
}

func (s *scheduleStore) QueryAssignments(ctx context.Context, filter *schedule.AssignmentFilter) ([]schedule.Assignment, error) {
	q := psql.Select(assignmentColumns...).From("assignment")
	if filter != nil {
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"id": validIDs(filter.IDs)})
		}
		if filter.ExamID != "" {
			if !isUUID(filter.ExamID) {
				return nil, nil
			}
			q = q.Where(sq.Eq{"exam_id": filter.ExamID})
		}
		if len(filter.ReportIDs) > 0 {
			q = q.Where(sq.Eq{"report_id": validIDs(filter.ReportIDs)})
		}
		if filter.InvigilatorID != "" {
			if !isUUID(filter.InvigilatorID) {
				return nil, nil
			}
			q = q.Where(sq.Eq{"invigilator_id": filter.InvigilatorID})
		}
		if len(filter.Responses) > 0 {
			responses := make([]string, 0, len(filter.Responses))
			for _, r := range filter.Responses {
				responses = append(responses, string(r))
			}
			q = q.Where(sq.Eq{"response": responses})
		}
		if !filter.ExpiresAfter.IsZero() {
			q = q.Where(sq.Gt{"time_expire": filter.ExpiresAfter.UTC()})
		}
		if !filter.ExpiresBefore.IsZero() {
			q = q.Where(sq.LtOrEq{"time_expire": filter.ExpiresBefore.UTC()})
		}
	}
	q = q.OrderBy("created_at", "id")

	var rows []assignmentRow
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	asgs := make([]schedule.Assignment, 0, len(rows))
	for _, r := range rows {
		asgs = append(asgs, r.assignment())
	}
	return asgs, nil
}

func (s *scheduleStore) UpdateAssignment(ctx context.Context, a schedule.Assignment) (schedule.Assignment, error) {
	r := toAssignmentRow(a)
	q := psql.Update("assignment").
		Set("invigilator_id", r.InvigilatorID).
		Set("check_in", r.CheckIn).
		Set("check_out", r.CheckOut).
		Set("time_create", r.TimeCreate).
		Set("time_expire", r.TimeExpire).
		Set("response", r.Response).
		Set("remark", r.Remark).
		Set("reject_reason", r.RejectReason).
		Set("updated_by", r.UpdatedBy).
		Set("updated_at", r.UpdatedAt).
		Where(sq.Eq{"id": r.ID})
	n, err := s.exec(ctx, q)
	if err != nil {
		return schedule.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n == 0 {
		return schedule.Assignment{}, core.NewNotFoundError("assignment", a.ID)
	}
	return r.assignment(), nil
}

func (s *scheduleStore) DeleteAssignments(ctx context.Context, examID string) error {
	if !isUUID(examID) {
		return nil
	}
	_, err := s.exec(ctx, psql.Delete("assignment").Where(sq.Eq{"exam_id": examID}))
	return errors.Wrap(err, "deleting assignments")
}

func (s *scheduleStore) QueryDuties(ctx context.Context, invigilatorID string) ([]schedule.Duty, error) {
	if !isUUID(invigilatorID) {
		return nil, nil
	}
	q := psql.Select(
		"a.id AS assignment_id", "a.report_id", "a.exam_id", "e.start_at", "e.end_at", "a.response",
	).
		From("assignment a").
		Join("exam e ON e.id = a.exam_id").
		Where(sq.Eq{"a.invigilator_id": invigilatorID}).
		Where(sq.NotEq{"a.response": string(schedule.ResponseDeclined)}).
		Where("e.start_at IS NOT NULL AND e.end_at IS NOT NULL").
		OrderBy("e.start_at")

	var rows []dutyRow
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying duties")
	}
	duties := make([]schedule.Duty, 0, len(rows))
	for _, r := range rows {
		duties = append(duties, schedule.Duty{
			AssignmentID: r.AssignmentID,
			ReportID:     r.ReportID,
			ExamID:       r.ExamID,
			StartAt:      r.StartAt.UTC(),
			EndAt:        r.EndAt.UTC(),
			Response:     schedule.Response(r.Response),
		})
	}
	return duties, nil
}

// Invigilators & ledger

func (s *scheduleStore) QueryInvigilators(ctx context.Context) ([]user.User, error) {
	q := psql.Select(userColumns...).From(userTable).
		Where(sq.Eq{"is_active": true}).
		Where("EXISTS (SELECT 1 FROM unnest(roles) AS user_role WHERE user_role ILIKE ?)", user.RoleInvigilator+"%").
		OrderBy("id")
	var rows []userRow
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying invigilators")
	}
	return unrowUsers(rows), nil
}

// LockAccounts takes row locks in id order so concurrent units of work cannot deadlock.
func (s *scheduleStore) LockAccounts(ctx context.Context, ids ...string) ([]ledger.Account, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	q := psql.Select("id", "cumulative_hours", "pending_hours").From(userTable).
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		Suffix("FOR UPDATE")
	var rows []accountRow
	if err := s.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "locking accounts")
	}
	accs := make([]ledger.Account, 0, len(rows))
	for _, r := range rows {
		accs = append(accs, ledger.Account{UserID: r.ID, Cumulative: r.Cumulative, Pending: r.Pending})
	}
	return accs, nil
}

func (s *scheduleStore) SaveAccount(ctx context.Context, acc ledger.Account) error {
	if !isUUID(acc.UserID) {
		return user.ErrNotFound
	}
	q := psql.Update(userTable).
		Set("cumulative_hours", acc.Cumulative).
		Set("pending_hours", acc.Pending).
		Where(sq.Eq{"id": acc.UserID})
	n, err := s.exec(ctx, q)
	if err != nil {
		return errors.Wrap(err, "saving account")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Card events

// CreateCardEvent skips conflicting rows instead of failing, which would abort the surrounding transaction.
func (s *scheduleStore) CreateCardEvent(ctx context.Context, ev schedule.CardEvent) error {
	ev.ID = newID(ev.ID)
	q := psql.Insert("card_event").
		Columns("id", "card_id", "user_id", "direction", "at").
		Values(ev.ID, ev.CardID, ev.UserID, strings.ToLower(string(ev.Direction)), ev.At.UTC()).
		Suffix("ON CONFLICT (user_id, direction, at) DO NOTHING")
	n, err := s.exec(ctx, q)
	if err != nil {
		return errors.Wrap(err, "inserting card event")
	}
	if n == 0 {
		return core.ErrDuplicateEvent
	}
	return nil
}
