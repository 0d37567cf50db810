package schedule

import (
	"context"
	"time"

	"github.com/trezcool/invigil/core/ledger"
	"github.com/trezcool/invigil/core/user"
)

type (
	Repository interface {
		// master data
		CreateVenue(ctx context.Context, v Venue) (Venue, error)
		GetVenue(ctx context.Context, id string) (Venue, error)
		// LockVenue returns the venue and holds it until the surrounding unit of work ends,
		// serializing the bookings made on it.
		LockVenue(ctx context.Context, id string) (Venue, error)
		QueryVenues(ctx context.Context) ([]Venue, error)

		// venue sessions
		GetSession(ctx context.Context, id string) (VenueSession, error)
		FindSession(ctx context.Context, venueID string, start, end time.Time) (VenueSession, error)
		// QueryOverlappingSessions returns the sessions of venueID intersecting [start, end).
		QueryOverlappingSessions(ctx context.Context, venueID string, start, end time.Time) ([]VenueSession, error)
		CreateSession(ctx context.Context, s VenueSession) (VenueSession, error)
		DeleteSession(ctx context.Context, id string) error

		// courses & exams
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		FindCourse(ctx context.Context, key CourseKey) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		CreateExam(ctx context.Context, e Exam) (Exam, error)
		GetExam(ctx context.Context, id string) (Exam, error)
		QueryExams(ctx context.Context, filter *ExamFilter) ([]Exam, error)
		UpdateExam(ctx context.Context, e Exam) (Exam, error)
		DeleteExam(ctx context.Context, id string) error

		// exam <-> session links
		CreateVenueExam(ctx context.Context, ve VenueExam) error
		QueryVenueExams(ctx context.Context, examID, sessionID string) ([]VenueExam, error)
		DeleteVenueExams(ctx context.Context, examID string) error

		// reports & assignments
		CreateReport(ctx context.Context, r Report) (Report, error)
		GetReport(ctx context.Context, id string) (Report, error)
		QueryReports(ctx context.Context, examID string) ([]Report, error)
		DeleteReports(ctx context.Context, examID string) error
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, filter *AssignmentFilter) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignments(ctx context.Context, examID string) error
		// QueryDuties returns the non-declined assignments of an invigilator with their exam window.
		QueryDuties(ctx context.Context, invigilatorID string) ([]Duty, error)

		// invigilators & ledger
		// QueryInvigilators returns the active users holding the invigilator role.
		QueryInvigilators(ctx context.Context) ([]user.User, error)
		// LockAccounts returns the ledger accounts of ids, sorted by id,
		// and holds them until the surrounding unit of work ends.
		LockAccounts(ctx context.Context, ids ...string) ([]ledger.Account, error)
		SaveAccount(ctx context.Context, acc ledger.Account) error

		// CreateCardEvent stores ev; core.ErrDuplicateEvent when (user, direction, at) was already seen.
		CreateCardEvent(ctx context.Context, ev CardEvent) error
	}

	// Store is a Repository able to run a unit of work.
	// fn receives a Repository bound to the unit of work; any error rolls everything back.
	Store interface {
		Repository
		WithinTx(ctx context.Context, fn func(repo Repository) error) error
	}

	// LecturerResolver finds the lecturers teaching a course from the imported timetables.
	LecturerResolver interface {
		ResolveLecturers(ctx context.Context, key CourseKey) (Lecturers, error)
	}
)
