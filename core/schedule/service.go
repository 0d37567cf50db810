// Package schedule keeps the exam → venue session → assignment graph, the
// attendance records and the invigilator hour ledger consistent.
// Every mutating operation runs as one unit of work of the Store.
package schedule

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/ledger"
	"github.com/trezcool/invigil/core/user"
)

var NowFunc = time.Now // mockable

type Service struct {
	store     Store
	users     *user.Service
	lecturers LecturerResolver
	ledger    *ledger.Ledger
	conf      core.ScheduleConfig
	log       core.Logger
}

// NewService returns the scheduling engine. lecturers may be nil.
func NewService(store Store, users *user.Service, lecturers LecturerResolver, conf core.ScheduleConfig, log core.Logger) *Service {
	if conf.StudentsPerInvigilator <= 0 {
		conf.StudentsPerInvigilator = core.DefaultScheduleConfig().StudentsPerInvigilator
	}
	return &Service{
		store:     store,
		users:     users,
		lecturers: lecturers,
		ledger:    ledger.New(log),
		conf:      conf,
		log:       log,
	}
}

func (svc *Service) Config() core.ScheduleConfig { return svc.conf }

// Account returns the current ledger of an invigilator.
func (svc *Service) Account(ctx context.Context, userID string) (ledger.Account, error) {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{UserID: usr.ID, Cumulative: usr.CumulativeHours, Pending: usr.PendingHours}, nil
}

func (svc *Service) GetExam(ctx context.Context, id string) (ExamDetail, error) {
	exam, err := svc.store.GetExam(ctx, id)
	if err != nil {
		return ExamDetail{}, err
	}
	return examDetail(ctx, svc.store, exam)
}

func (svc *Service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.store.GetAssignment(ctx, id)
}

// Duties lists the non-declined assignments of an invigilator, earliest first.
func (svc *Service) Duties(ctx context.Context, invigilatorID string) ([]Duty, error) {
	duties, err := svc.store.QueryDuties(ctx, invigilatorID)
	return duties, errors.Wrap(err, "querying duties")
}

func (svc *Service) QueryExams(ctx context.Context, filter *ExamFilter) ([]Exam, error) {
	return svc.store.QueryExams(ctx, filter)
}

func (svc *Service) CreateVenue(ctx context.Context, v Venue) (Venue, error) {
	v.ID = core.CleanString(v.ID)
	if v.ID == "" {
		return Venue{}, core.NewFieldValidationError("id", "this field is required")
	}
	if v.Capacity <= 0 {
		return Venue{}, core.NewFieldValidationError("capacity", "must be greater than 0")
	}
	return svc.store.CreateVenue(ctx, v)
}

func (svc *Service) QueryVenues(ctx context.Context) ([]Venue, error) {
	return svc.store.QueryVenues(ctx)
}

// accountBook accumulates ledger changes of one unit of work.
type accountBook struct {
	repo   Repository
	ledger *ledger.Ledger
	accs   map[string]*ledger.Account
	dirty  map[string]bool
}

func (svc *Service) newBook(repo Repository) *accountBook {
	return &accountBook{
		repo:   repo,
		ledger: svc.ledger,
		accs:   make(map[string]*ledger.Account),
		dirty:  make(map[string]bool),
	}
}

// lock loads and locks the accounts of ids not seen yet, in id order.
func (b *accountBook) lock(ctx context.Context, ids ...string) error {
	missing := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := b.accs[id]; !ok && !seen[id] && id != "" {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	accs, err := b.repo.LockAccounts(ctx, missing...)
	if err != nil {
		return errors.Wrap(err, "locking accounts")
	}
	for i := range accs {
		acc := accs[i]
		b.accs[acc.UserID] = &acc
	}
	for _, id := range missing {
		if _, ok := b.accs[id]; !ok {
			return core.NewNotFoundError("user", id)
		}
	}
	return nil
}

func (b *accountBook) apply(ctx context.Context, userID string, d ledger.Delta) (ledger.Delta, error) {
	if d.IsZero() {
		return d, nil
	}
	if err := b.lock(ctx, userID); err != nil {
		return ledger.Delta{}, err
	}
	b.dirty[userID] = true
	return b.ledger.Apply(b.accs[userID], d), nil
}

func (b *accountBook) flush(ctx context.Context) error {
	ids := make([]string, 0, len(b.dirty))
	for id := range b.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := b.repo.SaveAccount(ctx, *b.accs[id]); err != nil {
			return errors.Wrap(err, "saving account")
		}
	}
	b.dirty = make(map[string]bool)
	return nil
}

// withinTx runs fn in one unit of work with a fresh account book flushed on success.
func (svc *Service) withinTx(ctx context.Context, fn func(repo Repository, book *accountBook) error) error {
	return svc.store.WithinTx(ctx, func(repo Repository) error {
		book := svc.newBook(repo)
		if err := fn(repo, book); err != nil {
			return err
		}
		return book.flush(ctx)
	})
}

func examDetail(ctx context.Context, repo Repository, exam Exam) (ExamDetail, error) {
	detail := ExamDetail{Exam: exam, Reports: []ReportDetail{}}

	course, err := repo.GetCourse(ctx, exam.CourseID)
	if err != nil {
		return ExamDetail{}, errors.Wrap(err, "getting course")
	}
	detail.Course = course

	links, err := repo.QueryVenueExams(ctx, exam.ID, "")
	if err != nil {
		return ExamDetail{}, errors.Wrap(err, "querying venue links")
	}
	capacities := make(map[string]int, len(links))
	for _, l := range links {
		capacities[l.SessionID] = l.Capacity
	}

	reports, err := repo.QueryReports(ctx, exam.ID)
	if err != nil {
		return ExamDetail{}, errors.Wrap(err, "querying reports")
	}
	if len(reports) == 0 {
		return detail, nil
	}
	reportIDs := make([]string, 0, len(reports))
	for _, r := range reports {
		reportIDs = append(reportIDs, r.ID)
	}
	asgs, err := repo.QueryAssignments(ctx, &AssignmentFilter{ReportIDs: reportIDs})
	if err != nil {
		return ExamDetail{}, errors.Wrap(err, "querying assignments")
	}
	byReport := make(map[string][]Assignment, len(reports))
	for _, a := range asgs {
		byReport[a.ReportID] = append(byReport[a.ReportID], a)
	}

	for _, r := range reports {
		sess, err := repo.GetSession(ctx, r.SessionID)
		if err != nil {
			return ExamDetail{}, errors.Wrap(err, "getting session")
		}
		rd := ReportDetail{
			Report:      r,
			VenueID:     sess.VenueID,
			Capacity:    capacities[r.SessionID],
			Assignments: byReport[r.ID],
		}
		if rd.Assignments == nil {
			rd.Assignments = []Assignment{}
		}
		detail.Reports = append(detail.Reports, rd)
	}
	sort.Slice(detail.Reports, func(i, j int) bool { return detail.Reports[i].VenueID < detail.Reports[j].VenueID })
	return detail, nil
}

type outputSummary struct {
	Start   time.Time      `json:"start"`
	End     time.Time      `json:"end"`
	Reports []outputReport `json:"reports"`
}

type outputReport struct {
	Venue        string   `json:"venue"`
	Capacity     int      `json:"capacity"`
	Invigilators []string `json:"invigilators"`
}

// refreshOutput stores the assignment summary of exam in its output blob.
func refreshOutput(ctx context.Context, repo Repository, exam Exam) (Exam, error) {
	detail, err := examDetail(ctx, repo, exam)
	if err != nil {
		return Exam{}, err
	}
	sum := outputSummary{Start: exam.StartAt, End: exam.EndAt, Reports: make([]outputReport, 0, len(detail.Reports))}
	for _, r := range detail.Reports {
		or := outputReport{Venue: r.VenueID, Capacity: r.Capacity, Invigilators: make([]string, 0, len(r.Assignments))}
		for _, a := range r.Assignments {
			if !a.Declined() {
				or.Invigilators = append(or.Invigilators, a.InvigilatorID)
			}
		}
		sort.Strings(or.Invigilators)
		sum.Reports = append(sum.Reports, or)
	}
	out, err := json.Marshal(sum)
	if err != nil {
		return Exam{}, errors.Wrap(err, "marshalling output")
	}
	exam.Output = string(out)
	return repo.UpdateExam(ctx, exam)
}
