package schedule

import (
	"strings"
	"time"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/attendance"
)

type Venue struct {
	ID       string `json:"id"`
	Floor    string `json:"floor"`
	Capacity int    `json:"capacity"`
}

// VenueSession is a venue booked for a time window; unique per (venue, start, end).
type VenueSession struct {
	ID      string    `json:"id"`
	VenueID string    `json:"venue_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func (s VenueSession) Window() attendance.Window {
	return attendance.Window{Start: s.StartAt, End: s.EndAt}
}

// CourseKey is the natural key of a course.
type CourseKey struct {
	Department string `json:"department"`
	Code       string `json:"code" validate:"required,coursecode"`
	Section    string `json:"section" validate:"required"`
	Intake     string `json:"intake" validate:"required,intake"`
}

func (k CourseKey) Clean() CourseKey {
	return CourseKey{
		Department: core.CleanCode(k.Department),
		Code:       core.CleanCode(k.Code),
		Section:    core.CleanCode(k.Section),
		Intake:     core.CleanString(k.Intake),
	}
}

func (k CourseKey) String() string {
	return strings.Join([]string{k.Department, k.Code, k.Section, k.Intake}, "/")
}

// Lecturers references the users teaching a course; empty ids are unset.
type Lecturers struct {
	PracticalID string `json:"practical_lecturer_id,omitempty"`
	TutorialID  string `json:"tutorial_lecturer_id,omitempty"`
	ClassID     string `json:"class_lecturer_id,omitempty"`
}

func (l Lecturers) IsZero() bool { return l == Lecturers{} }

func (l Lecturers) IDs() []string {
	ids := make([]string, 0, 3)
	for _, id := range []string{l.PracticalID, l.TutorialID, l.ClassID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type Course struct {
	ID string `json:"id"`
	CourseKey
	Lecturers
	StudentCount int    `json:"student_count"`
	ExamID       string `json:"exam_id"`
}

type Exam struct {
	ID       string    `json:"id"`
	CourseID string    `json:"course_id"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	// Active is set while the exam has venue sessions.
	Active bool `json:"active"`
	// Output holds the JSON summary of the last assignment run.
	Output    string    `json:"output,omitempty"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (e Exam) Window() attendance.Window {
	return attendance.Window{Start: e.StartAt, End: e.EndAt}
}

// VenueExam links an exam to a venue session with the number of students seated there.
type VenueExam struct {
	ExamID    string `json:"exam_id"`
	SessionID string `json:"session_id"`
	Capacity  int    `json:"capacity"`
}

// Report groups the invigilator assignments of one venue session of an exam.
type Report struct {
	ID        string `json:"id"`
	ExamID    string `json:"exam_id"`
	SessionID string `json:"session_id"`
}

type Response string

const (
	ResponsePending  Response = "pending"
	ResponseAccepted Response = "accepted"
	ResponseDeclined Response = "declined"
)

// Assignment is the attendance record of one invigilator in one report.
// Zero CheckIn/CheckOut mean "not recorded".
type Assignment struct {
	ID            string            `json:"id"`
	ReportID      string            `json:"report_id"`
	ExamID        string            `json:"exam_id"`
	InvigilatorID string            `json:"invigilator_id"`
	CheckIn       time.Time         `json:"check_in,omitempty"`
	CheckOut      time.Time         `json:"check_out,omitempty"`
	TimeCreate    time.Time         `json:"time_create"`
	TimeExpire    time.Time         `json:"time_expire"`
	Response      Response          `json:"response"`
	Remark        attendance.Remark `json:"remark"`
	RejectReason  string            `json:"reject_reason,omitempty"`
	UpdatedBy     string            `json:"updated_by"`
	CreatedAt     time.Time         `json:"created_at"` // UTC
	UpdatedAt     time.Time         `json:"updated_at"` // UTC
}

func (a Assignment) Declined() bool { return a.Response == ResponseDeclined }

func (a Assignment) HasAttendance() bool { return !a.CheckIn.IsZero() || !a.CheckOut.IsZero() }

// HoldsPending reports whether the assignee still carries the exam duration as pending hours.
func (a Assignment) HoldsPending() bool {
	return !a.Declined() && (a.CheckIn.IsZero() || a.CheckOut.IsZero())
}

func (a Assignment) record() attendance.Record {
	return attendance.Record{CheckIn: a.CheckIn, CheckOut: a.CheckOut, Declined: a.Declined()}
}

// Duty is an assignment seen from the invigilator's calendar.
type Duty struct {
	AssignmentID string    `json:"assignment_id"`
	ReportID     string    `json:"report_id"`
	ExamID       string    `json:"exam_id"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Response     Response  `json:"response"`
}

func (d Duty) Window() attendance.Window {
	return attendance.Window{Start: d.StartAt, End: d.EndAt}
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// CardEvent is a tap on a card reader.
type CardEvent struct {
	ID        string    `json:"id"`
	CardID    string    `json:"card_id" validate:"required"`
	UserID    string    `json:"user_id"`
	Direction Direction `json:"direction" validate:"required,oneof=in out"`
	At        time.Time `json:"at" validate:"required"`
}

type CardEventResult struct {
	Assignment Assignment `json:"assignment"`
	// Ignored is set when the event did not change the assignment.
	Ignored bool `json:"ignored"`
}

type VenueCapacity struct {
	VenueID  string `json:"venue_id" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
}

// Slot is a scheduling request: where, when and how long offers stay open.
type Slot struct {
	StartAt  time.Time       `json:"start_at" validate:"required"`
	EndAt    time.Time       `json:"end_at" validate:"required"`
	Venues   []VenueCapacity `json:"venues" validate:"required,min=1,dive"`
	OpenAt   time.Time       `json:"open_at" validate:"required"`
	ExpireAt time.Time       `json:"expire_at" validate:"required"`
}

func (s Slot) Window() attendance.Window {
	return attendance.Window{Start: s.StartAt, End: s.EndAt}
}

// NewExam contains information needed to create and schedule an exam.
type NewExam struct {
	Course       CourseKey `json:"course"`
	StudentCount int       `json:"student_count" validate:"omitempty,min=0"`
	Lecturers
	Slot
}

// AttendanceEdit carries the new timestamps of an assignment; zero values clear them.
type AttendanceEdit struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// OfferResponse answers an invigilation offer.
type OfferResponse struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type ExamFilter struct {
	CourseID string    `query:"course_id"`
	Active   *bool     `query:"active"`
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
}

type AssignmentFilter struct {
	IDs           []string
	ExamID        string
	ReportIDs     []string
	InvigilatorID string
	Responses     []Response
	ExpiresAfter  time.Time
	ExpiresBefore time.Time
}

// ExamDetail is an exam with its course and its assignment graph.
type ExamDetail struct {
	Exam    Exam           `json:"exam"`
	Course  Course         `json:"course"`
	Reports []ReportDetail `json:"reports"`
}

type ReportDetail struct {
	Report
	VenueID     string       `json:"venue_id"`
	Capacity    int          `json:"capacity"`
	Assignments []Assignment `json:"assignments"`
}

// Offer is one unanswered invigilation offer.
type Offer struct {
	AssignmentID string    `json:"assignment_id"`
	ExamID       string    `json:"exam_id"`
	CourseCode   string    `json:"course_code"`
	VenueID      string    `json:"venue_id"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	TimeExpire   time.Time `json:"time_expire"`
}

// OfferDigest groups the offers of one invigilator that are nearing expiry.
type OfferDigest struct {
	InvigilatorID string  `json:"invigilator_id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Offers        []Offer `json:"offers"`
}

// ImportRow is a raw spreadsheet row of a bulk exam import.
type ImportRow struct {
	Line       int
	Department string
	Code       string
	Section    string
	Intake     string
	Date       string // 2006-01-02
	Start      string // 15:04
	End        string // 15:04
	Venue      string
	Capacity   string
	Open       string // 2006-01-02 15:04
	Expire     string // 2006-01-02 15:04
}

type RowResult struct {
	Line    int    `json:"line"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BulkResult aggregates a per-item partial-success import.
type BulkResult struct {
	Added    int         `json:"added_count"`
	Failed   int         `json:"failed_count"`
	Messages []RowResult `json:"messages"`
}

func (r *BulkResult) add(line int, err error, msg string) {
	res := RowResult{Line: line, Success: err == nil, Message: msg}
	if err != nil {
		res.Message = err.Error()
		r.Failed++
	} else {
		r.Added++
	}
	r.Messages = append(r.Messages, res)
}
