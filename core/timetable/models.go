package timetable

import (
	"context"
	"time"
)

type ClassType string

const (
	ClassLecture   ClassType = "LECTURE"
	ClassTutorial  ClassType = "TUTORIAL"
	ClassPractical ClassType = "PRACTICAL"
	ClassLab       ClassType = "LAB"
)

// Group is one (intake, course code, section) triple attending an activity.
type Group struct {
	Intake     string `json:"intake"`
	CourseCode string `json:"course_code"`
	Section    string `json:"section"`
}

type Activity struct {
	ClassType  ClassType `json:"class_type"`
	Start      string    `json:"start"` // HH:MM
	End        string    `json:"end"`   // HH:MM
	Room       string    `json:"room"`
	CourseName string    `json:"course_name"`
	Groups     []Group   `json:"groups"`
}

// Document is the structured form of one lecturer's weekly timetable.
type Document struct {
	Title    string                `json:"title"`
	Lecturer string                `json:"lecturer"`
	Days     map[string][]Activity `json:"days"`
}

// Row is one stored timetable line, keyed by lecturer name.
type Row struct {
	ID         string    `json:"id"`
	Lecturer   string    `json:"lecturer"`
	Day        string    `json:"day"`
	ClassType  ClassType `json:"class_type"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Room       string    `json:"room"`
	CourseName string    `json:"course_name"`
	Intake     string    `json:"intake"`
	CourseCode string    `json:"course_code"`
	Section    string    `json:"section"`
	ImportedAt time.Time `json:"imported_at"` // UTC
}

type RowFilter struct {
	Lecturer   string `query:"lecturer"`
	CourseCode string `query:"course_code"`
	Section    string `query:"section"`
	Intake     string `query:"intake"`
}

// Source is a document to import: its name (for reporting) and extracted text.
type Source struct {
	Name string `json:"name"`
	Text string `json:"text" validate:"required"`
}

type ImportSummary struct {
	Lecturer string `json:"lecturer"`
	Title    string `json:"title"`
	Rows     int    `json:"rows"`
}

type SourceResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type BulkResult struct {
	Added    int            `json:"added_count"`
	Failed   int            `json:"failed_count"`
	Messages []SourceResult `json:"messages"`
}

type Repository interface {
	// ReplaceLecturerRows atomically swaps every row of lecturer for rows.
	ReplaceLecturerRows(ctx context.Context, lecturer string, rows []Row) error
	QueryRows(ctx context.Context, filter *RowFilter) ([]Row, error)
}
