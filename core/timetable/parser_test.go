package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/core"
)

const sampleTimetable = `MULTIMEDIA UNIVERSITY
Timetable for : ASSOC. PROF. DR. LEE  CHIN WEI (FCI)
Trimester 2410
MON - SAT
MONDAY
LECTURE 08:00 - 10:00 Room: CQAR1001 Programming Fundamentals
202409 TCP1101 TC1L 202409 TCP1101 TC2L
TUTORIAL 10:00-11:00 Room CQCR2002 Programming Fundamentals 202409 TCP1101 TT1L
TUESDAY
LAB 14.00 - 16.00 Room: CNMX1005 Data Structures 202405 TDS2101 TL3L
PRACTICAL 18:00 - 17:00 Room: CNMX1005 Data Structures 202405 TDS2101 TL3L
WEDNESDAY
Public holiday
`

func TestParse(t *testing.T) {
	doc, err := Parse(sampleTimetable)
	require.NoError(t, err)

	assert.Equal(t, "MULTIMEDIA UNIVERSITY", doc.Title)
	assert.Equal(t, "Assoc. Prof. Dr. Lee Chin Wei", doc.Lecturer)
	require.Len(t, doc.Days, 2, "days without activities are dropped")

	monday := doc.Days["MONDAY"]
	require.Len(t, monday, 2)
	assert.Equal(t, Activity{
		ClassType:  ClassLecture,
		Start:      "08:00",
		End:        "10:00",
		Room:       "CQAR1001",
		CourseName: "Programming Fundamentals",
		Groups: []Group{
			{Intake: "202409", CourseCode: "TCP1101", Section: "TC1L"},
			{Intake: "202409", CourseCode: "TCP1101", Section: "TC2L"},
		},
	}, monday[0])
	assert.Equal(t, ClassTutorial, monday[1].ClassType)
	assert.Equal(t, "CQCR2002", monday[1].Room)

	tuesday := doc.Days["TUESDAY"]
	require.Len(t, tuesday, 1, "activities ending before they start are skipped")
	assert.Equal(t, ClassLab, tuesday[0].ClassType)
	assert.Equal(t, "14:00", tuesday[0].Start)
	assert.Equal(t, "16:00", tuesday[0].End)
	assert.Equal(t, "Data Structures", tuesday[0].CourseName)

	rows := doc.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, "MONDAY", rows[0].Day)
	assert.Equal(t, "TUESDAY", rows[3].Day)
	for _, r := range rows {
		assert.Equal(t, doc.Lecturer, r.Lecturer)
	}
}

func TestParse_WithoutAnchor(t *testing.T) {
	doc, err := Parse("Timetable for: Mr. Tan Ah Kow\nFri\nPRACTICAL 9:00 - 11:00 Room: CNMX1005 Networks 202401 TNC2101 TP1L")
	require.NoError(t, err)
	assert.Equal(t, "Mr. Tan Ah Kow", doc.Lecturer)
	require.Len(t, doc.Days["FRIDAY"], 1)
	assert.Equal(t, "09:00", doc.Days["FRIDAY"][0].Start)
	assert.Equal(t, "Networks", doc.Days["FRIDAY"][0].CourseName)
}

func TestParse_MixedCaseKeywords(t *testing.T) {
	doc, err := Parse("Timetable for: Dr. Siti Aminah\nThursday\n" +
		"Lecture 08:00-10:00 Room: CQAR1001 Calculus 202409 TMA1101 TC1L\n" +
		"tutorial 10:00 - 11:00 room cqcr2002 Calculus 202409 TMA1101 TT1L")
	require.NoError(t, err)

	thursday := doc.Days["THURSDAY"]
	require.Len(t, thursday, 2)
	assert.Equal(t, ClassLecture, thursday[0].ClassType)
	assert.Equal(t, "Calculus", thursday[0].CourseName)
	assert.Equal(t, ClassTutorial, thursday[1].ClassType)
	assert.Equal(t, "CQCR2002", thursday[1].Room)
	assert.Equal(t, []Group{{Intake: "202409", CourseCode: "TMA1101", Section: "TT1L"}}, thursday[1].Groups)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "no lecturer", text: "MONDAY\nLECTURE 08:00 - 10:00 Room: CQAR1001 Programming 202409 TCP1101 TC1L"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}
}

func TestDocument_RowsDeduplicates(t *testing.T) {
	act := Activity{
		ClassType: ClassLecture, Start: "08:00", End: "10:00", Room: "CQAR1001",
		Groups: []Group{{Intake: "202409", CourseCode: "TCP1101", Section: "TC1L"}},
	}
	doc := Document{Lecturer: "Dr. Siti", Days: map[string][]Activity{
		"FRIDAY": {act},
		"MONDAY": {act, act},
	}}
	rows := doc.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "MONDAY", rows[0].Day)
	assert.Equal(t, "FRIDAY", rows[1].Day)
}

func TestNormalizeLecturer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "  dr.   siti   aminah binti ahmad ", want: "Dr. Siti Aminah binti Ahmad"},
		{in: "PROF MUTHU A/L RAMAN (FCI)", want: "Prof. Muthu a/l Raman"},
		{in: "ts. ir. wong", want: "Ts. Ir. Wong"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLecturer(tt.in), "NormalizeLecturer(%q)", tt.in)
	}
}
