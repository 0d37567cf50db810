package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/invigil/core/attendance"
)

func TestGapConflict(t *testing.T) {
	day := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }
	duties := []Duty{
		{AssignmentID: "a1", ExamID: "e1", StartAt: at(10, 0), EndAt: at(12, 0), Response: ResponseAccepted},
		{AssignmentID: "a2", ExamID: "e2", StartAt: at(15, 0), EndAt: at(16, 0), Response: ResponseDeclined},
	}

	tests := []struct {
		name     string
		w        attendance.Window
		skip     func(Duty) bool
		wantExam string
	}{
		{name: "overlapping", w: attendance.Window{Start: at(11, 0), End: at(13, 0)}, wantExam: "e1"},
		{name: "15 minutes after", w: attendance.Window{Start: at(12, 15), End: at(13, 0)}, wantExam: "e1"},
		{name: "15 minutes before", w: attendance.Window{Start: at(9, 0), End: at(9, 45)}, wantExam: "e1"},
		{name: "35 minutes after", w: attendance.Window{Start: at(12, 35), End: at(13, 0)}},
		{name: "exactly the gap", w: attendance.Window{Start: at(12, 30), End: at(13, 0)}},
		{name: "declined duty", w: attendance.Window{Start: at(15, 0), End: at(16, 0)}},
		{
			name: "skipped duty",
			w:    attendance.Window{Start: at(10, 0), End: at(12, 0)},
			skip: func(d Duty) bool { return d.AssignmentID == "a1" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := gapConflict(duties, tt.w, 30*time.Minute, tt.skip)
			assert.Equal(t, tt.wantExam != "", ok)
			assert.Equal(t, tt.wantExam, d.ExamID)
		})
	}
}

func TestSlotsFor(t *testing.T) {
	tests := []struct {
		capacity, per, want int
	}{
		{capacity: 30, per: 40, want: 1},
		{capacity: 40, per: 40, want: 1},
		{capacity: 41, per: 40, want: 2},
		{capacity: 120, per: 40, want: 3},
		{capacity: 0, per: 40, want: 1},
		{capacity: 10, per: 0, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slotsFor(tt.capacity, tt.per), "slotsFor(%d, %d)", tt.capacity, tt.per)
	}
}
