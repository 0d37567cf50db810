package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/attendance"
	"github.com/trezcool/invigil/core/ledger"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/tests"
)

const actor = "admin-1"

var (
	ctx = context.Background()
	day = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func venue(id string, capacity int) schedule.VenueCapacity {
	return schedule.VenueCapacity{VenueID: id, Capacity: capacity}
}

func slot(start, end time.Time, venues ...schedule.VenueCapacity) schedule.Slot {
	return schedule.Slot{
		StartAt:  start,
		EndAt:    end,
		Venues:   venues,
		OpenAt:   day.Add(-72 * time.Hour),
		ExpireAt: day.Add(-24 * time.Hour),
	}
}

func newExam(code string, s schedule.Slot) schedule.NewExam {
	return schedule.NewExam{
		Course: schedule.CourseKey{Department: "FCI", Code: code, Section: "TC1L", Intake: "202409"},
		Slot:   s,
	}
}

func assertAccount(t *testing.T, env *testutil.Env, id string, wantCum, wantPen float64) {
	t.Helper()
	cum, pen := testutil.Account(t, env.UserRepo, id)
	assert.InDelta(t, wantCum, cum, 1e-6, "cumulative hours")
	assert.InDelta(t, wantPen, pen, 1e-6, "pending hours")
}

func onlyAssignment(t *testing.T, detail schedule.ExamDetail) schedule.Assignment {
	t.Helper()
	require.Len(t, detail.Reports, 1)
	require.Len(t, detail.Reports[0].Assignments, 1)
	return detail.Reports[0].Assignments[0]
}

func TestService_CreateCompleteAdjust(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateVenue(t, env.Store, "V1", 40)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 30))))
	require.NoError(t, err)
	assert.True(t, detail.Exam.Active)
	assert.Equal(t, actor, detail.Exam.UpdatedBy)
	assert.NotEmpty(t, detail.Exam.Output)
	assert.Equal(t, detail.Exam.ID, detail.Course.ExamID)

	asg := onlyAssignment(t, detail)
	assert.Equal(t, inv.ID, asg.InvigilatorID)
	assert.Equal(t, schedule.ResponsePending, asg.Response)
	assert.Equal(t, attendance.RemarkPending, asg.Remark)
	assertAccount(t, env, inv.ID, 0, 2)

	asg, err = env.Schedule.EditAttendance(ctx, actor, asg.ID, schedule.AttendanceEdit{CheckIn: at(10, 0), CheckOut: at(12, 0)})
	require.NoError(t, err)
	assert.Equal(t, attendance.RemarkCompleted, asg.Remark)
	assert.Equal(t, schedule.ResponseAccepted, asg.Response)
	assertAccount(t, env, inv.ID, 2, 0)

	detail, err = env.Schedule.AdjustExam(ctx, actor, detail.Exam.ID, slot(at(10, 0), at(13, 0), venue("V1", 30)))
	require.NoError(t, err)
	asg = onlyAssignment(t, detail)
	assert.Equal(t, inv.ID, asg.InvigilatorID)
	assert.True(t, asg.CheckIn.IsZero(), "attendance is rebuilt")
	assert.Equal(t, at(13, 0), detail.Exam.EndAt)
	assertAccount(t, env, inv.ID, 2, 3)
}

func TestService_ResetIsIdempotent(t *testing.T) {
	env := testutil.Setup(t)
	inv1 := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	inv2 := testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")
	testutil.CreateVenue(t, env.Store, "V1", 100)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(9, 0), at(11, 30), venue("V1", 80))))
	require.NoError(t, err)
	require.Len(t, detail.Reports, 1)
	require.Len(t, detail.Reports[0].Assignments, 2)
	assertAccount(t, env, inv1.ID, 0, 2.5)
	assertAccount(t, env, inv2.ID, 0, 2.5)

	for i := 0; i < 2; i++ {
		exam, err := env.Schedule.ResetExamRelations(ctx, actor, detail.Exam.ID)
		require.NoError(t, err)
		assert.False(t, exam.Active)
		assert.Empty(t, exam.Output)
		assertAccount(t, env, inv1.ID, 0, 0)
		assertAccount(t, env, inv2.ID, 0, 0)
	}

	got, err := env.Schedule.GetExam(ctx, detail.Exam.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reports)
	sessions, err := env.Store.QueryOverlappingSessions(ctx, "V1", at(0, 0), at(23, 0))
	require.NoError(t, err)
	assert.Empty(t, sessions, "orphaned sessions are removed")

	// a never scheduled exam resets to itself
	_, err = env.Schedule.ResetExamRelations(ctx, actor, detail.Exam.ID)
	require.NoError(t, err)
	_, err = env.Schedule.ResetExamRelations(ctx, actor, "nope")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Conservation(t *testing.T) {
	env := testutil.Setup(t)
	invs := []user.User{
		testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1"),
		testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2"),
		testutil.CreateInvigilator(t, env.UserRepo, "Chong", "C3"),
	}
	testutil.CreateVenue(t, env.Store, "V1", 100)
	testutil.CreateVenue(t, env.Store, "V2", 100)

	totalPending := func() float64 {
		var sum float64
		for _, inv := range invs {
			_, pen := testutil.Account(t, env.UserRepo, inv.ID)
			sum += pen
		}
		return sum
	}

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(9, 0), at(11, 0), venue("V1", 40), venue("V2", 20))))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, totalPending(), 1e-6)

	_, err = env.Schedule.AdjustExam(ctx, actor, detail.Exam.ID, slot(at(14, 0), at(17, 0), venue("V1", 80)))
	require.NoError(t, err)
	assert.InDelta(t, 6.0, totalPending(), 1e-6)

	require.NoError(t, env.Schedule.DeleteExam(ctx, actor, detail.Exam.ID))
	assert.InDelta(t, 0.0, totalPending(), 1e-6)

	_, err = env.Schedule.GetExam(ctx, detail.Exam.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = env.Store.FindCourse(ctx, schedule.CourseKey{Department: "FCI", Code: "TCP1101", Section: "TC1L", Intake: "202409"})
	assert.True(t, core.IsNotFound(err))
}

func TestService_CreateExamAndRelated_Errors(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateVenue(t, env.Store, "V1", 40)
	testutil.CreateVenue(t, env.Store, "V2", 40)

	first, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 30))))
	require.NoError(t, err)

	noOpen := slot(at(14, 0), at(15, 0), venue("V2", 10))
	noOpen.OpenAt = time.Time{}

	tests := []struct {
		name      string
		ne        schedule.NewExam
		wantIs    error
		wantValid bool
	}{
		{name: "duplicate schedule", ne: newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V2", 30))), wantIs: core.ErrDuplicateSchedule},
		{name: "course already scheduled", ne: newExam("TCP1101", slot(at(14, 0), at(15, 0), venue("V2", 30))), wantIs: core.ErrCourseScheduled},
		{name: "double booked venue", ne: newExam("TMA1101", slot(at(11, 0), at(13, 0), venue("V1", 10))), wantIs: core.ErrDoubleBooked},
		{name: "start after end", ne: newExam("TMA1101", slot(at(15, 0), at(14, 0), venue("V2", 10))), wantValid: true},
		{name: "missing open", ne: newExam("TMA1101", noOpen), wantValid: true},
		{name: "venue too small", ne: newExam("TMA1101", slot(at(14, 0), at(15, 0), venue("V2", 50))), wantValid: true},
		{name: "unknown venue", ne: newExam("TMA1101", slot(at(14, 0), at(15, 0), venue("V9", 10))), wantValid: true},
		{name: "venue listed twice", ne: newExam("TMA1101", slot(at(14, 0), at(15, 0), venue("V2", 10), venue("V2", 10))), wantValid: true},
		// the only invigilator is blocked by the rest gap
		{name: "not enough invigilators", ne: newExam("TMA1101", slot(at(12, 10), at(13, 0), venue("V2", 40))), wantValid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Schedule.CreateExamAndRelated(ctx, actor, tt.ne)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.True(t, errors.Is(err, tt.wantIs), "got %v", err)
				var conflict *core.ConflictError
				assert.True(t, errors.As(err, &conflict))
			}
			if tt.wantValid {
				assert.True(t, core.IsValidation(err), "got %v", err)
			}
			// failures leave the ledger and the first exam untouched
			assertAccount(t, env, inv.ID, 0, 2)
		})
	}

	exams, err := env.Schedule.QueryExams(ctx, nil)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, first.Exam.ID, exams[0].ID)
}

func TestService_PicksLeastLoadedAndSkipsLecturers(t *testing.T) {
	env := testutil.Setup(t)
	inv1 := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	inv2 := testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")
	testutil.CreateVenue(t, env.Store, "V1", 40)

	first, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(9, 0), at(11, 0), venue("V1", 10))))
	require.NoError(t, err)
	busy := onlyAssignment(t, first).InvigilatorID

	second, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TMA1101", slot(at(14, 0), at(15, 0), venue("V1", 10))))
	require.NoError(t, err)
	assert.NotEqual(t, busy, onlyAssignment(t, second).InvigilatorID, "least loaded invigilator first")

	// the lecturer of a course never invigilates it
	nextDay := 24 * time.Hour
	ne := newExam("TSE2101", slot(at(9, 0).Add(nextDay), at(10, 0).Add(nextDay), venue("V1", 10)))
	ne.Lecturers = schedule.Lecturers{ClassID: inv1.ID}
	third, err := env.Schedule.CreateExamAndRelated(ctx, actor, ne)
	require.NoError(t, err)
	assert.Equal(t, inv2.ID, onlyAssignment(t, third).InvigilatorID)
	assert.Equal(t, inv1.ID, third.Course.ClassID)
}

func TestService_GapRule(t *testing.T) {
	env := testutil.Setup(t)
	testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")
	for _, id := range []string{"V1", "V2", "V3"} {
		testutil.CreateVenue(t, env.Store, id, 40)
	}

	e1, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10))))
	require.NoError(t, err)
	x := onlyAssignment(t, e1).InvigilatorID

	// 15 minutes of rest is not enough
	e2, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TMA1101", slot(at(12, 15), at(13, 0), venue("V2", 10))))
	require.NoError(t, err)
	a2 := onlyAssignment(t, e2)
	require.NotEqual(t, x, a2.InvigilatorID)

	_, err = env.Schedule.Reassign(ctx, actor, a2.ReportID, map[string]string{a2.ID: x})
	var gapErr *core.InsufficientGapError
	require.True(t, errors.As(err, &gapErr), "got %v", err)
	assert.Equal(t, e1.Exam.ID, gapErr.ExamID)
	assertAccount(t, env, x, 0, 2)

	// 35 minutes is
	e3, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TSE2101", slot(at(12, 35), at(13, 0), venue("V3", 10))))
	require.NoError(t, err)
	assert.Equal(t, x, onlyAssignment(t, e3).InvigilatorID)
}

func TestService_Reassign(t *testing.T) {
	env := testutil.Setup(t)
	invs := []user.User{
		testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1"),
		testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2"),
		testutil.CreateInvigilator(t, env.UserRepo, "Chong", "C3"),
	}
	testutil.CreateVenue(t, env.Store, "V1", 100)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 80))))
	require.NoError(t, err)
	require.Len(t, detail.Reports, 1)
	report := detail.Reports[0]
	require.Len(t, report.Assignments, 2)
	a1, a2 := report.Assignments[0], report.Assignments[1]

	var free string
	for _, inv := range invs {
		if inv.ID != a1.InvigilatorID && inv.ID != a2.InvigilatorID {
			free = inv.ID
		}
	}
	require.NotEmpty(t, free)

	t.Run("duplicate slot", func(t *testing.T) {
		_, err := env.Schedule.Reassign(ctx, actor, report.ID, map[string]string{a1.ID: a2.InvigilatorID})
		assert.True(t, errors.Is(err, core.ErrDuplicateSlot), "got %v", err)
	})

	t.Run("unknown assignment", func(t *testing.T) {
		_, err := env.Schedule.Reassign(ctx, actor, report.ID, map[string]string{"nope": free})
		assert.True(t, core.IsNotFound(err), "got %v", err)
	})

	t.Run("swap conserves pending", func(t *testing.T) {
		rd, err := env.Schedule.Reassign(ctx, actor, report.ID, map[string]string{a1.ID: a2.InvigilatorID, a2.ID: a1.InvigilatorID})
		require.NoError(t, err)
		assert.Len(t, rd.Assignments, 2)
		assertAccount(t, env, a1.InvigilatorID, 0, 2)
		assertAccount(t, env, a2.InvigilatorID, 0, 2)
	})

	t.Run("move to free invigilator", func(t *testing.T) {
		got, err := env.Store.GetAssignment(ctx, a1.ID)
		require.NoError(t, err)
		displaced := got.InvigilatorID

		_, err = env.Schedule.Reassign(ctx, actor, report.ID, map[string]string{a1.ID: free})
		require.NoError(t, err)
		assertAccount(t, env, displaced, 0, 0)
		assertAccount(t, env, free, 0, 2)

		got, err = env.Store.GetAssignment(ctx, a1.ID)
		require.NoError(t, err)
		assert.Equal(t, free, got.InvigilatorID)
		assert.Equal(t, schedule.ResponsePending, got.Response)
		assert.Equal(t, actor, got.UpdatedBy)
	})

	t.Run("attendance recorded", func(t *testing.T) {
		_, err := env.Schedule.EditAttendance(ctx, actor, a2.ID, schedule.AttendanceEdit{CheckIn: at(9, 55)})
		require.NoError(t, err)
		got, err := env.Store.GetAssignment(ctx, a2.ID)
		require.NoError(t, err)
		other := a2.InvigilatorID
		if other == got.InvigilatorID {
			other = a1.InvigilatorID
		}
		_, err = env.Schedule.Reassign(ctx, actor, report.ID, map[string]string{a2.ID: other})
		assert.True(t, core.IsValidation(err), "got %v", err)
	})
}

func TestService_EditAttendance_Validation(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateVenue(t, env.Store, "V1", 40)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10))))
	require.NoError(t, err)
	asg := onlyAssignment(t, detail)

	tests := []struct {
		name      string
		edit      schedule.AttendanceEdit
		wantOOW   bool
		wantOrder bool
	}{
		{name: "too early", edit: schedule.AttendanceEdit{CheckIn: at(8, 59)}, wantOOW: true},
		{name: "too late", edit: schedule.AttendanceEdit{CheckIn: at(10, 0), CheckOut: at(13, 1)}, wantOOW: true},
		{name: "reversed", edit: schedule.AttendanceEdit{CheckIn: at(11, 0), CheckOut: at(10, 30)}, wantOrder: true},
		{name: "check-out only", edit: schedule.AttendanceEdit{CheckOut: at(11, 0)}, wantOrder: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Schedule.EditAttendance(ctx, actor, asg.ID, tt.edit)
			var oow *core.OutOfWindowError
			var ord *core.OrderingError
			if tt.wantOOW {
				assert.True(t, errors.As(err, &oow), "got %v", err)
			}
			if tt.wantOrder {
				assert.True(t, errors.As(err, &ord), "got %v", err)
			}
			got, err := env.Store.GetAssignment(ctx, asg.ID)
			require.NoError(t, err)
			assert.Equal(t, asg, got, "no state change on failure")
			assertAccount(t, env, inv.ID, 0, 2)
		})
	}

	// late check-in then early check-out keeps the late marker
	got, err := env.Schedule.EditAttendance(ctx, actor, asg.ID, schedule.AttendanceEdit{CheckIn: at(10, 30), CheckOut: at(11, 30)})
	require.NoError(t, err)
	assert.Equal(t, attendance.RemarkCheckInLate, got.Remark)
	assertAccount(t, env, inv.ID, 1, 0)

	// clearing the attendance reverses the ledger
	got, err = env.Schedule.EditAttendance(ctx, actor, asg.ID, schedule.AttendanceEdit{})
	require.NoError(t, err)
	assert.Equal(t, attendance.RemarkPending, got.Remark)
	assertAccount(t, env, inv.ID, 0, 2)
}

func TestService_RespondToOffer(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateVenue(t, env.Store, "V1", 100)
	testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 80))))
	require.NoError(t, err)
	asgs := detail.Reports[0].Assignments
	require.Len(t, asgs, 2)
	var mine, theirs schedule.Assignment
	for _, a := range asgs {
		if a.InvigilatorID == inv.ID {
			mine = a
		} else {
			theirs = a
		}
	}

	origNow := schedule.NowFunc
	defer func() { schedule.NowFunc = origNow }()

	schedule.NowFunc = func() time.Time { return day.Add(-100 * time.Hour) }
	_, err = env.Schedule.RespondToOffer(ctx, inv.ID, mine.ID, schedule.OfferResponse{Accept: true})
	assert.True(t, core.IsValidation(err), "offer not open yet")

	schedule.NowFunc = func() time.Time { return day.Add(-48 * time.Hour) }
	got, err := env.Schedule.RespondToOffer(ctx, inv.ID, mine.ID, schedule.OfferResponse{Reason: " sick "})
	require.NoError(t, err)
	assert.Equal(t, schedule.ResponseDeclined, got.Response)
	assert.Equal(t, attendance.RemarkRejected, got.Remark)
	assert.Equal(t, "sick", got.RejectReason)
	assertAccount(t, env, inv.ID, 0, 0)

	_, err = env.Schedule.RespondToOffer(ctx, inv.ID, mine.ID, schedule.OfferResponse{Accept: true})
	assert.True(t, core.IsValidation(err), "already answered")
	_, err = env.Schedule.EditAttendance(ctx, actor, mine.ID, schedule.AttendanceEdit{CheckIn: at(10, 0)})
	assert.True(t, core.IsValidation(err), "declined is terminal")

	got, err = env.Schedule.RespondToOffer(ctx, theirs.InvigilatorID, theirs.ID, schedule.OfferResponse{Accept: true})
	require.NoError(t, err)
	assert.Equal(t, schedule.ResponseAccepted, got.Response)
	assertAccount(t, env, theirs.InvigilatorID, 0, 2)

	schedule.NowFunc = func() time.Time { return day }
	exam, err := env.Schedule.GetExam(ctx, detail.Exam.ID)
	require.NoError(t, err)
	assert.NotContains(t, exam.Exam.Output, inv.ID, "declined invigilators leave the summary")

	// a declined slot can be offered to someone else
	_, err = env.Schedule.Reassign(ctx, actor, mine.ReportID, map[string]string{mine.ID: inv.ID})
	require.NoError(t, err)
	assertAccount(t, env, inv.ID, 0, 2)
}

func TestService_RecordCardEvent(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "CARD01")
	testutil.CreateVenue(t, env.Store, "V1", 40)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10))))
	require.NoError(t, err)
	asg := onlyAssignment(t, detail)

	tests := []struct {
		name        string
		ev          schedule.CardEvent
		wantIgnored bool
		wantNF      bool
		wantIn      time.Time
		wantOut     time.Time
		wantRemark  attendance.Remark
		wantCum     float64
		wantPen     float64
	}{
		{name: "unknown card", ev: schedule.CardEvent{CardID: "NOPE", Direction: schedule.DirectionIn, At: at(9, 50)}, wantNF: true, wantPen: 2},
		{name: "no duty around", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionIn, At: at(14, 0)}, wantNF: true, wantPen: 2},
		{
			name: "check in", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionIn, At: at(9, 50)},
			wantIn: at(9, 50), wantRemark: attendance.RemarkCheckIn, wantPen: 2,
		},
		{
			name: "same event again", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionIn, At: at(9, 50)},
			wantIgnored: true, wantIn: at(9, 50), wantRemark: attendance.RemarkCheckIn, wantPen: 2,
		},
		{
			name: "first check-in wins", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionIn, At: at(9, 55)},
			wantIgnored: true, wantIn: at(9, 50), wantRemark: attendance.RemarkCheckIn, wantPen: 2,
		},
		{
			name: "early check-out", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionOut, At: at(11, 30)},
			wantIn: at(9, 50), wantOut: at(11, 30), wantRemark: attendance.RemarkCheckOutEarly, wantCum: 1.5,
		},
		{
			name: "latest check-out wins", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionOut, At: at(12, 10)},
			wantIn: at(9, 50), wantOut: at(12, 10), wantRemark: attendance.RemarkCompleted, wantCum: 2,
		},
		{
			name: "older check-out ignored", ev: schedule.CardEvent{CardID: "CARD01", Direction: schedule.DirectionOut, At: at(12, 5)},
			wantIgnored: true, wantIn: at(9, 50), wantOut: at(12, 10), wantRemark: attendance.RemarkCompleted, wantCum: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.Schedule.RecordCardEvent(ctx, tt.ev)
			if tt.wantNF {
				assert.True(t, core.IsNotFound(err), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantIgnored, res.Ignored)
			}

			got, err := env.Store.GetAssignment(ctx, asg.ID)
			require.NoError(t, err)
			assert.True(t, tt.wantIn.Equal(got.CheckIn), "check-in %v", got.CheckIn)
			assert.True(t, tt.wantOut.Equal(got.CheckOut), "check-out %v", got.CheckOut)
			if tt.wantRemark != "" {
				assert.Equal(t, tt.wantRemark, got.Remark)
			}
			assertAccount(t, env, inv.ID, tt.wantCum, tt.wantPen)
		})
	}
}

func TestService_PendingOfferDigests(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateUser(t, env.UserRepo, "Ali", "ali@test.my", "C1", []string{user.RoleInvigilator}, true)
	testutil.CreateVenue(t, env.Store, "V1", 40)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10))))
	require.NoError(t, err)
	asg := onlyAssignment(t, detail)

	now := day.Add(-48 * time.Hour)
	digests, err := env.Schedule.PendingOfferDigests(ctx, now, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, digests, 1)
	assert.Equal(t, inv.ID, digests[0].InvigilatorID)
	assert.Equal(t, "ali@test.my", digests[0].Email)
	require.Len(t, digests[0].Offers, 1)
	offer := digests[0].Offers[0]
	assert.Equal(t, asg.ID, offer.AssignmentID)
	assert.Equal(t, "TCP1101", offer.CourseCode)
	assert.Equal(t, "V1", offer.VenueID)
	assert.True(t, offer.TimeExpire.Equal(day.Add(-24*time.Hour)))

	// outside the window
	digests, err = env.Schedule.PendingOfferDigests(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, digests)

	// the sweep is read-only
	assertAccount(t, env, inv.ID, 0, 2)
	got, err := env.Store.GetAssignment(ctx, asg.ID)
	require.NoError(t, err)
	assert.Equal(t, asg, got)
}

func TestService_ImportExams(t *testing.T) {
	env := testutil.Setup(t)
	for _, name := range []string{"Ali", "Bala", "Chong"} {
		testutil.CreateInvigilator(t, env.UserRepo, name, "")
	}
	testutil.CreateVenue(t, env.Store, "V1", 40)
	testutil.CreateVenue(t, env.Store, "V2", 40)

	row := func(line int, code, date, start, end, venue string) schedule.ImportRow {
		return schedule.ImportRow{
			Line: line, Department: "FCI", Code: code, Section: "TC1L", Intake: "202409",
			Date: date, Start: start, End: end, Venue: venue, Capacity: "30",
			Open: "2024-05-01 08:00", Expire: "2024-05-30 17:00",
		}
	}
	rows := []schedule.ImportRow{
		row(2, "TCP1101", "2024-06-03", "10:00", "12:00", "V1"),
		row(3, "TCP1101", "2024-06-03", "10:00", "12:00", "V2"),
		row(4, "TMA1101", "June 4th", "10:00", "12:00", "V1"),
		row(5, "TMA1101", "04/06/2024", "14:00", "15:30", "V1"),
		row(6, "TSE2101", "2024-06-03", "11:00", "12:00", "V1"),
	}

	res := env.Schedule.ImportExams(ctx, actor, rows, time.UTC)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Messages, 5)
	for i, want := range []bool{true, true, false, true, false} {
		assert.Equal(t, rows[i].Line, res.Messages[i].Line)
		assert.Equal(t, want, res.Messages[i].Success, res.Messages[i].Message)
	}
	assert.Contains(t, res.Messages[2].Message, "date")

	exams, err := env.Schedule.QueryExams(ctx, nil)
	require.NoError(t, err)
	require.Len(t, exams, 2)
	detail, err := env.Schedule.GetExam(ctx, exams[0].ID)
	require.NoError(t, err)
	assert.Len(t, detail.Reports, 2, "rows of one exam share it")
	assert.Equal(t, "TCP1101", detail.Course.Code)
}

func TestService_ResolvesLecturersFromTimetable(t *testing.T) {
	env := testutil.Setup(t)
	lecturer := testutil.CreateUser(t, env.UserRepo, "Siti Aminah", "", "", []string{user.RoleLecturer, user.RoleInvigilator}, true)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")
	testutil.CreateVenue(t, env.Store, "V1", 40)

	_, err := env.Timetable.Import(ctx, `Faculty of Computing
Timetable for: DR. SITI   AMINAH (FCI)
MON - SUN
MONDAY
LECTURE 08:00 - 10:00 Room: CQAR1001 Programming 202409 TCP1101 TC1L`)
	require.NoError(t, err)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10))))
	require.NoError(t, err)
	assert.Equal(t, lecturer.ID, detail.Course.ClassID)
	assert.Equal(t, inv.ID, onlyAssignment(t, detail).InvigilatorID)
}

func TestService_ConcurrentLedgerUpdates(t *testing.T) {
	env := testutil.Setup(t)
	inv := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateVenue(t, env.Store, "V1", 40)

	var asgs []schedule.Assignment
	codes := []string{"TCP1101", "TMA1101", "TSE2101", "TPL2141"}
	for i, code := range codes {
		offset := time.Duration(i) * 24 * time.Hour
		detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam(code, slot(at(10, 0).Add(offset), at(12, 0).Add(offset), venue("V1", 10))))
		require.NoError(t, err)
		asgs = append(asgs, onlyAssignment(t, detail))
	}
	assertAccount(t, env, inv.ID, 0, 8)

	var wg sync.WaitGroup
	errs := make(chan error, len(asgs))
	for i, asg := range asgs {
		wg.Add(1)
		go func(i int, asg schedule.Assignment) {
			defer wg.Done()
			offset := time.Duration(i) * 24 * time.Hour
			_, err := env.Schedule.EditAttendance(ctx, actor, asg.ID, schedule.AttendanceEdit{
				CheckIn:  at(9, 55).Add(offset),
				CheckOut: at(12, 0).Add(offset),
			})
			errs <- err
		}(i, asg)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assertAccount(t, env, inv.ID, 8, 0)
}

func TestService_SharesVenueSession(t *testing.T) {
	env := testutil.Setup(t)
	for _, name := range []string{"Ali", "Bala", "Chong"} {
		testutil.CreateInvigilator(t, env.UserRepo, name, "C-"+name)
	}
	testutil.CreateVenue(t, env.Store, "HALL", 100)

	e1, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("HALL", 30))))
	require.NoError(t, err)
	e2, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TMA1101", slot(at(10, 0), at(12, 0), venue("HALL", 30))))
	require.NoError(t, err)
	require.Len(t, e1.Reports, 1)
	require.Len(t, e2.Reports, 1)
	assert.Equal(t, e1.Reports[0].SessionID, e2.Reports[0].SessionID)
	assert.NotEqual(t, onlyAssignment(t, e1).InvigilatorID, onlyAssignment(t, e2).InvigilatorID)

	tests := []struct {
		name   string
		code   string
		s      schedule.Slot
		wantIs error
	}{
		{name: "seats exhausted", code: "TSE2101", s: slot(at(10, 0), at(12, 0), venue("HALL", 41)), wantIs: core.ErrDoubleBooked},
		{name: "different window", code: "TSE2101", s: slot(at(11, 0), at(12, 0), venue("HALL", 10)), wantIs: core.ErrDoubleBooked},
		{name: "last seats", code: "TSE2101", s: slot(at(10, 0), at(12, 0), venue("HALL", 40))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam(tt.code, tt.s))
			if tt.wantIs == nil {
				require.NoError(t, err)
				return
			}
			var conflict *core.ConflictError
			require.True(t, errors.As(err, &conflict), "got %v", err)
			assert.True(t, errors.Is(err, tt.wantIs))
			assert.Equal(t, "HALL", conflict.ID)
		})
	}

	sessions, err := env.Store.QueryOverlappingSessions(ctx, "HALL", at(0, 0), at(23, 0))
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	// the session outlives the reset of one of its exams
	_, err = env.Schedule.ResetExamRelations(ctx, actor, e1.Exam.ID)
	require.NoError(t, err)
	sessions, err = env.Store.QueryOverlappingSessions(ctx, "HALL", at(0, 0), at(23, 0))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	links, err := env.Store.QueryVenueExams(ctx, "", sessions[0].ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestService_Reassign_SameExamOtherReport(t *testing.T) {
	env := testutil.Setup(t)
	testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")
	testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")
	testutil.CreateInvigilator(t, env.UserRepo, "Chong", "C3")
	testutil.CreateVenue(t, env.Store, "V1", 40)
	testutil.CreateVenue(t, env.Store, "V2", 40)

	detail, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10), venue("V2", 10))))
	require.NoError(t, err)
	require.Len(t, detail.Reports, 2)
	onV1 := detail.Reports[0].Assignments[0]
	onV2 := detail.Reports[1].Assignments[0]

	_, err = env.Schedule.Reassign(ctx, actor, onV2.ReportID, map[string]string{onV2.ID: onV1.InvigilatorID})
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.True(t, errors.Is(err, core.ErrDuplicateSlot))
	assert.Equal(t, "exam", conflict.Entity)
	assert.Equal(t, detail.Exam.ID, conflict.ID)
	assertAccount(t, env, onV1.InvigilatorID, 0, 2)
	assertAccount(t, env, onV2.InvigilatorID, 0, 2)
}

// interleavedStore runs onLock right before accounts are locked, standing in for a unit
// of work that committed while this one waited for the lock.
type interleavedStore struct {
	schedule.Store
	onLock func(repo schedule.Repository, ids []string)
}

func (s interleavedStore) WithinTx(ctx context.Context, fn func(repo schedule.Repository) error) error {
	return s.Store.WithinTx(ctx, func(repo schedule.Repository) error {
		return fn(interleavedRepo{Repository: repo, onLock: s.onLock})
	})
}

type interleavedRepo struct {
	schedule.Repository
	onLock func(repo schedule.Repository, ids []string)
}

func (r interleavedRepo) LockAccounts(ctx context.Context, ids ...string) ([]ledger.Account, error) {
	r.onLock(r.Repository, ids)
	return r.Repository.LockAccounts(ctx, ids...)
}

func TestService_RechecksDutiesUnderLock(t *testing.T) {
	env := testutil.Setup(t)
	y := testutil.CreateInvigilator(t, env.UserRepo, "Bala", "C2")
	testutil.CreateVenue(t, env.Store, "V1", 40)
	testutil.CreateVenue(t, env.Store, "V2", 40)

	other, err := env.Schedule.CreateExamAndRelated(ctx, actor, newExam("TMA1101", slot(at(10, 0), at(12, 0), venue("V2", 10))))
	require.NoError(t, err)
	taken := onlyAssignment(t, other)
	require.Equal(t, y.ID, taken.InvigilatorID)
	x := testutil.CreateInvigilator(t, env.UserRepo, "Ali", "C1")

	fired := false
	store := interleavedStore{Store: env.Store, onLock: func(repo schedule.Repository, ids []string) {
		if fired {
			return
		}
		fired = true
		// x takes the other exam's slot in the meantime
		taken.InvigilatorID = x.ID
		_, err := repo.UpdateAssignment(ctx, taken)
		require.NoError(t, err)
	}}
	svc := schedule.NewService(store, env.Users, nil, env.Conf.Schedule, env.Log)

	_, err = svc.CreateExamAndRelated(ctx, actor, newExam("TCP1101", slot(at(10, 0), at(12, 0), venue("V1", 10))))
	require.True(t, fired)
	var gapErr *core.InsufficientGapError
	require.True(t, errors.As(err, &gapErr), "got %v", err)
	assert.Equal(t, x.ID, gapErr.InvigilatorID)
	assert.Equal(t, other.Exam.ID, gapErr.ExamID)
	assertAccount(t, env, x.ID, 0, 0)
}
