package timetable_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/tests"
)

const leeTimetable = `Timetable for: DR. LEE CHIN WEI
MON - FRI
MONDAY
LECTURE 08:00 - 10:00 Room: CQAR1001 Programming 202409 TCP1101 TC1L
TUTORIAL 10:00 - 11:00 Room: CQCR2002 Programming 202409 TCP1101 TC1L
TUESDAY
LAB 14:00 - 16:00 Room: CNMX1005 Programming 202409 TCP1101 TC1L`

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	env := testutil.Setup(t)

	importedAt := time.Date(2024, time.September, 2, 8, 30, 0, 0, time.UTC)
	timetable.NowFunc = func() time.Time { return importedAt }
	t.Cleanup(func() { timetable.NowFunc = time.Now })

	for i := 0; i < 2; i++ {
		sum, err := env.Timetable.Import(ctx, leeTimetable)
		require.NoError(t, err)
		assert.Equal(t, "Dr. Lee Chin Wei", sum.Lecturer)
		assert.Equal(t, 3, sum.Rows)

		rows, err := env.Timetable.Rows(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, rows, 3, "re-importing replaces the lecturer rows")
	}

	// a newer version of the document replaces the previous one
	_, err := env.Timetable.Import(ctx, "Timetable for: Dr. Lee Chin Wei\nMONDAY\nLECTURE 09:00 - 11:00 Room: CQAR1001 Programming 202409 TCP1101 TC1L")
	require.NoError(t, err)
	rows, err := env.Timetable.Rows(ctx, &timetable.RowFilter{Lecturer: "dr. lee  chin wei"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "09:00", rows[0].Start)
	assert.True(t, importedAt.Equal(rows[0].ImportedAt), "imported at %v", rows[0].ImportedAt)
}

func TestService_ImportMany(t *testing.T) {
	env := testutil.Setup(t)
	res := env.Timetable.ImportMany(context.Background(), []timetable.Source{
		{Name: "lee.pdf", Text: leeTimetable},
		{Name: "blank.pdf", Text: "nothing to see"},
	})
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Messages, 2)
	assert.True(t, res.Messages[0].Success)
	assert.Equal(t, "blank.pdf", res.Messages[1].Name)
	assert.False(t, res.Messages[1].Success)
}

func TestService_ResolveLecturers(t *testing.T) {
	ctx := context.Background()
	env := testutil.Setup(t)
	lee := testutil.CreateUser(t, env.UserRepo, "Lee Chin Wei", "lee@test.my", "", []string{user.RoleLecturer}, true)
	testutil.CreateUser(t, env.UserRepo, "Lee Chin Wai", "wai@test.my", "", []string{user.RoleLecturer}, true)

	_, err := env.Timetable.Import(ctx, leeTimetable)
	require.NoError(t, err)

	tests := []struct {
		name   string
		key    schedule.CourseKey
		want   schedule.Lecturers
		wantNF bool
	}{
		{
			name: "all class types",
			key:  schedule.CourseKey{Code: "tcp1101", Section: "tc1l", Intake: "202409"},
			want: schedule.Lecturers{PracticalID: lee.ID, TutorialID: lee.ID, ClassID: lee.ID},
		},
		{name: "other section", key: schedule.CourseKey{Code: "TCP1101", Section: "TC2L", Intake: "202409"}, wantNF: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Timetable.ResolveLecturers(ctx, tt.key)
			if tt.wantNF {
				assert.True(t, core.IsNotFound(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_ResolveLecturers_UnknownLecturer(t *testing.T) {
	ctx := context.Background()
	env := testutil.Setup(t)
	testutil.CreateUser(t, env.UserRepo, "Muthu Raman", "", "", []string{user.RoleLecturer}, true)

	_, err := env.Timetable.Import(ctx, leeTimetable)
	require.NoError(t, err)
	_, err = env.Timetable.ResolveLecturers(ctx, schedule.CourseKey{Code: "TCP1101", Section: "TC1L", Intake: "202409"})
	assert.True(t, core.IsNotFound(err), "got %v", err)
}
