package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/user"
	"github.com/trezcool/invigil/tests"
)

func TestStripHonorifics(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "Assoc. Prof. Dr. Lee Chin Wei", want: "lee chin wei"},
		{in: "Puan  Siti, ", want: "siti,"},
		{in: "Ts. Ir. Wong", want: "wong"},
		{in: "Dr.", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, user.StripHonorifics(tt.in), "StripHonorifics(%q)", tt.in)
	}
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, user.NameSimilarity("Dr. Lee Chin Wei", "LEE CHIN WEI"))
	assert.Equal(t, 0.0, user.NameSimilarity("Dr.", "Lee"))
	assert.Greater(t, user.NameSimilarity("Lee Chin Wei", "Lee Chin Wai"), 0.8)
	assert.Less(t, user.NameSimilarity("Lee Chin Wei", "Muthu Raman"), 0.5)
}

func TestService_MatchByName(t *testing.T) {
	ctx := context.Background()
	env := testutil.Setup(t)
	wei := testutil.CreateUser(t, env.UserRepo, "Lee Chin Wei", "", "", []string{user.RoleLecturer}, true)
	wai := testutil.CreateUser(t, env.UserRepo, "Lee Chin Wai", "", "", []string{user.RoleLecturer}, true)
	testutil.CreateUser(t, env.UserRepo, "Lee Chin Wee", "", "", []string{user.RoleInvigilator}, true)

	tests := []struct {
		name   string
		in     string
		want   string
		wantNF bool
	}{
		{name: "exact with title", in: "Prof. Dr. Lee  Chin Wei", want: wei.ID},
		{name: "closest", in: "Lee Chin Wai", want: wai.ID},
		{name: "too different", in: "Muthu Raman", wantNF: true},
		{name: "blank", in: "   ", wantNF: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Users.MatchByName(ctx, tt.in, 0.8)
			if tt.wantNF {
				assert.True(t, core.IsNotFound(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	env := testutil.Setup(t)

	createdAt := time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC)
	user.NowFunc = func() time.Time { return createdAt }
	t.Cleanup(func() { user.NowFunc = time.Now })

	usr, err := env.Users.Create(ctx, user.NewUser{Name: "Ali", CardID: "CARD01", Roles: []string{user.RoleInvigilator}})
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(usr.CreatedAt), "created at %v", usr.CreatedAt)
	assert.True(t, createdAt.Equal(usr.UpdatedAt), "updated at %v", usr.UpdatedAt)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsInvigilator())
	assert.Zero(t, usr.PendingHours)

	got, err := env.Users.GetByCardID(ctx, " CARD01 ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = env.Users.Create(ctx, user.NewUser{Name: "Bala", CardID: "CARD01", Roles: []string{user.RoleInvigilator}})
	assert.True(t, core.IsValidation(err), "got %v", err)
}
