package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
)

func TestUserServiceCreateListAndFilter(t *testing.T) {
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	activity := &stubActivityRecorder{}
	svc := NewUserService(repos.users, repos.classes, testValidator(), activity, testLogger(), bcrypt.MinCost)
	admin := createUser(t, db, "Admin", models.RoleAdmin)
	ctx := context.Background()

	created, err := svc.Create(ctx, actorOf(admin), dto.CreateUserRequest{
		Name:     "Mr. Reyes",
		Email:    "reyes@school.test",
		Password: "password1",
		Role:     "teacher",
		Profile:  dto.ProfileInput{Department: "Science"},
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, created.Role)
	require.Equal(t, "Science", created.TeacherProfile.Department)
	require.Equal(t, []string{"user.created"}, activity.actions())

	_, err = svc.Create(ctx, actorOf(admin), dto.CreateUserRequest{Name: "Copy", Email: "REYES@school.test", Password: "password1", Role: "teacher"})
	require.ErrorIs(t, err, ErrEmailTaken)

	list, err := svc.List(ctx, dto.UserListRequest{Role: models.RoleTeacher, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, int64(1), list.Pagination.TotalItems)
}

func TestUserServiceAdminCannotLockThemselvesOut(t *testing.T) {
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	svc := NewUserService(repos.users, repos.classes, testValidator(), nil, testLogger(), bcrypt.MinCost)
	admin := createUser(t, db, "Admin", models.RoleAdmin)
	ctx := context.Background()

	inactive := false
	_, err := svc.Update(ctx, actorOf(admin), admin.ID, dto.UpdateUserRequest{Active: &inactive})
	require.ErrorIs(t, err, ErrInvalidInput)

	role := models.RoleTeacher
	_, err = svc.Update(ctx, actorOf(admin), admin.ID, dto.UpdateUserRequest{Role: &role})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.ErrorIs(t, svc.Delete(ctx, actorOf(admin), admin.ID), ErrInvalidInput)
}

func TestUserServiceDeleteTeacherWithClasses(t *testing.T) {
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	activity := &stubActivityRecorder{}
	svc := NewUserService(repos.users, repos.classes, testValidator(), activity, testLogger(), bcrypt.MinCost)
	admin := createUser(t, db, "Admin", models.RoleAdmin)
	teacher := createUser(t, db, "Teacher", models.RoleTeacher)
	student := createUser(t, db, "Student", models.RoleStudent)
	createClass(t, db, teacher, "Biology")
	ctx := context.Background()

	require.ErrorIs(t, svc.Delete(ctx, actorOf(admin), teacher.ID), ErrUserHasClasses)
	require.NoError(t, svc.Delete(ctx, actorOf(admin), student.ID))

	_, err := svc.Get(ctx, student.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.Equal(t, []string{"user.deleted"}, activity.actions())
}

func TestUserServiceResetPasswordAndPromote(t *testing.T) {
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	svc := NewUserService(repos.users, repos.classes, testValidator(), nil, testLogger(), bcrypt.MinCost)
	admin := createUser(t, db, "Admin", models.RoleAdmin)
	student := createUser(t, db, "Student", models.RoleStudent)
	ctx := context.Background()

	require.NoError(t, svc.ResetPassword(ctx, actorOf(admin), student.ID, dto.ResetPasswordRequest{Password: "brand-new-pass"}))
	stored, err := repos.users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	require.True(t, stored.CheckPassword("brand-new-pass"))

	role := models.RoleTeacher
	updated, err := svc.Update(ctx, actorOf(admin), student.ID, dto.UpdateUserRequest{Role: &role})
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, updated.Role)
	require.NotNil(t, updated.TeacherProfile)
}

func TestUserServiceKeepsClassOwnersTeaching(t *testing.T) {
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	svc := NewUserService(repos.users, repos.classes, testValidator(), nil, testLogger(), bcrypt.MinCost)
	admin := createUser(t, db, "Admin", models.RoleAdmin)
	owner := createUser(t, db, "Owner", models.RoleTeacher)
	idle := createUser(t, db, "Idle", models.RoleTeacher)
	createClass(t, db, owner, "Chemistry")
	ctx := context.Background()

	student := models.RoleStudent
	_, err := svc.Update(ctx, actorOf(admin), owner.ID, dto.UpdateUserRequest{Role: &student})
	require.ErrorIs(t, err, ErrUserHasClasses)

	inactive := false
	_, err = svc.Update(ctx, actorOf(admin), owner.ID, dto.UpdateUserRequest{Active: &inactive})
	require.ErrorIs(t, err, ErrUserHasClasses)

	stored, err := svc.Get(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, stored.Role)
	require.True(t, stored.Active)

	name := "Owner Renamed"
	renamed, err := svc.Update(ctx, actorOf(admin), owner.ID, dto.UpdateUserRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, renamed.Name)

	demoted, err := svc.Update(ctx, actorOf(admin), idle.ID, dto.UpdateUserRequest{Role: &student})
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, demoted.Role)
}
