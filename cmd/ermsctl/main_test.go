package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/database"
	"github.com/noah-isme/erms-api/internal/models"
)

func testCLI(t *testing.T, passwords ...string) (cli, *gorm.DB, *bytes.Buffer) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	queue := append([]string(nil), passwords...)
	return cli{
		out:    out,
		logger: zerolog.Nop(),
		openDB: func() (*gorm.DB, error) { return db, nil },
		readPassword: func(string) (string, error) {
			require.NotEmpty(t, queue, "unexpected password prompt")
			next := queue[0]
			queue = queue[1:]
			return next, nil
		},
		bcryptCost: bcrypt.MinCost,
	}, db, out
}

func TestMigrateAndAddUser(t *testing.T) {
	app, db, out := testCLI(t, "s3cret-pass", "s3cret-pass")
	ctx := context.Background()

	require.NoError(t, app.run(ctx, []string{"migrate"}))
	require.Contains(t, out.String(), "schema migrated")

	require.NoError(t, app.run(ctx, []string{"adduser", "-email", "Root@School.test", "-name", "Root"}))
	require.Contains(t, out.String(), "created admin account root@school.test")

	var user models.User
	require.NoError(t, db.Where("email = ?", "root@school.test").First(&user).Error)
	require.True(t, user.CheckPassword("s3cret-pass"))
}

func TestResetPassword(t *testing.T) {
	app, db, out := testCLI(t, "first-pass", "first-pass", "second-pass", "second-pass")
	ctx := context.Background()
	require.NoError(t, database.Migrate(db))

	require.NoError(t, app.run(ctx, []string{"adduser", "-email", "t@school.test", "-name", "Teach", "-role", "teacher"}))
	require.NoError(t, app.run(ctx, []string{"resetpassword", "-email", "T@school.test"}))
	require.Contains(t, out.String(), "password updated for t@school.test")

	var user models.User
	require.NoError(t, db.Where("email = ?", "t@school.test").First(&user).Error)
	require.True(t, user.CheckPassword("second-pass"))
}

func TestRunRejectsBadInput(t *testing.T) {
	app, db, _ := testCLI(t, "one-password", "another-one")
	ctx := context.Background()
	require.NoError(t, database.Migrate(db))

	require.ErrorIs(t, app.run(ctx, nil), errUsage)
	require.ErrorIs(t, app.run(ctx, []string{"explode"}), errUsage)
	require.ErrorIs(t, app.run(ctx, []string{"adduser", "-name", "No Email"}), errUsage)
	require.ErrorContains(t, app.run(ctx, []string{"adduser", "-email", "x@school.test", "-name", "X"}), "do not match")
	require.Error(t, app.run(ctx, []string{"resetpassword", "-email", "ghost@school.test"}))
}
