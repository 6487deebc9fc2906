// Command ermsctl runs maintenance tasks against the ERMS database.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/config"
	"github.com/noah-isme/erms-api/internal/database"
	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/repository"
	"github.com/noah-isme/erms-api/internal/service"
)

const usage = `usage: ermsctl <command> [flags]

commands:
  migrate                                   create or update the schema
  adduser -email E -name N -role R          create an account (password is prompted)
  resetpassword -email E                    set a new password (prompted)
`

var errUsage = errors.New("invalid usage")

type cli struct {
	out          io.Writer
	logger       zerolog.Logger
	openDB       func() (*gorm.DB, error)
	readPassword func(prompt string) (string, error)
	bcryptCost   int
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	app := cli{
		out:    os.Stdout,
		logger: logger,
		openDB: func() (*gorm.DB, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return database.ConnectPostgres(cfg.DatabaseURL, false)
		},
		readPassword: promptPassword(os.Stdin, os.Stderr),
		bcryptCost:   bcrypt.DefaultCost,
	}

	if err := app.run(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		} else {
			logger.Error().Err(err).Msg("command failed")
		}
		os.Exit(1)
	}
}

func (c cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "migrate":
		return c.migrate()
	case "adduser":
		return c.addUser(ctx, args[1:])
	case "resetpassword":
		return c.resetPassword(ctx, args[1:])
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func (c cli) migrate() error {
	db, err := c.openDB()
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "schema migrated")
	return nil
}

func (c cli) addUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account e-mail")
	name := fs.String("name", "", "display name")
	role := fs.String("role", models.RoleAdmin, "admin, teacher or student")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*email) == "" || strings.TrimSpace(*name) == "" {
		return fmt.Errorf("%w: -email and -name are required", errUsage)
	}

	password, err := c.confirmedPassword()
	if err != nil {
		return err
	}

	users, _, err := c.services()
	if err != nil {
		return err
	}
	created, err := users.Create(ctx, service.Actor{}, dto.CreateUserRequest{
		Name:     *name,
		Email:    *email,
		Password: password,
		Role:     strings.ToLower(strings.TrimSpace(*role)),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "created %s account %s (id %d)\n", created.Role, created.Email, created.ID)
	return nil
}

func (c cli) resetPassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account e-mail")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*email) == "" {
		return fmt.Errorf("%w: -email is required", errUsage)
	}

	users, repo, err := c.services()
	if err != nil {
		return err
	}
	user, err := repo.GetByEmail(ctx, models.NormalizeEmail(*email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return service.ErrUserNotFound
		}
		return err
	}

	password, err := c.confirmedPassword()
	if err != nil {
		return err
	}
	if err := users.ResetPassword(ctx, service.Actor{}, user.ID, dto.ResetPasswordRequest{Password: password}); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "password updated for %s\n", user.Email)
	return nil
}

func (c cli) services() (service.UserService, repository.UserRepository, error) {
	db, err := c.openDB()
	if err != nil {
		return nil, nil, err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	users := repository.NewUserRepository(db)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), c.logger)
	return service.NewUserService(users, repository.NewClassRepository(db), validate, activity, c.logger, c.bcryptCost), users, nil
}

func (c cli) confirmedPassword() (string, error) {
	password, err := c.readPassword("Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := c.readPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// promptPassword reads without echo from a terminal, or one line from piped input.
func promptPassword(in *os.File, prompt io.Writer) func(string) (string, error) {
	reader := bufio.NewReader(in)
	return func(label string) (string, error) {
		fmt.Fprint(prompt, label)
		if term.IsTerminal(int(in.Fd())) {
			raw, err := term.ReadPassword(int(in.Fd()))
			fmt.Fprintln(prompt)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
