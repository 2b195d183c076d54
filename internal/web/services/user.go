// Package services contains the web front end's business logic. This file
// implements UserService: the credential store operations plus the
// registration and login flows built on them.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/cryptox"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/repomanager"
)

// RegisterForm is the registration input as typed by the user.
type RegisterForm struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validate    *validator.Validate
	logger      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "users"),
	}
}

// CreateAccount stores a new account with a hashed password.
func (s *UserService) CreateAccount(ctx context.Context, username, password string, role models.Role) (*models.AccountSummary, error) {
	if username == "" || password == "" {
		return nil, common.ErrorValidation
	}
	if cryptox.IsTooLong(password) {
		return nil, common.FieldErrors{"password": "password is too long"}
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{ID: uuid.NewString(), Username: username, PasswordHash: hash, Role: role}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	summary := u.Summary()
	return &summary, nil
}

func (s *UserService) FindAccount(ctx context.Context, username string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByUsername(ctx, username)
}

// VerifyCredentials reports whether password matches the stored hash. An
// unknown username is not an error; it is compared against a dummy hash and
// reported as a mismatch.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (*models.User, bool, error) {
	user, err := s.FindAccount(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, cryptox.BurnCompare(password), nil
		}
		return nil, false, err
	}
	if !cryptox.CheckPassword(user.PasswordHash, password) {
		return nil, false, nil
	}
	return user, true, nil
}

func (s *UserService) RecordLogin(ctx context.Context, username string) (*models.AccountSummary, error) {
	u, err := s.repomanager.Users(s.db).RecordLogin(ctx, username)
	if err != nil {
		return nil, err
	}
	summary := u.Summary()
	return &summary, nil
}

// Register validates the form and creates a regular account. The caller is
// expected to send the user to the login page afterwards.
func (s *UserService) Register(ctx context.Context, form RegisterForm) (*models.AccountSummary, error) {
	form.Username = strings.TrimSpace(form.Username)

	if err := s.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fieldErrors(verrs)
		}
		return nil, err
	}

	summary, err := s.CreateAccount(ctx, form.Username, form.Password, models.RoleUser)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "account registered", "username", summary.Username)
	return summary, nil
}

func fieldErrors(verrs validator.ValidationErrors) common.FieldErrors {
	out := common.FieldErrors{}
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			out[name] = "this field is required"
		case "eqfield":
			out[name] = "passwords do not match"
		case "max":
			out[name] = fmt.Sprintf("at most %s characters", fe.Param())
		default:
			out[name] = "invalid value"
		}
	}
	return out
}

// Login verifies credentials and bumps the login statistics. Every failure
// that is not an internal error is reported as common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.AccountSummary, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, common.ErrorUnauthorized
	}

	_, ok, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		s.logger.Error(ctx, "credential lookup failed", "username", username, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		s.logger.Info(ctx, "login rejected", "username", username)
		return nil, common.ErrorUnauthorized
	}

	summary, err := s.RecordLogin(ctx, username)
	if err != nil {
		s.logger.Error(ctx, "record login failed", "username", username, "error", err)
		return nil, common.ErrorInternal
	}
	return summary, nil
}

func (s *UserService) GetAccount(ctx context.Context, id string) (*models.AccountSummary, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := u.Summary()
	return &summary, nil
}

type seedFile struct {
	Users []struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Role     string `yaml:"role"`
	} `yaml:"users"`
}

// SeedFromFile creates the accounts listed in a YAML file. Accounts that
// already exist are left as they are. It returns how many were created.
func (s *UserService) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	created := 0
	for i, u := range f.Users {
		role, err := models.ParseRole(u.Role)
		if err != nil {
			return created, fmt.Errorf("users[%d]: %w", i, err)
		}
		if _, err := s.CreateAccount(ctx, u.Username, u.Password, role); err != nil {
			if errors.Is(err, common.ErrorConflict) {
				continue
			}
			return created, fmt.Errorf("users[%d] %q: %w", i, u.Username, err)
		}
		created++
		s.logger.Info(ctx, "seeded account", "username", u.Username, "role", string(role))
	}
	return created, nil
}
