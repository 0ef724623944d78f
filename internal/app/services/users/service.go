// Package users implements account signup, login and profile management.
package users

import (
	"context"
	stderrors "errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/JulienZD/w2tch/internal/app/domain/user"
	"github.com/JulienZD/w2tch/internal/app/storage"
	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/pkg/logger"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
	maxNameLength     = 35
)

// Service provides account operations.
type Service struct {
	users storage.UserStore
	log   *logger.Logger
}

// New creates the users service.
func New(users storage.UserStore, log *logger.Logger) *Service {
	return &Service{users: users, log: log}
}

// SignupInput is a registration request.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

func validateSignup(in SignupInput) []string {
	var violations []string
	if strings.TrimSpace(in.Name) == "" {
		violations = append(violations, "name is required")
	}
	if len(in.Name) > maxNameLength {
		violations = append(violations, "name is too long")
	}
	if !strings.Contains(in.Email, "@") {
		violations = append(violations, "email is invalid")
	}
	if len(in.Password) < minPasswordLength {
		violations = append(violations, "password must be at least 8 characters")
	}
	return violations
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*user.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if violations := validateSignup(in); len(violations) > 0 {
		return nil, errors.Validation("invalid signup request", violations)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, errors.Internal("hash password", err)
	}

	u := &user.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.Conflict("an account with this email already exists")
		}
		return nil, errors.Internal("create user", err)
	}

	s.log.WithField("user_id", u.ID).Info("account created")
	return u, nil
}

// Login verifies credentials and returns the account. A missing account and a
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.Unauthorized("invalid email or password")
		}
		return nil, errors.Internal("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errors.Unauthorized("invalid email or password")
	}
	return u, nil
}

// Get returns the account by ID.
func (s *Service) Get(ctx context.Context, id string) (*user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("user not found")
		}
		return nil, errors.Internal("load user", err)
	}
	return u, nil
}

// UpdateInput carries the fields of an account update. Nil fields are left
// unchanged.
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
}

// Update modifies the account.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var violations []string
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			violations = append(violations, "name is required")
		}
		if len(name) > maxNameLength {
			violations = append(violations, "name is too long")
		}
		u.Name = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if !strings.Contains(email, "@") {
			violations = append(violations, "email is invalid")
		}
		u.Email = email
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			violations = append(violations, "password must be at least 8 characters")
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcryptCost)
			if err != nil {
				return nil, errors.Internal("hash password", err)
			}
			u.PasswordHash = string(hash)
		}
	}
	if len(violations) > 0 {
		return nil, errors.Validation("invalid account update", violations)
	}

	if err := s.users.UpdateUser(ctx, u); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.Conflict("an account with this email already exists")
		}
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("user not found")
		}
		return nil, errors.Internal("update user", err)
	}
	return u, nil
}

// Delete removes the account and everything it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("user not found")
		}
		return errors.Internal("delete user", err)
	}
	s.log.WithField("user_id", id).Info("account deleted")
	return nil
}
