package users

import (
	"context"
	"testing"

	"github.com/JulienZD/w2tch/internal/app/storage"
	"github.com/JulienZD/w2tch/internal/errors"
	"github.com/JulienZD/w2tch/pkg/logger"
)

func newService() *Service {
	return New(storage.NewMemory(), logger.NewDefault("test"))
}

func TestSignupAndLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: "Alice@Example.com", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}
	if created.PasswordHash == "correcthorse" {
		t.Fatal("password stored in plain text")
	}

	logged, err := svc.Login(ctx, "alice@example.com", "correcthorse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, logged.ID)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: "alice@example.com", Password: "correcthorse"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, err := svc.Signup(ctx, SignupInput{Name: "Other", Email: "alice@example.com", Password: "batterystaple"})
	svcErr, ok := errors.GetServiceError(err)
	if !ok || svcErr.Code != errors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newService()

	_, err := svc.Signup(context.Background(), SignupInput{Name: "", Email: "not-an-email", Password: "short"})
	svcErr, ok := errors.GetServiceError(err)
	if !ok || svcErr.Code != errors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	violations, _ := svcErr.Details["violations"].([]string)
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %v", violations)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: "alice@example.com", Password: "correcthorse"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	for _, attempt := range []struct{ email, password string }{
		{"alice@example.com", "wrong-password"},
		{"nobody@example.com", "correcthorse"},
	} {
		_, err := svc.Login(ctx, attempt.email, attempt.password)
		svcErr, ok := errors.GetServiceError(err)
		if !ok || svcErr.Code != errors.CodeUnauthorized {
			t.Fatalf("expected unauthorized for %s, got %v", attempt.email, err)
		}
	}
}

func TestUpdateChangesPassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: "alice@example.com", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	next := "batterystaple"
	if _, err := svc.Update(ctx, created.ID, UpdateInput{Password: &next}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "batterystaple"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "correcthorse"); err == nil {
		t.Fatal("expected old password to stop working")
	}
}

func TestDelete(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: "alice@example.com", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = svc.Get(ctx, created.ID)
	svcErr, ok := errors.GetServiceError(err)
	if !ok || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
