package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/medtrack/inventory-backend/internal/db/models"
)

var userCols = []string{
	"id", "email", "name", "role", "password_hash", "active", "created_at", "updated_at",
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(sqlx.NewDb(db, "postgres")), mock
}

func sampleUserRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).
		AddRow("user-1", "alice@example.com", "Alice", "ADMIN", "$2a$10$hash", true, now, now)
}

func TestGetUserByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT \\* FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetUserByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.Role != models.RoleAdmin {
		t.Fatalf("user = %+v", user)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT \\* FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetUserByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil, got %+v", user)
	}
}

func TestGetUserByEmail_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT \\* FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.Email != "alice@example.com" {
		t.Fatalf("user = %+v", user)
	}
}

func TestListUsers(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT \\* FROM users ORDER BY created_at DESC").
		WillReturnRows(sampleUserRow())

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Alice" {
		t.Errorf("users = %+v", users)
	}
}

func TestCreateUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "bob@example.com", Name: "Bob", Role: models.RoleStaff, Active: true}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Error("expected generated ID")
	}
}
