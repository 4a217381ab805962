package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/visagelab/visagebot/internal/repository"
)

func existingUserRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "telegram_id", "username", "first_name", "last_name", "credits", "created_at", "updated_at"}).
		AddRow(int64(7), int64(42), "alice", "Alice", "Smith", 3, now, now)
}

func TestEnsureKeepsProfileWithoutSenderInfo(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, telegram_id").
		WithArgs(int64(42)).
		WillReturnRows(existingUserRows())

	repo := repository.NewUserRepository(db)
	user, created, err := repo.Ensure(context.Background(), 42, "", "", "", 0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if created {
		t.Fatal("existing user reported as created")
	}
	if user.Username != "alice" || user.FirstName != "Alice" || user.LastName != "Smith" {
		t.Fatalf("profile changed without sender info: %q %q %q", user.Username, user.FirstName, user.LastName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEnsureRefreshesProfileFromSender(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, telegram_id").
		WithArgs(int64(42)).
		WillReturnRows(existingUserRows())
	mock.ExpectExec("UPDATE users SET username = NULLIF").
		WithArgs("alice_new", "Alice", "Jones", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewUserRepository(db)
	user, _, err := repo.Ensure(context.Background(), 42, "alice_new", "Alice", "Jones", 0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if user.Username != "alice_new" || user.LastName != "Jones" {
		t.Fatalf("profile not refreshed: %q %q", user.Username, user.LastName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEnsureCreatesUserOnFirstContact(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, telegram_id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_id", "username", "first_name", "last_name", "credits", "created_at", "updated_at"}))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(99), "bob", "Bob", "", 5).
		WillReturnResult(sqlmock.NewResult(11, 1))

	repo := repository.NewUserRepository(db)
	user, created, err := repo.Ensure(context.Background(), 99, "bob", "Bob", "", 5)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Fatal("new user not reported as created")
	}
	if user.ID != 11 || user.Credits != 5 {
		t.Fatalf("unexpected created user: id=%d credits=%d", user.ID, user.Credits)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
