package repository_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/visagelab/visagebot/internal/repository"
)

func TestChargeDeductsAndLogs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET credits = credits - ").
		WithArgs(2, int64(5), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_entries").
		WithArgs(int64(5), -2, "hairstyle", "tryon").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := repository.NewLedgerRepository(db)
	charged, err := repo.Charge(context.Background(), 5, 2, "hairstyle", "tryon")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if !charged {
		t.Fatal("charge reported failure for a covered balance")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestChargeInsufficientBalanceRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET credits = credits - ").
		WithArgs(2, int64(5), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := repository.NewLedgerRepository(db)
	charged, err := repo.Charge(context.Background(), 5, 2, "hairstyle", "tryon")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if charged {
		t.Fatal("charge succeeded against an insufficient balance")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestChargeRejectsNonPositiveAmount(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := repository.NewLedgerRepository(db)
	if _, err := repo.Charge(context.Background(), 5, 0, "x", "y"); err == nil {
		t.Fatal("zero amount accepted")
	}
	if _, err := repo.Charge(context.Background(), 5, -3, "x", "y"); err == nil {
		t.Fatal("negative amount accepted")
	}
}

func TestCreditReturnsNewBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET credits = credits \\+ ").
		WithArgs(10, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_entries").
		WithArgs(int64(5), 10, "promo", "WELCOME").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT credits FROM users").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(12))
	mock.ExpectCommit()

	repo := repository.NewLedgerRepository(db)
	balance, err := repo.Credit(context.Background(), 5, 10, "promo", "WELCOME")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 12 {
		t.Fatalf("balance = %d, want 12", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
