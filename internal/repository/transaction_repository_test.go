package repository_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/repository"
)

func TestCompleteAndGrantHappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, credits FROM transactions").
		WithArgs("cardpay", "pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "credits"}).AddRow(int64(7), 50))
	mock.ExpectExec("UPDATE transactions SET status = 'completed'").
		WithArgs("{}", "cardpay", "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET credits = credits \\+ ").
		WithArgs(50, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_entries").
		WithArgs(int64(7), 50, "cardpay:pay-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT credits FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(53))
	mock.ExpectCommit()

	repo := repository.NewTransactionRepository(db)
	granted, balance, err := repo.CompleteAndGrant(context.Background(), "cardpay", "pay-1", "{}")
	if err != nil {
		t.Fatalf("complete and grant: %v", err)
	}
	if !granted || balance != 53 {
		t.Fatalf("granted=%v balance=%d, want true/53", granted, balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCompleteAndGrantAlreadySettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, credits FROM transactions").
		WithArgs("cardpay", "pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "credits"}).AddRow(int64(7), 50))
	mock.ExpectExec("UPDATE transactions SET status = 'completed'").
		WithArgs("{}", "cardpay", "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := repository.NewTransactionRepository(db)
	granted, _, err := repo.CompleteAndGrant(context.Background(), "cardpay", "pay-1", "{}")
	if err != nil {
		t.Fatalf("complete and grant: %v", err)
	}
	if granted {
		t.Fatal("settled transaction granted credits again")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkTerminalRejectsCompleted(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := repository.NewTransactionRepository(db)
	if _, err := repo.MarkTerminal(context.Background(), "cardpay", "pay-1", models.TxCompleted, ""); err == nil {
		t.Fatal("MarkTerminal accepted the completed status; grants must go through CompleteAndGrant")
	}
	if _, err := repo.MarkTerminal(context.Background(), "cardpay", "pay-1", models.TxPending, ""); err == nil {
		t.Fatal("MarkTerminal accepted a non-terminal status")
	}
}

func TestMarkTerminalOnlyMovesPendingRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE transactions SET status = ").
		WithArgs(models.TxCanceled, "", "cryptoinv", "inv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewTransactionRepository(db)
	moved, err := repo.MarkTerminal(context.Background(), "cryptoinv", "inv-1", models.TxCanceled, "")
	if err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	if moved {
		t.Fatal("MarkTerminal reported a transition for a non-pending row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByProviderPaymentMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM transactions WHERE provider =").
		WithArgs("cardpay", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := repository.NewTransactionRepository(db)
	tx, err := repo.FindByProviderPayment(context.Background(), "cardpay", "nope")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tx != nil {
		t.Fatalf("tx = %+v, want nil for a missing row", tx)
	}
}
