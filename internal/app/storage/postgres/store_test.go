package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/playtower/chipbank/internal/app/domain/chip"
	"github.com/playtower/chipbank/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, time.Second), mock
}

func balanceRows(playerID, amount int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"player_id", "balance", "last_updated_at"}).
		AddRow(playerID, amount, time.Now().UTC())
}

func TestGetBalance(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT player_id, balance, last_updated_at").
		WithArgs(int64(7)).
		WillReturnRows(balanceRows(7, 300))

	b, found, err := store.GetBalance(context.Background(), 7)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !found || b.Amount != 300 {
		t.Fatalf("balance = %+v found=%t", b, found)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetBalanceMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT player_id, balance, last_updated_at").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, found, err := store.GetBalance(context.Background(), 7)
	if err != nil {
		t.Fatalf("missing row must not be an error: %v", err)
	}
	if found {
		t.Fatal("found = true for missing row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInTransactionCommitsTransferFlow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()

	// GetOrCreateBalance: sender exists, receiver is materialised.
	mock.ExpectExec("INSERT INTO chip_balances").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT player_id, balance, last_updated_at").
		WithArgs(int64(1)).
		WillReturnRows(balanceRows(1, 500))
	mock.ExpectExec("INSERT INTO chip_balances").
		WithArgs(int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT player_id, balance, last_updated_at").
		WithArgs(int64(2)).
		WillReturnRows(balanceRows(2, 0))

	mock.ExpectExec("INSERT INTO chip_transfers").
		WithArgs("t1", int64(1), int64(2), int64(100), chip.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("UPDATE chip_balances").
		WithArgs(int64(1), int64(-100), sqlmock.AnyArg()).
		WillReturnRows(balanceRows(1, 400))
	mock.ExpectQuery("UPDATE chip_balances").
		WithArgs(int64(2), int64(100), sqlmock.AnyArg()).
		WillReturnRows(balanceRows(2, 100))

	mock.ExpectExec("INSERT INTO chip_history").
		WithArgs(int64(1), "t1", chip.DirectionDebit, int64(100), int64(500), int64(400), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chip_history").
		WithArgs(int64(2), "t1", chip.DirectionCredit, int64(100), int64(0), int64(100), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("UPDATE chip_transfers").
		WithArgs("t1", chip.StatusCompleted, sqlmock.AnyArg(), chip.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		from, created, err := unit.GetOrCreateBalance(ctx, 1)
		if err != nil {
			return err
		}
		if created || from.Amount != 500 {
			t.Fatalf("sender: created=%t amount=%d", created, from.Amount)
		}
		to, created, err := unit.GetOrCreateBalance(ctx, 2)
		if err != nil {
			return err
		}
		if !created || to.Amount != 0 {
			t.Fatalf("receiver: created=%t amount=%d", created, to.Amount)
		}

		if _, err := unit.CreateTransfer(ctx, chip.Transfer{TransferID: "t1", FromPlayerID: 1, ToPlayerID: 2, Amount: 100}); err != nil {
			return err
		}

		fromAfter, err := unit.ApplyBalanceDelta(ctx, 1, -100)
		if err != nil {
			return err
		}
		toAfter, err := unit.ApplyBalanceDelta(ctx, 2, 100)
		if err != nil {
			return err
		}

		if err := unit.RecordHistory(ctx, chip.HistoryEntry{
			PlayerID: 1, TransferID: "t1", Direction: chip.DirectionDebit,
			Amount: 100, BalanceBefore: from.Amount, BalanceAfter: fromAfter.Amount,
		}); err != nil {
			return err
		}
		if err := unit.RecordHistory(ctx, chip.HistoryEntry{
			PlayerID: 2, TransferID: "t1", Direction: chip.DirectionCredit,
			Amount: 100, BalanceBefore: to.Amount, BalanceAfter: toAfter.Amount,
		}); err != nil {
			return err
		}

		return unit.CompleteTransfer(ctx, "t1")
	})
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInTransactionRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chip_balances").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		_, _, err := unit.GetOrCreateBalance(ctx, 1)
		return err
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTransferMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chip_transfers").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		_, err := unit.CreateTransfer(ctx, chip.Transfer{TransferID: "dup", FromPlayerID: 1, ToPlayerID: 2, Amount: 5})
		return err
	})
	if !errors.Is(err, chip.ErrDuplicateTransferID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCompleteTransferRequiresPendingRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE chip_transfers").
		WithArgs("gone", chip.StatusCompleted, sqlmock.AnyArg(), chip.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		return unit.CompleteTransfer(ctx, "gone")
	})
	if !errors.Is(err, chip.ErrTransferNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFailTransferUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO chip_transfers").
		WithArgs("t1", int64(1), int64(2), int64(50), chip.StatusFailed, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.FailTransfer(context.Background(), chip.Transfer{
		TransferID: "t1", FromPlayerID: 1, ToPlayerID: 2, Amount: 50,
	})
	if err != nil {
		t.Fatalf("fail transfer: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Exists(context.Background(), 9)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatal("expected player to exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListTransfersByPlayer(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM chip_transfers").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"transfer_id", "from_player_id", "to_player_id", "amount", "status", "created_at", "updated_at",
		}).
			AddRow("a", int64(1), int64(2), int64(10), chip.StatusCompleted, now, now).
			AddRow("b", int64(3), int64(1), int64(20), chip.StatusFailed, now, now))

	list, err := store.ListTransfersByPlayer(context.Background(), 1)
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("rows = %d, want 2", len(list))
	}
	if list[0].TransferID != "a" || list[1].Status != chip.StatusFailed {
		t.Fatalf("unexpected rows: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
