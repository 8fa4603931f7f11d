package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/playtower/chipbank/internal/app/domain/chip"
	"github.com/playtower/chipbank/internal/app/storage"
)

func TestInTransactionCommitsOnSuccess(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		if _, _, err := unit.GetOrCreateBalance(ctx, 1); err != nil {
			return err
		}
		if _, err := unit.ApplyBalanceDelta(ctx, 1, 500); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}

	b, found, err := store.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !found || b.Amount != 500 {
		t.Fatalf("balance = %+v found=%t, want 500", b, found)
	}
}

func TestInTransactionRollsBackOnError(t *testing.T) {
	store := New()
	store.SeedBalance(1, 100)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		if _, err := unit.ApplyBalanceDelta(ctx, 1, -100); err != nil {
			return err
		}
		if _, _, err := unit.GetOrCreateBalance(ctx, 2); err != nil {
			return err
		}
		if _, err := unit.CreateTransfer(ctx, chip.Transfer{TransferID: "t1", FromPlayerID: 1, ToPlayerID: 2, Amount: 100}); err != nil {
			return err
		}
		if err := unit.RecordHistory(ctx, chip.HistoryEntry{PlayerID: 1, TransferID: "t1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected staged error, got %v", err)
	}

	b, _, _ := store.GetBalance(ctx, 1)
	if b.Amount != 100 {
		t.Fatalf("balance = %d, staged writes leaked", b.Amount)
	}
	if _, found, _ := store.GetBalance(ctx, 2); found {
		t.Fatal("staged balance creation leaked")
	}
	if _, err := store.GetTransfer(ctx, "t1"); !errors.Is(err, chip.ErrTransferNotFound) {
		t.Fatalf("staged transfer leaked: %v", err)
	}
	if h, _ := store.ListHistory(ctx, 1); len(h) != 0 {
		t.Fatalf("staged history leaked: %d rows", len(h))
	}
}

func TestGetOrCreateBalanceReportsCreation(t *testing.T) {
	store := New()
	store.SeedBalance(1, 42)
	ctx := context.Background()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		b, created, err := unit.GetOrCreateBalance(ctx, 1)
		if err != nil {
			return err
		}
		if created || b.Amount != 42 {
			t.Fatalf("existing row: created=%t amount=%d", created, b.Amount)
		}

		b, created, err = unit.GetOrCreateBalance(ctx, 2)
		if err != nil {
			return err
		}
		if !created || b.Amount != 0 {
			t.Fatalf("fresh row: created=%t amount=%d", created, b.Amount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}
}

func TestCreateTransferRejectsDuplicateID(t *testing.T) {
	store := New()
	ctx := context.Background()

	seed := func() error {
		return store.InTransaction(ctx, func(unit storage.TransferUnit) error {
			_, err := unit.CreateTransfer(ctx, chip.Transfer{TransferID: "dup", FromPlayerID: 1, ToPlayerID: 2, Amount: 5})
			return err
		})
	}
	if err := seed(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := seed(); !errors.Is(err, chip.ErrDuplicateTransferID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestTransferLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		tr, err := unit.CreateTransfer(ctx, chip.Transfer{TransferID: "t1", FromPlayerID: 1, ToPlayerID: 2, Amount: 10})
		if err != nil {
			return err
		}
		if tr.Status != chip.StatusPending {
			t.Fatalf("new transfer status = %s, want pending", tr.Status)
		}
		return unit.CompleteTransfer(ctx, "t1")
	})
	if err != nil {
		t.Fatalf("unit of work: %v", err)
	}

	tr, err := store.GetTransfer(ctx, "t1")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr.Status != chip.StatusCompleted {
		t.Fatalf("status = %s, want completed", tr.Status)
	}
}

func TestFailTransferUpserts(t *testing.T) {
	store := New()
	ctx := context.Background()

	// No prior row: FailTransfer writes the attempted transfer as failed.
	attempted := chip.Transfer{TransferID: "never_committed", FromPlayerID: 1, ToPlayerID: 2, Amount: 30}
	if err := store.FailTransfer(ctx, attempted); err != nil {
		t.Fatalf("fail transfer: %v", err)
	}
	tr, err := store.GetTransfer(ctx, "never_committed")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr.Status != chip.StatusFailed || tr.Amount != 30 {
		t.Fatalf("unexpected failure record: %+v", tr)
	}

	// Existing pending row: flipped to failed in place.
	if err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		_, err := unit.CreateTransfer(ctx, chip.Transfer{TransferID: "pending_row", FromPlayerID: 1, ToPlayerID: 2, Amount: 7})
		return err
	}); err != nil {
		t.Fatalf("seed pending row: %v", err)
	}
	if err := store.FailTransfer(ctx, chip.Transfer{TransferID: "pending_row"}); err != nil {
		t.Fatalf("fail pending row: %v", err)
	}
	tr, err = store.GetTransfer(ctx, "pending_row")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr.Status != chip.StatusFailed || tr.Amount != 7 {
		t.Fatalf("pending row not preserved on fail: %+v", tr)
	}
}

func TestListTransfersByPlayerFiltersBothSides(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		for _, tr := range []chip.Transfer{
			{TransferID: "a", FromPlayerID: 1, ToPlayerID: 2, Amount: 1},
			{TransferID: "b", FromPlayerID: 3, ToPlayerID: 1, Amount: 2},
			{TransferID: "c", FromPlayerID: 3, ToPlayerID: 4, Amount: 3},
		} {
			if _, err := unit.CreateTransfer(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed transfers: %v", err)
	}

	list, err := store.ListTransfersByPlayer(ctx, 1)
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("rows = %d, want 2", len(list))
	}
	for _, tr := range list {
		if tr.FromPlayerID != 1 && tr.ToPlayerID != 1 {
			t.Fatalf("row does not involve player 1: %+v", tr)
		}
	}
}
