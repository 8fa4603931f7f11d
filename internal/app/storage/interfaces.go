package storage

import (
	"context"

	"github.com/playtower/chipbank/internal/app/domain/chip"
)

// TransferUnit exposes the write operations available inside one atomic unit
// of work. Balances returned by GetOrCreateBalance are locked against
// concurrent transfers until the unit commits or rolls back.
type TransferUnit interface {
	// GetOrCreateBalance loads the player's balance, materialising a zero
	// balance row on first reference. The created flag reports which path
	// was taken.
	GetOrCreateBalance(ctx context.Context, playerID int64) (balance chip.Balance, created bool, err error)
	// ApplyBalanceDelta adds delta to the player's balance and refreshes
	// LastUpdatedAt.
	ApplyBalanceDelta(ctx context.Context, playerID int64, delta int64) (chip.Balance, error)
	// CreateTransfer writes a ledger row in StatusPending. A transfer id
	// collision is reported as chip.ErrDuplicateTransferID.
	CreateTransfer(ctx context.Context, tr chip.Transfer) (chip.Transfer, error)
	// CompleteTransfer moves a pending ledger row to StatusCompleted.
	CompleteTransfer(ctx context.Context, transferID string) error
	// RecordHistory appends one audit entry.
	RecordHistory(ctx context.Context, entry chip.HistoryEntry) error
}

// TransferStore persists balances, the transfer ledger and per-player
// history.
type TransferStore interface {
	// InTransaction runs fn inside one unit of work. If fn returns an
	// error the unit rolls back and nothing fn wrote is observable.
	InTransaction(ctx context.Context, fn func(unit TransferUnit) error) error

	// FailTransfer records the transfer in StatusFailed in its own unit of
	// work. It upserts: after a rollback the pending row no longer exists,
	// so the failure record is written from the transfer value itself.
	FailTransfer(ctx context.Context, tr chip.Transfer) error

	// GetBalance is a read-only lookup. It never creates a row; the bool
	// reports whether one exists.
	GetBalance(ctx context.Context, playerID int64) (chip.Balance, bool, error)
	GetTransfer(ctx context.Context, transferID string) (chip.Transfer, error)
	ListTransfersByPlayer(ctx context.Context, playerID int64) ([]chip.Transfer, error)
	ListHistory(ctx context.Context, playerID int64) ([]chip.HistoryEntry, error)
}

// PlayerDirectory resolves player ids against the pre-existing player
// records. The chip core never creates or deletes players.
type PlayerDirectory interface {
	Exists(ctx context.Context, playerID int64) (bool, error)
}
