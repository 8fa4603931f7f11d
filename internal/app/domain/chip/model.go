package chip

import (
	"errors"
	"time"
)

// Transfer status lifecycle. A transfer is created pending, and moves to
// exactly one terminal state.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// History entry directions.
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

var (
	// ErrInsufficientBalance indicates the sender does not hold enough chips.
	ErrInsufficientBalance = errors.New("insufficient chip balance")
	// ErrDuplicateTransferID indicates a transfer id collided with an existing row.
	ErrDuplicateTransferID = errors.New("duplicate transfer id")
	// ErrPlayerNotFound indicates the player is unknown to the directory.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrTransferNotFound indicates no transfer row exists for the given id.
	ErrTransferNotFound = errors.New("transfer not found")
)

// Balance is the durable chip balance of a single player. A row is created
// lazily with a zero amount the first time a transfer touches the player and
// is never deleted. Amount never goes negative.
type Balance struct {
	PlayerID      int64     `json:"player_id"`
	Amount        int64     `json:"amount"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Transfer is the ledger record of one transfer attempt between two players.
// It is written in StatusPending before any balance mutates and becomes
// immutable once it reaches a terminal status.
type Transfer struct {
	TransferID   string    `json:"transfer_id"`
	FromPlayerID int64     `json:"from_player_id"`
	ToPlayerID   int64     `json:"to_player_id"`
	Amount       int64     `json:"amount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HistoryEntry is one side of a completed transfer in a player's audit trail.
// Entries are append-only; every completed transfer produces exactly one
// debit and one credit entry, and BalanceAfter always equals
// BalanceBefore-Amount (debit) or BalanceBefore+Amount (credit).
type HistoryEntry struct {
	PlayerID      int64     `json:"player_id"`
	TransferID    string    `json:"transfer_id"`
	Direction     string    `json:"direction"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}
