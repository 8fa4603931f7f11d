package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/playtower/chipbank/internal/app/domain/chip"
	"github.com/playtower/chipbank/internal/app/storage"
)

// DefaultTxTimeout bounds each unit of work when the caller's context carries
// no earlier deadline.
const DefaultTxTimeout = 5 * time.Second

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db        *sql.DB
	txTimeout time.Duration
}

var _ storage.TransferStore = (*Store)(nil)
var _ storage.PlayerDirectory = (*Store)(nil)

// New creates a Store using the provided database handle. A non-positive
// txTimeout falls back to DefaultTxTimeout.
func New(db *sql.DB, txTimeout time.Duration) *Store {
	if txTimeout <= 0 {
		txTimeout = DefaultTxTimeout
	}
	return &Store{db: db, txTimeout: txTimeout}
}

// unit wraps one database transaction.
type unit struct {
	tx *sql.Tx
}

var _ storage.TransferUnit = (*unit)(nil)

// InTransaction implements storage.TransferStore. The unit runs under a
// bounded deadline; the row locks taken by GetOrCreateBalance serialize
// concurrent transfers touching the same player.
func (s *Store) InTransaction(ctx context.Context, fn func(storage.TransferUnit) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer transaction: %w", err)
	}

	if err := fn(&unit{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer transaction: %w", err)
	}
	return nil
}

// FailTransfer implements storage.TransferStore. Runs outside any caller
// transaction so the failure record survives a rollback; the pending row is
// usually gone by then, hence the upsert.
func (s *Store) FailTransfer(ctx context.Context, tr chip.Transfer) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	now := time.Now().UTC()
	createdAt := tr.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chip_transfers (transfer_id, from_player_id, to_player_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transfer_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, tr.TransferID, tr.FromPlayerID, tr.ToPlayerID, tr.Amount, chip.StatusFailed, createdAt, now)
	if err != nil {
		return fmt.Errorf("mark transfer %s failed: %w", tr.TransferID, err)
	}
	return nil
}

// GetBalance implements storage.TransferStore. Read-only; never creates a
// row.
func (s *Store) GetBalance(ctx context.Context, playerID int64) (chip.Balance, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT player_id, balance, last_updated_at
		FROM chip_balances
		WHERE player_id = $1
	`, playerID)

	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chip.Balance{}, false, nil
	}
	if err != nil {
		return chip.Balance{}, false, err
	}
	return b, true, nil
}

// GetTransfer implements storage.TransferStore.
func (s *Store) GetTransfer(ctx context.Context, transferID string) (chip.Transfer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transfer_id, from_player_id, to_player_id, amount, status, created_at, updated_at
		FROM chip_transfers
		WHERE transfer_id = $1
	`, transferID)

	var tr chip.Transfer
	if err := row.Scan(&tr.TransferID, &tr.FromPlayerID, &tr.ToPlayerID, &tr.Amount, &tr.Status, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chip.Transfer{}, chip.ErrTransferNotFound
		}
		return chip.Transfer{}, err
	}
	return tr, nil
}

// ListTransfersByPlayer implements storage.TransferStore.
func (s *Store) ListTransfersByPlayer(ctx context.Context, playerID int64) ([]chip.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transfer_id, from_player_id, to_player_id, amount, status, created_at, updated_at
		FROM chip_transfers
		WHERE from_player_id = $1 OR to_player_id = $1
		ORDER BY created_at
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []chip.Transfer
	for rows.Next() {
		var tr chip.Transfer
		if err := rows.Scan(&tr.TransferID, &tr.FromPlayerID, &tr.ToPlayerID, &tr.Amount, &tr.Status, &tr.CreatedAt, &tr.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

// ListHistory implements storage.TransferStore.
func (s *Store) ListHistory(ctx context.Context, playerID int64) ([]chip.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, transfer_id, direction, amount, balance_before, balance_after, created_at
		FROM chip_history
		WHERE player_id = $1
		ORDER BY created_at
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []chip.HistoryEntry
	for rows.Next() {
		var entry chip.HistoryEntry
		if err := rows.Scan(&entry.PlayerID, &entry.TransferID, &entry.Direction, &entry.Amount, &entry.BalanceBefore, &entry.BalanceAfter, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Exists implements storage.PlayerDirectory against the players table.
func (s *Store) Exists(ctx context.Context, playerID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)
	`, playerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("player lookup: %w", err)
	}
	return exists, nil
}

// --- TransferUnit -----------------------------------------------------------

// GetOrCreateBalance materialises a zero-balance row on first reference and
// locks the row for the rest of the unit. The insert-then-lock sequence keeps
// concurrent first references to the same player down to a single row: the
// conflict target swallows the losing insert and both units queue on the row
// lock.
func (u *unit) GetOrCreateBalance(ctx context.Context, playerID int64) (chip.Balance, bool, error) {
	res, err := u.tx.ExecContext(ctx, `
		INSERT INTO chip_balances (player_id, balance, last_updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (player_id) DO NOTHING
	`, playerID, time.Now().UTC())
	if err != nil {
		return chip.Balance{}, false, fmt.Errorf("create balance for player %d: %w", playerID, err)
	}
	inserted, _ := res.RowsAffected()

	row := u.tx.QueryRowContext(ctx, `
		SELECT player_id, balance, last_updated_at
		FROM chip_balances
		WHERE player_id = $1
		FOR UPDATE
	`, playerID)
	b, err := scanBalance(row)
	if err != nil {
		return chip.Balance{}, false, fmt.Errorf("lock balance for player %d: %w", playerID, err)
	}
	return b, inserted > 0, nil
}

func (u *unit) ApplyBalanceDelta(ctx context.Context, playerID int64, delta int64) (chip.Balance, error) {
	row := u.tx.QueryRowContext(ctx, `
		UPDATE chip_balances
		SET balance = balance + $2, last_updated_at = $3
		WHERE player_id = $1
		RETURNING player_id, balance, last_updated_at
	`, playerID, delta, time.Now().UTC())

	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chip.Balance{}, chip.ErrPlayerNotFound
		}
		return chip.Balance{}, fmt.Errorf("apply delta to player %d: %w", playerID, err)
	}
	return b, nil
}

func (u *unit) CreateTransfer(ctx context.Context, tr chip.Transfer) (chip.Transfer, error) {
	now := time.Now().UTC()
	tr.Status = chip.StatusPending
	tr.CreatedAt = now
	tr.UpdatedAt = now

	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO chip_transfers (transfer_id, from_player_id, to_player_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tr.TransferID, tr.FromPlayerID, tr.ToPlayerID, tr.Amount, tr.Status, tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return chip.Transfer{}, chip.ErrDuplicateTransferID
		}
		return chip.Transfer{}, fmt.Errorf("create transfer %s: %w", tr.TransferID, err)
	}
	return tr, nil
}

func (u *unit) CompleteTransfer(ctx context.Context, transferID string) error {
	res, err := u.tx.ExecContext(ctx, `
		UPDATE chip_transfers
		SET status = $2, updated_at = $3
		WHERE transfer_id = $1 AND status = $4
	`, transferID, chip.StatusCompleted, time.Now().UTC(), chip.StatusPending)
	if err != nil {
		return fmt.Errorf("complete transfer %s: %w", transferID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return chip.ErrTransferNotFound
	}
	return nil
}

func (u *unit) RecordHistory(ctx context.Context, entry chip.HistoryEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO chip_history (player_id, transfer_id, direction, amount, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.PlayerID, entry.TransferID, entry.Direction, entry.Amount, entry.BalanceBefore, entry.BalanceAfter, createdAt)
	if err != nil {
		return fmt.Errorf("record %s history for player %d: %w", entry.Direction, entry.PlayerID, err)
	}
	return nil
}

func scanBalance(row *sql.Row) (chip.Balance, error) {
	var (
		b           chip.Balance
		lastUpdated sql.NullTime
	)
	if err := row.Scan(&b.PlayerID, &b.Amount, &lastUpdated); err != nil {
		return chip.Balance{}, err
	}
	if lastUpdated.Valid {
		b.LastUpdatedAt = lastUpdated.Time.UTC()
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
