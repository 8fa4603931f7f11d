// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playtower/chipbank/internal/app/domain/chip"
	"github.com/playtower/chipbank/internal/app/storage"
)

// Store keeps all chip state in maps. Units of work are serialized on the
// store mutex and operate on a staged copy, so a failed unit leaves the
// committed state untouched - the same all-or-nothing guarantee the postgres
// store gets from database transactions.
type Store struct {
	mu        sync.Mutex
	balances  map[int64]chip.Balance
	transfers map[string]chip.Transfer
	history   map[int64][]chip.HistoryEntry
	players   map[int64]struct{}
}

var _ storage.TransferStore = (*Store)(nil)
var _ storage.PlayerDirectory = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		balances:  make(map[int64]chip.Balance),
		transfers: make(map[string]chip.Transfer),
		history:   make(map[int64][]chip.HistoryEntry),
		players:   make(map[int64]struct{}),
	}
}

// AddPlayer registers a player id with the directory. Test setup helper; the
// chip core itself never creates players.
func (s *Store) AddPlayer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[id] = struct{}{}
}

// Exists implements storage.PlayerDirectory.
func (s *Store) Exists(_ context.Context, playerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[playerID]
	return ok, nil
}

// SeedBalance installs a balance row directly. Test setup helper.
func (s *Store) SeedBalance(playerID, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[playerID] = chip.Balance{PlayerID: playerID, Amount: amount, LastUpdatedAt: time.Now().UTC()}
}

// unit is a staged view of the store used inside one unit of work.
type unit struct {
	balances  map[int64]chip.Balance
	transfers map[string]chip.Transfer
	history   map[int64][]chip.HistoryEntry
}

var _ storage.TransferUnit = (*unit)(nil)

// InTransaction implements storage.TransferStore. The store mutex is held for
// the whole unit, so concurrent transfers serialize; fn writes into a staged
// copy that is only folded back on success.
func (s *Store) InTransaction(ctx context.Context, fn func(storage.TransferUnit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	u := &unit{
		balances:  make(map[int64]chip.Balance, len(s.balances)),
		transfers: make(map[string]chip.Transfer, len(s.transfers)),
		history:   make(map[int64][]chip.HistoryEntry, len(s.history)),
	}
	for id, b := range s.balances {
		u.balances[id] = b
	}
	for id, tr := range s.transfers {
		u.transfers[id] = tr
	}
	for id, entries := range s.history {
		u.history[id] = append([]chip.HistoryEntry(nil), entries...)
	}

	if err := fn(u); err != nil {
		return err
	}

	s.balances = u.balances
	s.transfers = u.transfers
	s.history = u.history
	return nil
}

// FailTransfer implements storage.TransferStore.
func (s *Store) FailTransfer(_ context.Context, tr chip.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.transfers[tr.TransferID]
	if ok {
		existing.Status = chip.StatusFailed
		existing.UpdatedAt = now
		s.transfers[tr.TransferID] = existing
		return nil
	}

	tr.Status = chip.StatusFailed
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now
	s.transfers[tr.TransferID] = tr
	return nil
}

// GetBalance implements storage.TransferStore. Read-only; never creates.
func (s *Store) GetBalance(_ context.Context, playerID int64) (chip.Balance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[playerID]
	return b, ok, nil
}

// GetTransfer implements storage.TransferStore.
func (s *Store) GetTransfer(_ context.Context, transferID string) (chip.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transfers[transferID]
	if !ok {
		return chip.Transfer{}, chip.ErrTransferNotFound
	}
	return tr, nil
}

// ListTransfersByPlayer implements storage.TransferStore. Transfers where the
// player is sender or receiver, oldest first.
func (s *Store) ListTransfersByPlayer(_ context.Context, playerID int64) ([]chip.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []chip.Transfer
	for _, tr := range s.transfers {
		if tr.FromPlayerID == playerID || tr.ToPlayerID == playerID {
			result = append(result, tr)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].TransferID < result[j].TransferID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListHistory implements storage.TransferStore.
func (s *Store) ListHistory(_ context.Context, playerID int64) ([]chip.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chip.HistoryEntry(nil), s.history[playerID]...), nil
}

// --- TransferUnit -----------------------------------------------------------

func (u *unit) GetOrCreateBalance(_ context.Context, playerID int64) (chip.Balance, bool, error) {
	if b, ok := u.balances[playerID]; ok {
		return b, false, nil
	}
	b := chip.Balance{PlayerID: playerID, Amount: 0, LastUpdatedAt: time.Now().UTC()}
	u.balances[playerID] = b
	return b, true, nil
}

func (u *unit) ApplyBalanceDelta(_ context.Context, playerID int64, delta int64) (chip.Balance, error) {
	b, ok := u.balances[playerID]
	if !ok {
		return chip.Balance{}, chip.ErrPlayerNotFound
	}
	b.Amount += delta
	b.LastUpdatedAt = time.Now().UTC()
	u.balances[playerID] = b
	return b, nil
}

func (u *unit) CreateTransfer(_ context.Context, tr chip.Transfer) (chip.Transfer, error) {
	if _, exists := u.transfers[tr.TransferID]; exists {
		return chip.Transfer{}, chip.ErrDuplicateTransferID
	}
	now := time.Now().UTC()
	tr.Status = chip.StatusPending
	tr.CreatedAt = now
	tr.UpdatedAt = now
	u.transfers[tr.TransferID] = tr
	return tr, nil
}

func (u *unit) CompleteTransfer(_ context.Context, transferID string) error {
	tr, ok := u.transfers[transferID]
	if !ok {
		return chip.ErrTransferNotFound
	}
	tr.Status = chip.StatusCompleted
	tr.UpdatedAt = time.Now().UTC()
	u.transfers[transferID] = tr
	return nil
}

func (u *unit) RecordHistory(_ context.Context, entry chip.HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	u.history[entry.PlayerID] = append(u.history[entry.PlayerID], entry)
	return nil
}
