// Package transfer implements the chip transfer orchestrator: validation,
// the atomic debit/credit protocol, ledger lifecycle and audit history.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playtower/chipbank/internal/app/domain/chip"
	"github.com/playtower/chipbank/internal/app/events"
	"github.com/playtower/chipbank/internal/app/metrics"
	"github.com/playtower/chipbank/internal/app/storage"
	"github.com/playtower/chipbank/pkg/logger"
)

// DefaultMaxTransfer is the largest amount a single transfer may move.
const DefaultMaxTransfer = 5000

// IDGenerator produces transfer ids. Injected so tests can force collisions.
type IDGenerator interface {
	NewTransferID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewTransferID() string {
	return "chip_transfer_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewUUIDGenerator returns the default collision-resistant id generator.
func NewUUIDGenerator() IDGenerator { return uuidGenerator{} }

// Option customises a Service.
type Option func(*Service)

// WithMaxTransfer overrides the per-transfer amount cap.
func WithMaxTransfer(max int64) Option {
	return func(s *Service) {
		if max > 0 {
			s.maxTransfer = max
		}
	}
}

// WithIDGenerator overrides the transfer id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithPublisher attaches an event publisher for completed transfers.
func WithPublisher(pub events.Publisher) Option {
	return func(s *Service) {
		if pub != nil {
			s.publisher = pub
		}
	}
}

// Service coordinates balance mutation, the transfer ledger and history
// inside one unit of work per transfer attempt.
type Service struct {
	directory   storage.PlayerDirectory
	store       storage.TransferStore
	publisher   events.Publisher
	ids         IDGenerator
	maxTransfer int64
	log         *logger.Logger
}

// New constructs a transfer service.
func New(directory storage.PlayerDirectory, store storage.TransferStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("transfer")
	}
	s := &Service{
		directory:   directory,
		store:       store,
		publisher:   events.Nop{},
		ids:         uuidGenerator{},
		maxTransfer: DefaultMaxTransfer,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is a validated-shape transfer request. Zero values are treated as
// missing fields by validation.
type Request struct {
	FromPlayerID int64
	ToPlayerID   int64
	Amount       int64
}

// Result reports a completed transfer.
type Result struct {
	TransferID   string
	FromPlayerID int64
	ToPlayerID   int64
	Amount       int64
	FromBalance  int64
	ToBalance    int64
}

// Transfer runs the full protocol. Once validation passes the attempt is
// detached from caller cancellation and always reaches a terminal state.
// Error values distinguish the outcomes:
// *ValidationError (no side effects), *InsufficientBalanceError (no ledger
// row), and anything else is a storage failure after which the ledger row, if
// one was created, has been marked failed in a separate unit of work.
func (s *Service) Transfer(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if err := s.validate(ctx, req); err != nil {
		outcome := "failed"
		var verr *ValidationError
		if errors.As(err, &verr) {
			outcome = "rejected"
		}
		metrics.RecordTransfer(outcome, 0, time.Since(start))
		return Result{}, err
	}

	// From here the protocol runs to a terminal state even if the caller
	// disconnects; the store's tx timeout is the only bound.
	ctx = context.WithoutCancel(ctx)

	result, attempted, err := s.run(ctx, s.ids.NewTransferID(), req)
	if errors.Is(err, chip.ErrDuplicateTransferID) {
		// Collision on a fresh id is near-impossible but cheap to retry
		// once with a regenerated id.
		s.log.WithField("from", req.FromPlayerID).Warn("transfer id collision, retrying with fresh id")
		result, attempted, err = s.run(ctx, s.ids.NewTransferID(), req)
		if errors.Is(err, chip.ErrDuplicateTransferID) {
			err = fmt.Errorf("transfer id collision persisted after retry: %w", err)
		}
	}

	if err != nil {
		var insufficient *InsufficientBalanceError
		if errors.As(err, &insufficient) {
			metrics.RecordTransfer("insufficient", 0, time.Since(start))
			return Result{}, err
		}

		if attempted.TransferID != "" {
			if failErr := s.store.FailTransfer(ctx, attempted); failErr != nil {
				s.log.WithError(failErr).WithField("transfer_id", attempted.TransferID).
					Error("could not record failed transfer")
			}
		}
		metrics.RecordTransfer("failed", 0, time.Since(start))
		s.log.WithError(err).WithField("from", req.FromPlayerID).WithField("to", req.ToPlayerID).
			Error("transfer failed")
		return Result{}, err
	}

	metrics.RecordTransfer("completed", req.Amount, time.Since(start))
	s.log.WithField("transfer_id", result.TransferID).
		WithField("from", req.FromPlayerID).
		WithField("to", req.ToPlayerID).
		WithField("amount", req.Amount).
		Info("transfer completed")

	if err := s.publisher.PublishTransferCompleted(ctx, events.TransferCompleted{
		TransferID:   result.TransferID,
		FromPlayerID: result.FromPlayerID,
		ToPlayerID:   result.ToPlayerID,
		Amount:       result.Amount,
		FromBalance:  result.FromBalance,
		ToBalance:    result.ToBalance,
		OccurredAt:   time.Now().UTC(),
	}); err != nil {
		// Best effort only; the transfer has already committed.
		s.log.WithError(err).WithField("transfer_id", result.TransferID).
			Warn("publish transfer event failed")
	}

	return result, nil
}

// run executes one attempt inside one unit of work. attempted reports the
// ledger row created during the attempt, if any, so the caller can mark it
// failed after a rollback.
func (s *Service) run(ctx context.Context, transferID string, req Request) (Result, chip.Transfer, error) {
	var (
		result    Result
		attempted chip.Transfer
	)

	err := s.store.InTransaction(ctx, func(unit storage.TransferUnit) error {
		// Lock balances in ascending player id order so crossing
		// transfers cannot deadlock.
		first, second := req.FromPlayerID, req.ToPlayerID
		if second < first {
			first, second = second, first
		}
		balances := make(map[int64]chip.Balance, 2)
		for _, id := range []int64{first, second} {
			b, _, err := unit.GetOrCreateBalance(ctx, id)
			if err != nil {
				return err
			}
			balances[id] = b
		}

		from := balances[req.FromPlayerID]
		to := balances[req.ToPlayerID]

		if from.Amount < req.Amount {
			return &InsufficientBalanceError{
				CurrentBalance:  from.Amount,
				RequestedAmount: req.Amount,
			}
		}

		tr, err := unit.CreateTransfer(ctx, chip.Transfer{
			TransferID:   transferID,
			FromPlayerID: req.FromPlayerID,
			ToPlayerID:   req.ToPlayerID,
			Amount:       req.Amount,
		})
		if err != nil {
			return err
		}
		attempted = tr

		fromAfter, err := unit.ApplyBalanceDelta(ctx, req.FromPlayerID, -req.Amount)
		if err != nil {
			return err
		}
		toAfter, err := unit.ApplyBalanceDelta(ctx, req.ToPlayerID, req.Amount)
		if err != nil {
			return err
		}

		if err := unit.RecordHistory(ctx, chip.HistoryEntry{
			PlayerID:      req.FromPlayerID,
			TransferID:    transferID,
			Direction:     chip.DirectionDebit,
			Amount:        req.Amount,
			BalanceBefore: from.Amount,
			BalanceAfter:  fromAfter.Amount,
		}); err != nil {
			return err
		}
		if err := unit.RecordHistory(ctx, chip.HistoryEntry{
			PlayerID:      req.ToPlayerID,
			TransferID:    transferID,
			Direction:     chip.DirectionCredit,
			Amount:        req.Amount,
			BalanceBefore: to.Amount,
			BalanceAfter:  toAfter.Amount,
		}); err != nil {
			return err
		}

		if err := unit.CompleteTransfer(ctx, transferID); err != nil {
			return err
		}

		result = Result{
			TransferID:   transferID,
			FromPlayerID: req.FromPlayerID,
			ToPlayerID:   req.ToPlayerID,
			Amount:       req.Amount,
			FromBalance:  fromAfter.Amount,
			ToBalance:    toAfter.Amount,
		}
		return nil
	})

	return result, attempted, err
}

// validate checks shape, range and player resolvability. It performs no
// writes.
func (s *Service) validate(ctx context.Context, req Request) error {
	verr := &ValidationError{}

	if req.FromPlayerID <= 0 {
		verr.add("fromPlayerId", "fromPlayerId must be a positive integer")
	}
	if req.ToPlayerID <= 0 {
		verr.add("toPlayerId", "toPlayerId must be a positive integer")
	}
	if req.FromPlayerID > 0 && req.FromPlayerID == req.ToPlayerID {
		verr.add("toPlayerId", "toPlayerId must be different from fromPlayerId")
	}
	if req.Amount < 1 {
		verr.add("amount", "amount must be at least 1")
	} else if req.Amount > s.maxTransfer {
		verr.add("amount", fmt.Sprintf("amount may not be greater than %d", s.maxTransfer))
	}
	if !verr.empty() {
		return verr
	}

	for field, id := range map[string]int64{
		"fromPlayerId": req.FromPlayerID,
		"toPlayerId":   req.ToPlayerID,
	} {
		exists, err := s.directory.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("resolve player %d: %w", id, err)
		}
		if !exists {
			verr.add(field, fmt.Sprintf("player %d does not exist", id))
		}
	}
	if !verr.empty() {
		return verr
	}
	return nil
}

// BalanceInfo is the read-only balance view. Exists reports whether a balance
// row has been materialised; absent rows read as zero chips.
type BalanceInfo struct {
	PlayerID      int64
	Balance       int64
	LastUpdatedAt time.Time
	Exists        bool
}

// GetBalance returns a player's balance without creating a row. Unknown
// players yield chip.ErrPlayerNotFound.
func (s *Service) GetBalance(ctx context.Context, playerID int64) (BalanceInfo, error) {
	exists, err := s.directory.Exists(ctx, playerID)
	if err != nil {
		return BalanceInfo{}, fmt.Errorf("resolve player %d: %w", playerID, err)
	}
	if !exists {
		return BalanceInfo{}, chip.ErrPlayerNotFound
	}

	balance, found, err := s.store.GetBalance(ctx, playerID)
	if err != nil {
		return BalanceInfo{}, err
	}
	if !found {
		return BalanceInfo{PlayerID: playerID}, nil
	}
	return BalanceInfo{
		PlayerID:      playerID,
		Balance:       balance.Amount,
		LastUpdatedAt: balance.LastUpdatedAt,
		Exists:        true,
	}, nil
}

// History lists a player's audit entries, oldest first.
func (s *Service) History(ctx context.Context, playerID int64) ([]chip.HistoryEntry, error) {
	exists, err := s.directory.Exists(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("resolve player %d: %w", playerID, err)
	}
	if !exists {
		return nil, chip.ErrPlayerNotFound
	}
	return s.store.ListHistory(ctx, playerID)
}

// Transfers lists ledger rows where the player is sender or receiver.
func (s *Service) Transfers(ctx context.Context, playerID int64) ([]chip.Transfer, error) {
	exists, err := s.directory.Exists(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("resolve player %d: %w", playerID, err)
	}
	if !exists {
		return nil, chip.ErrPlayerNotFound
	}
	return s.store.ListTransfersByPlayer(ctx, playerID)
}
