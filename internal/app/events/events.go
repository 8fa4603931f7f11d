// Package events publishes transfer lifecycle events for downstream
// consumers (reporting, fraud screening). Publishing is best effort: a
// publish failure never fails the transfer that produced it.
package events

import (
	"context"
	"time"
)

// TransferCompleted is emitted after a transfer commits.
type TransferCompleted struct {
	TransferID   string    `json:"transfer_id"`
	FromPlayerID int64     `json:"from_player_id"`
	ToPlayerID   int64     `json:"to_player_id"`
	Amount       int64     `json:"amount"`
	FromBalance  int64     `json:"from_balance"`
	ToBalance    int64     `json:"to_balance"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher delivers transfer events.
type Publisher interface {
	PublishTransferCompleted(ctx context.Context, event TransferCompleted) error
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishTransferCompleted(context.Context, TransferCompleted) error { return nil }
