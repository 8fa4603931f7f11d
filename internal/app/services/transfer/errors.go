package transfer

import (
	"fmt"

	"github.com/playtower/chipbank/internal/app/domain/chip"
)

// ValidationError carries per-field validation messages for a rejected
// request. No side effects have occurred when it is returned.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string { return "validation failed" }

// add appends a message for a field, allocating the map on first use.
func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

// InsufficientBalanceError reports a transfer rejected for lack of chips. By
// policy no ledger row exists for this outcome.
type InsufficientBalanceError struct {
	CurrentBalance  int64
	RequestedAmount int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient chip balance: have %d, requested %d", e.CurrentBalance, e.RequestedAmount)
}

func (e *InsufficientBalanceError) Unwrap() error { return chip.ErrInsufficientBalance }
