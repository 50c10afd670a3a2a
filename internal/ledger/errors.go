package ledger

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when an operation requires an existing
// account and none exists for the user.
var ErrAccountNotFound = errors.New("account not found")

// UnknownFeatureError reports a feature identifier missing from the catalog.
type UnknownFeatureError struct {
	Feature string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature %q", e.Feature)
}

// InsufficientCreditsError is the expected business outcome when a debit
// would take the balance negative. It carries the current balance so callers
// can prompt a purchase with the exact shortfall.
type InsufficientCreditsError struct {
	Required int64
	Current  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, current %d", e.Required, e.Current)
}

// InvalidAmountError reports a non-positive credit amount.
type InvalidAmountError struct {
	Amount int64
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid credit amount %d: must be a positive integer", e.Amount)
}
