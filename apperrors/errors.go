// Package apperrors defines the error taxonomy shared by the planner, the
// inventory coordinator and the HTTP layer. Callers match with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientArea: the requested cut does not fit the chosen panel,
	// directly or rotated. Raw area being sufficient is not enough; guillotine
	// cuts cannot reshape aspect ratio.
	ErrInsufficientArea = errors.New("insufficient panel area for requested cut")

	// ErrInsufficientQuantity: a material row does not hold the requested stock.
	ErrInsufficientQuantity = errors.New("insufficient material quantity")

	// ErrConcurrentModification: the panel changed between read and commit;
	// the caller should retry the whole reservation against fresh state.
	ErrConcurrentModification = errors.New("panel modified concurrently")

	// ErrInvalidState: the operation is not allowed in the current job/order
	// state. Never retried.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrUnknownPiece: a submitted piece sequence does not exist in the plan.
	ErrUnknownPiece = errors.New("piece sequence not present in cut plan")

	// ErrRestorationInconsistency: ledger replay found no matching prior
	// consumption for a referenced item. Fatal for that restoration step.
	ErrRestorationInconsistency = errors.New("ledger inconsistent with inventory state")

	// ErrNotFound: referenced row does not exist.
	ErrNotFound = errors.New("record not found")
)

// Wrap annotates err with item context while keeping it matchable.
func Wrap(err error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
