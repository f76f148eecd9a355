package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input. Nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers both absent records and lists owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrNotMember means the card is not in the list the caller named.
	ErrNotMember = errors.New("card is not a member of the list")
	// ErrDuplicateReference means the card is already in the target list.
	ErrDuplicateReference = errors.New("card is already referenced by the list")
	// ErrConflict means the stored list version moved under the writer.
	ErrConflict = errors.New("list was modified concurrently")
	// ErrStore wraps any other storage failure.
	ErrStore = errors.New("store failure")
	// ErrMoveFailed is matched by *MoveFailedError.
	ErrMoveFailed = errors.New("move failed")
)

// MoveFailedError reports a cross-list move whose card was removed from
// the source but could neither be placed in the destination nor put back.
// The card needs manual reconciliation.
type MoveFailedError struct {
	CardID       string
	SourceListID string
	DestListID   string
	Cause        error
}

func (e *MoveFailedError) Error() string {
	return fmt.Sprintf("move failed: card %s removed from list %s but not placed in list %s: %v",
		e.CardID, e.SourceListID, e.DestListID, e.Cause)
}

func (e *MoveFailedError) Is(target error) bool { return target == ErrMoveFailed }

func (e *MoveFailedError) Unwrap() error { return e.Cause }

// Validationf builds an ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
