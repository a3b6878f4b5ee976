// Package errs holds the error taxonomy shared by the stores, the services and
// the HTTP layer. Callers classify with errors.Is / errors.As.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	// ErrInvalid is the root of every client-correctable validation failure.
	ErrInvalid = errors.New("invalid")
	// ErrContention is retryable: a lock or transaction conflict between concurrent writers.
	ErrContention = errors.New("contention")
	// ErrPartialApplication marks a logical operation whose outcome is not known to be all-or-nothing.
	ErrPartialApplication = errors.New("partial_application")
	// ErrIntegrity marks a balance that disagrees with its journal.
	ErrIntegrity = errors.New("integrity_error")
)

// Validation errors. Each wraps ErrInvalid.
var (
	ErrInvalidAmount       = validation("invalid_amount")
	ErrInvalidEntry        = validation("invalid_entry")
	ErrUnconfiguredMapping = validation("unconfigured_mapping")
	ErrSameAccount         = validation("same_account")
	ErrAlreadySettled      = validation("already_settled")
	ErrInvalidAllocation   = validation("invalid_allocation")
	ErrAllocationMismatch  = validation("allocation_mismatch")
	ErrShiftOpen           = validation("shift_open")
	ErrShiftNotOpen        = validation("shift_not_open")
	ErrAccountInactive     = validation("account_inactive")
	ErrImmutable           = validation("immutable")
)

// ErrMissingConfiguration is the settlement-side name for an absent role mapping.
var ErrMissingConfiguration = ErrUnconfiguredMapping

// Conflicts. Each wraps ErrConflict.
var (
	ErrDuplicateID   = fmt.Errorf("%w: duplicate_id", ErrConflict)
	ErrDuplicateName = fmt.Errorf("%w: duplicate_name", ErrConflict)
)

func validation(code string) error { return &codedError{code: code, parent: ErrInvalid} }

type codedError struct {
	code   string
	parent error
}

func (e *codedError) Error() string { return e.code }
func (e *codedError) Unwrap() error { return e.parent }

// Code returns the most specific machine-readable code for err, or "" when err
// carries none of the taxonomy.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.Is(err, ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrPartialApplication):
		return "partial_application"
	case errors.Is(err, ErrIntegrity):
		return "integrity_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalid):
		return "validation_error"
	}
	return ""
}

// PartialApplicationError reports a logical operation that may have been
// applied in part. Completed lists the steps staged before the failure, so an
// operator can reconcile by hand.
type PartialApplicationError struct {
	Operation   string
	OperationID uuid.UUID
	Completed   []string
	Err         error
}

func (e *PartialApplicationError) Error() string {
	return fmt.Sprintf("%s %s partially applied after %d step(s): %v", e.Operation, e.OperationID, len(e.Completed), e.Err)
}

func (e *PartialApplicationError) Unwrap() []error { return []error{ErrPartialApplication, e.Err} }

// Discrepancy quantifies one account whose balance disagrees with its journal.
// Amounts are minor units.
type Discrepancy struct {
	AccountID   uuid.UUID `json:"account_id"`
	AccountName string    `json:"account_name"`
	LedgerSum   int64     `json:"ledger_sum_minor"`
	Balance     int64     `json:"balance_minor"`
	Difference  int64     `json:"difference_minor"`
}

// IntegrityError lists every account found out of balance.
type IntegrityError struct {
	Discrepancies []Discrepancy
}

func (e *IntegrityError) Error() string {
	parts := make([]string, 0, len(e.Discrepancies))
	for _, d := range e.Discrepancies {
		parts = append(parts, fmt.Sprintf("%s (%s) off by %d", d.AccountID, d.AccountName, d.Difference))
	}
	return "integrity_error: " + strings.Join(parts, "; ")
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }
