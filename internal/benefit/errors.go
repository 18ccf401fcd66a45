package benefit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel kinds. Every typed error below matches exactly one of them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("account not found")
	ErrInactive          = errors.New("account inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrVersionConflict   = errors.New("version conflict")
	ErrLockTimeout       = errors.New("lock wait timed out")
)

// ValidationError reports a malformed request. No store access happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing account. Side is empty outside of transfers.
type NotFoundError struct {
	ID   int64
	Side Side
}

func (e *NotFoundError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("account %d not found", e.ID)
	}
	return fmt.Sprintf("%s account %d not found", e.Side, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InactiveAccountError reports that one side of a transfer is not active.
type InactiveAccountError struct {
	ID   int64
	Side Side
}

func (e *InactiveAccountError) Error() string {
	return fmt.Sprintf("%s account %d is inactive", e.Side, e.ID)
}

func (e *InactiveAccountError) Is(target error) bool { return target == ErrInactive }

// InsufficientFundsError reports a debit larger than the source balance.
type InsufficientFundsError struct {
	ID        int64
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %d: balance %s, requested %s",
		e.ID, e.Balance.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// VersionConflictError reports a save against a stale version.
type VersionConflictError struct {
	ID       int64
	Expected int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("account %d was modified concurrently (expected version %d)", e.ID, e.Expected)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// LockTimeoutError reports a lock wait that exceeded the transaction budget,
// or a deadlock detected by the store. Nothing was changed.
type LockTimeoutError struct {
	ID  int64
	Err error
}

func (e *LockTimeoutError) Error() string {
	msg := "timed out waiting for account lock"
	if e.ID != 0 {
		msg = fmt.Sprintf("timed out waiting for lock on account %d", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }

func (e *LockTimeoutError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may resubmit the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrLockTimeout)
}

// Kind returns a short stable label for err, used in logs, metrics and error bodies.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInactive):
		return "account_inactive"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	default:
		return "internal_error"
	}
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
