package services

import (
	"errors"
	"net/http"

	"github.com/streamvault/backend/internal/models"
)

// Sentinel errors returned by the ledger and its collaborators. Handlers map
// these to HTTP statuses; none of them may surface as a generic 500.
var (
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrAccountNotFound     = errors.New("ledger: account not found")
	ErrEntryNotFound       = errors.New("ledger: entry not found")
	ErrEntryNotPending     = errors.New("ledger: entry already resolved")
	ErrEntryNotReversible  = errors.New("ledger: entry cannot be reversed")
	ErrBusy                = errors.New("ledger: account busy, retry later")
	ErrConflict            = errors.New("ledger: concurrent modification, retry")

	ErrCodeInvalid = errors.New("deposit code: invalid or expired")
	ErrCodeUsed    = errors.New("deposit code: already used")
	ErrRateLimited = errors.New("deposit code: rate limit exceeded")
)

// StatusForError maps a ledger error to the HTTP status a handler should
// return. ErrBusy and ErrConflict are retryable; callers get 409.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, models.ErrCurrencyMismatch),
		errors.Is(err, models.ErrArithmeticOverflow),
		errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrCodeUsed):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEntryNotPending), errors.Is(err, ErrEntryNotReversible),
		errors.Is(err, ErrBusy), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may retry the same call with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrConflict)
}
