package core

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeAlreadyDeleted    = "already_deleted"
	ErrCodeAlreadyFinalized  = "already_finalized"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeNotFound          = "not_found"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotJoined         = "not_joined"
	ErrCodeConflict          = "conflict"
	ErrCodeUnavailable       = "unavailable"
	ErrCodeStorage           = "storage_failure"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyDeleted    = errors.New("message already deleted")
	ErrAlreadyFinalized  = errors.New("scheduled message already finalized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
	ErrNotJoined         = errors.New("join required")
	ErrConflict          = errors.New("concurrent modification")
	ErrUnavailable       = errors.New("feature unavailable")
	ErrStorage           = errors.New("storage failure")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ToCoreError maps an error returned by the core into its client-facing form.
// Storage failures are reported generically; details stay in server logs.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrStorage):
		return coreError(ErrCodeStorage, "internal error")
	case errors.Is(err, ErrUnauthorized):
		return coreError(ErrCodeUnauthorized, "not found or unauthorized")
	case errors.Is(err, ErrAlreadyDeleted):
		return coreError(ErrCodeAlreadyDeleted, err.Error())
	case errors.Is(err, ErrAlreadyFinalized):
		return coreError(ErrCodeAlreadyFinalized, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return coreError(ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, "not found")
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrNotJoined):
		return coreError(ErrCodeNotJoined, err.Error())
	case errors.Is(err, ErrConflict):
		return coreError(ErrCodeConflict, err.Error())
	case errors.Is(err, ErrUnavailable):
		return coreError(ErrCodeUnavailable, err.Error())
	default:
		return coreError(ErrCodeStorage, "internal error")
	}
}

// IsStorageFailure reports whether err should be logged as a server-side failure.
func IsStorageFailure(err error) bool {
	return ToCoreError(err).Code == ErrCodeStorage
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

// fromStoreLookup translates a failed ledger lookup.
func fromStoreLookup(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return storageErr(op, err)
}
