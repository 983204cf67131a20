package domain

import "errors"

// Error kinds. Module errors wrap exactly one of these so callers can
// branch on the kind with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrTransactionFailed = errors.New("transaction failed")
)

// Kind names of the error taxonomy, as exposed to API clients.
const (
	KindValidation        = "ValidationError"
	KindUnauthorized      = "Unauthorized"
	KindForbidden         = "Forbidden"
	KindInvalidOperation  = "InvalidOperation"
	KindNotFound          = "NotFound"
	KindConflict          = "Conflict"
	KindTransactionFailed = "ConflictOrTransactionFailure"
	KindInternal          = "Internal"
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidation, KindValidation},
	{ErrUnauthorized, KindUnauthorized},
	{ErrForbidden, KindForbidden},
	{ErrInvalidOperation, KindInvalidOperation},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrTransactionFailed, KindTransactionFailed},
}

// KindOf returns the taxonomy name of err. Unclassified errors are Internal.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}
