package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// KindMappings maps every error kind to its HTTP status.
// HandleError consults it after the module specific mappings.
var KindMappings = []ErrorMapping{
	{Error: domain.ErrValidation, Status: http.StatusBadRequest},
	{Error: domain.ErrUnauthorized, Status: http.StatusUnauthorized},
	{Error: domain.ErrForbidden, Status: http.StatusForbidden},
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrConflict, Status: http.StatusConflict},
	{Error: domain.ErrInvalidOperation, Status: http.StatusConflict},
	{Error: domain.ErrTransactionFailed, Status: http.StatusInternalServerError, Message: "transaction failed"},
}

// HandleError maps a domain error to an HTTP response using the provided
// mappings, then KindMappings. Unmatched errors are logged and returned
// as 500 Internal Server Error.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, set := range [][]ErrorMapping{mappings, KindMappings} {
		for _, m := range set {
			if !errors.Is(err, m.Error) {
				continue
			}
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			if m.Status >= http.StatusInternalServerError {
				ctxlog.FromContext(ctx).Error("request failed", "error", err, "kind", domain.KindOf(err))
			}
			ErrorWithKind(w, m.Status, domain.KindOf(err), msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	ErrorWithKind(w, http.StatusInternalServerError, domain.KindInternal, "internal error")
}
