package rest

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/blueprint"
	"github.com/tablodata/tablo/pkg/httputil"
	"github.com/tablodata/tablo/pkg/metrics"
	"github.com/tablodata/tablo/pkg/pagination"
	"github.com/tablodata/tablo/pkg/query"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

// writeError maps the engine's error taxonomy onto HTTP statuses and writes
// the structured error body. It returns the status for metrics.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	var (
		syntaxErr   *query.FilterSyntaxError
		deniedErr   *query.AccessDeniedError
		notFoundErr *schema.ObjectNotFoundError
	)

	status := http.StatusInternalServerError
	reason := "internal"

	switch {
	case errors.Is(err, query.ErrMethodNotAllowed):
		w.Header().Set("Allow", "GET, OPTIONS")
		status, reason = http.StatusMethodNotAllowed, "method"

	case errors.As(err, &syntaxErr), errors.Is(err, errBadPageSize),
		errors.Is(err, pagination.ErrPageNotAnInteger):
		status, reason = http.StatusBadRequest, "syntax"

	case errors.As(err, &deniedErr):
		status, reason = http.StatusForbidden, "field_access"
		httputil.Logger(r).Info("field access denied",
			zap.String("field", deniedErr.Field),
			zap.String("principal", deniedErr.Scopes))

	case errors.As(err, &notFoundErr), errors.Is(err, storage.ErrRowNotFound),
		errors.Is(err, pagination.ErrEmptyPage), errors.Is(err, pagination.ErrPageOutOfRange):
		status, reason = http.StatusNotFound, "not_found"

	case errors.Is(err, blueprint.ErrRecursionLimit):
		status, reason = http.StatusInternalServerError, "recursion"
	}

	if status >= http.StatusInternalServerError {
		httputil.Logger(r).Error("request failed", zap.Error(err))
	} else {
		metrics.ValidationRejections.WithLabelValues(reason).Inc()
	}
	httputil.Error(w, status, err.Error())
	return status
}
