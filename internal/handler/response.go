package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/counter"
	"github.com/Siddarth2230/asset-labels/internal/service"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

// helper: write JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON encode error", "error", err)
	}
}

// helper: write an error message in JSON form { "error": "msg" }
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, idgen.ErrInvalidLabel),
		errors.Is(err, service.ErrLabelNotIssued),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidRecord),
		errors.Is(err, service.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrLabelTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, allocator.ErrAllocationConflict):
		logger.Warn("allocation conflict", "op", op, "error", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "label allocation conflict, retry the request")
	case errors.Is(err, counter.ErrStoreUnavailable):
		logger.Error("store unavailable", "op", op, "error", err)
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, counter.ErrAllocationExhausted):
		logger.Error("label counter exhausted", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "label space exhausted")
	default:
		logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeAndValidate reads a JSON body strictly and runs struct validation.
func decodeAndValidate(r *http.Request, v *validator.Validate, dst any) (string, bool) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return "invalid request payload", false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return "field " + fe.Field() + " failed " + fe.Tag() + " validation", false
		}
		return "invalid request payload", false
	}
	return "", true
}
