package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/tillbook/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error         string             `json:"error"`
	Code          string             `json:"code,omitempty"`
	OperationID   string             `json:"operation_id,omitempty"`
	Completed     []string           `json:"completed_steps,omitempty"`
	Discrepancies []errs.Discrepancy `json:"discrepancies,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "bad_request") }

// writeServiceError maps the errs taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *errs.PartialApplicationError
	var integrity *errs.IntegrityError
	switch {
	case errors.As(err, &partial):
		toJSON(w, http.StatusInternalServerError, errorResponse{
			Error:       "operation outcome unknown; reconcile before retrying",
			Code:        "partial_application",
			OperationID: partial.OperationID.String(),
			Completed:   partial.Completed,
		})
	case errors.As(err, &integrity):
		toJSON(w, http.StatusInternalServerError, errorResponse{
			Error:         "ledger out of balance",
			Code:          "integrity_error",
			Discrepancies: integrity.Discrepancies,
		})
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, errs.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeErr(w, http.StatusConflict, err.Error(), "contention")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), errs.Code(err))
	case errors.Is(err, errs.ErrForbidden):
		writeErr(w, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), errs.Code(err))
	default:
		s.log.Error("unhandled service error", "req_id", chimw.GetReqID(r.Context()), "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
