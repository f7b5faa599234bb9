package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, contracts.SuccessResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, contracts.ErrorResponse{Status: "error", Error: contracts.ErrorPayload{Code: code, Message: message, RequestID: requestID}})
}

func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, domain.ErrAccountBlocked):
		return http.StatusForbidden, "account_blocked"
	case errors.Is(err, domain.ErrRedemptionExpired):
		return http.StatusConflict, "redemption_expired"
	case errors.Is(err, domain.ErrRedemptionNotPending):
		return http.StatusConflict, "redemption_not_pending"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "dependency_unavailable"
	case errors.Is(err, domain.ErrUnsupportedEventType):
		return http.StatusBadRequest, "unsupported_event"
	case errors.Is(err, domain.ErrUnsupportedEventClass), errors.Is(err, domain.ErrInvalidEnvelope):
		return http.StatusBadRequest, "invalid_event_envelope"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
