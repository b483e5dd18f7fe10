package httpadapter

import (
	"net/http"

	"datanav/internal/core/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeError(w http.ResponseWriter, status int, kind, message string, retryable bool) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
	}})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, kind, retryable := mapDomainError(err)
	if status == http.StatusServiceUnavailable && retryable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, kind, err.Error(), retryable)
}

// mapDomainError translates the semantic error kinds of the core into HTTP
// status, a stable machine-readable kind and a retry hint.
func mapDomainError(err error) (int, string, bool) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_query", false
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", false
	case domain.IsKind(err, domain.ErrContextBudgetTooSmall):
		return http.StatusUnprocessableEntity, "context_budget_too_small", false
	case domain.IsKind(err, domain.ErrAllProvidersUnavailable):
		return http.StatusServiceUnavailable, "providers_unavailable", true
	case domain.IsKind(err, domain.ErrNoRetrievalAvailable):
		return http.StatusServiceUnavailable, "retrieval_unavailable", true
	case domain.IsKind(err, domain.ErrRetrievalTimeout):
		return http.StatusServiceUnavailable, "retrieval_timeout", true
	case domain.IsKind(err, domain.ErrProviderTimeout):
		return http.StatusServiceUnavailable, "provider_timeout", true
	case domain.IsKind(err, domain.ErrCacheUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, "temporarily_unavailable", true
	default:
		return http.StatusInternalServerError, "internal", false
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", false)
}
