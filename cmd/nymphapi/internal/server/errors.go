package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/iam"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/validation"
	"github.com/frostu8/nymph/pkg/api"
)

var (
	// ErrUnsupportedContentType is returned for request bodies that are not application/json
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrBodyTooLarge is returned when a request body exceeds maxBodyBytes
	ErrBodyTooLarge = errors.New("request body too large")
)

// toAPIError classifies err into the wire error taxonomy. The bool is false
// when err is unclassified, in which case the returned error is generic and
// the cause must be logged, not sent.
func toAPIError(err error) (*api.Error, bool) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var authErr *iam.AuthError
	if errors.As(err, &authErr) {
		return authErr.APIError(), true
	}

	var invalid *validation.InvalidPayloadError
	if errors.As(err, &invalid) {
		return api.NewError(api.InvalidData, invalid.Error()), true
	}

	switch {
	case errors.Is(err, iam.ErrUnauthenticated):
		return api.NewError(api.Unauthenticated, "Authentication is required."), true
	case errors.Is(err, iam.ErrForbidden):
		return api.NewError(api.Forbidden, "This resource is forbidden."), true
	case errors.Is(err, validation.ErrMalformedJSON):
		return api.NewError(api.MalformedJson, "The request body is not valid JSON."), true
	case errors.Is(err, ErrBodyTooLarge):
		return api.NewError(api.InvalidData, "The request body is too large."), true
	case errors.Is(err, ErrUnsupportedContentType):
		return api.NewError(api.UnsupportedContentType, "Expected request with `Content-Type: application/json`."), true
	case errors.Is(err, repository.ErrNotFound):
		return api.NewError(api.NotFound, "The resource was not found."), true
	}

	return api.NewError(api.InternalServerError, "An internal server error occurred."), false
}

// writeError renders err as an api.Error body with the matching HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) {
	apiErr, known := toAPIError(err)
	if !known {
		logger.WithContext(r.Context()).Error("request failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}

	if apiErr.Code == api.Unauthenticated || apiErr.Code == api.BadCredentials {
		w.Header().Set("WWW-Authenticate", `Bearer realm="nymph"`)
	}
	writeJSON(w, apiErr.Code.Status(), apiErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
