package server

import (
	"net/http"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/middleware"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/iam"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/validation"
	"github.com/frostu8/nymph/pkg/api"
)

// UserHandlers serves the /users routes.
type UserHandlers struct {
	issuer    *iam.Issuer
	validator *validation.SchemaValidator
	logger    logging.Logger
}

// NewUserHandlers creates the /users handlers.
func NewUserHandlers(issuer *iam.Issuer, validator *validation.SchemaValidator, logger logging.Logger) *UserHandlers {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &UserHandlers{issuer: issuer, validator: validator, logger: logger}
}

// HandleProxyToken serves POST /users/proxy.
//
// The caller must hold a service credential. The credential is checked before
// the body is read, so an unauthenticated caller learns nothing about the
// payload format.
func (h *UserHandlers) HandleProxyToken(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.Principal(r)
	if err == nil {
		err = iam.RequireService(caller)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.ProxyTokenRequest
	if err := decodeRequest(r, h.validator, schemaProxyToken, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.issuer.ProxyToken(r.Context(), caller, req.DiscordID, req.DisplayName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ProxyTokenResponse{Token: token})
}

// HandleDiscordUser serves POST /users/discord.
func (h *UserHandlers) HandleDiscordUser(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.Principal(r)
	if err == nil {
		err = iam.RequireService(caller)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req api.DiscordUserRequest
	if err := decodeRequest(r, h.validator, schemaDiscordUser, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, token, err := h.issuer.RegisterDiscordUser(r.Context(), caller, req.DiscordID, req.DisplayName, req.GenerateToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, api.DiscordUserResponse{
		User: api.User{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Managed:     user.Managed,
		},
		DiscordID:   req.DiscordID,
		AccessToken: token,
	})
}

// HandleWhoAmI serves GET /users/me with the resolved caller.
func (h *UserHandlers) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, api.WhoAmIResponse{
		User:   caller.User(),
		Scheme: string(caller.Scheme),
	})
}
