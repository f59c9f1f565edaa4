package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrEthical07/idpcore"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// mapDomainError turns an engine error into a status, a stable code and a
// client-safe message. Unknown errors are 500 and never echo err.
func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, idpcore.ErrMissingCredentials):
		return http.StatusBadRequest, "MISSING_CREDENTIALS", "username and password are required"
	case errors.Is(err, idpcore.ErrBadCredentials):
		return http.StatusUnauthorized, "BAD_CREDENTIALS", "bad credentials"
	case errors.Is(err, idpcore.ErrAccountLocked):
		return http.StatusLocked, "LOCKED", "account locked"
	case errors.Is(err, idpcore.ErrAccountDisabled):
		return http.StatusForbidden, "DISABLED", "account disabled"
	case errors.Is(err, idpcore.ErrPasswordExpired):
		return http.StatusForbidden, "EXPIRED", "password expired"
	case errors.Is(err, idpcore.ErrAccountNotFound):
		return http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found"
	case errors.Is(err, idpcore.ErrNoRelationship):
		return http.StatusForbidden, "NO_RELATIONSHIP", "not permitted to manage this account"
	case errors.Is(err, idpcore.ErrGroupManagerNotMember):
		return http.StatusForbidden, "GROUP_MANAGER_NOT_MEMBER", "group managers may only use their own groups"
	case errors.Is(err, idpcore.ErrRoleNotFound):
		return http.StatusNotFound, "ROLE_NOT_FOUND", "role not found"
	case errors.Is(err, idpcore.ErrGroupNotFound):
		return http.StatusNotFound, "GROUP_NOT_FOUND", "group not found"
	case errors.Is(err, idpcore.ErrRoleAlreadyAssigned):
		return http.StatusConflict, "ROLE_EXISTS", "role already assigned"
	case errors.Is(err, idpcore.ErrGroupAlreadyAssigned):
		return http.StatusConflict, "GROUP_EXISTS", "group already assigned"
	case errors.Is(err, idpcore.ErrRoleNotAssigned):
		return http.StatusBadRequest, "ROLE_MISSING", "role not assigned"
	case errors.Is(err, idpcore.ErrGroupNotAssigned):
		return http.StatusBadRequest, "GROUP_MISSING", "group not assigned"
	case errors.Is(err, idpcore.ErrRoleNotAssignable):
		return http.StatusBadRequest, "ROLE_INVALID", "role not assignable"
	case errors.Is(err, idpcore.ErrInvalidAuthorityCode):
		return http.StatusBadRequest, "ROLE_FORMAT", "invalid role code"
	case errors.Is(err, idpcore.ErrTokenInvalid):
		return http.StatusBadRequest, "TOKEN_INVALID", "token invalid"
	case errors.Is(err, idpcore.ErrTokenExpired):
		return http.StatusBadRequest, "TOKEN_EXPIRED", "token expired"
	case errors.Is(err, idpcore.ErrPasswordBlank), errors.Is(err, idpcore.ErrPasswordReuse):
		return http.StatusBadRequest, "PASSWORD_REJECTED", err.Error()
	case errors.Is(err, idpcore.ErrExternalAccount):
		return http.StatusBadRequest, "EXTERNAL_ACCOUNT", "account is managed by the external directory"
	case errors.Is(err, idpcore.ErrNoRecipient):
		return http.StatusBadRequest, "NO_EMAIL", "account has no email address"
	case errors.Is(err, idpcore.ErrPrincipalRequired):
		return http.StatusUnauthorized, "UNAUTHORIZED", "authentication required"
	case errors.Is(err, idpcore.ErrDeliveryFailure):
		return http.StatusBadGateway, "DELIVERY_FAILED", "notification delivery failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
