package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/idpcore"
	"github.com/go-chi/chi/v5"
)

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
	AccessToken string   `json:"access_token,omitempty"`
}

type tokenPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type disableRequest struct {
	Reason string `json:"reason"`
}

type roleView struct {
	Code string `json:"roleCode"`
	Name string `json:"roleName"`
}

type groupView struct {
	Code string `json:"groupCode"`
	Name string `json:"groupName"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "ok")
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	acct, err := h.engine.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeMappedError(w, r, "authenticate", err)
		return
	}

	res := authenticateResponse{Username: acct.Username, Authorities: acct.Authorities}
	token, err := h.engine.IssueAccessToken(acct)
	switch {
	case err == nil:
		res.AccessToken = token
	case !errors.Is(err, idpcore.ErrEngineNotReady):
		h.writeMappedError(w, r, "issue_access_token", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := h.engine.SetPasswordWithToken(r.Context(), req.Token, req.Password); err != nil {
		h.writeMappedError(w, r, "reset_password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	username, err := h.engine.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.writeMappedError(w, r, "verify_email", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"username": username})
}

func (h *Handler) allRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.engine.AllRoles(r.Context())
	if err != nil {
		h.writeMappedError(w, r, "all_roles", err)
		return
	}
	writeSuccess(w, http.StatusOK, toRoleViews(roles))
}

func (h *Handler) assignableRoles(w http.ResponseWriter, r *http.Request) {
	admin, _ := idpcore.PrincipalFromContext(r.Context())
	roles, err := h.engine.AssignableRoles(r.Context(), admin)
	if err != nil {
		h.writeMappedError(w, r, "assignable_roles", err)
		return
	}
	writeSuccess(w, http.StatusOK, toRoleViews(roles))
}

func (h *Handler) assignableGroups(w http.ResponseWriter, r *http.Request) {
	admin, _ := idpcore.PrincipalFromContext(r.Context())
	groups, err := h.engine.AssignableGroups(r.Context(), admin)
	if err != nil {
		h.writeMappedError(w, r, "assignable_groups", err)
		return
	}
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView{Code: g.Code, Name: g.Name})
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	admin, _ := idpcore.PrincipalFromContext(r.Context())
	username := chi.URLParam(r, "username")
	if err := h.engine.IsPermittedToManage(r.Context(), admin, username); err != nil {
		h.writeMappedError(w, r, "user_roles", err)
		return
	}
	roles, err := h.engine.UserRoles(r.Context(), username)
	if err != nil {
		h.writeMappedError(w, r, "user_roles", err)
		return
	}
	writeSuccess(w, http.StatusOK, toRoleViews(roles))
}

func (h *Handler) addRole(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "add_role", func(admin idpcore.Principal, username string) error {
		return h.engine.AddRole(r.Context(), username, chi.URLParam(r, "role"), admin)
	})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "remove_role", func(admin idpcore.Principal, username string) error {
		return h.engine.RemoveRole(r.Context(), username, chi.URLParam(r, "role"), admin)
	})
}

func (h *Handler) addGroup(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "add_group", func(admin idpcore.Principal, username string) error {
		return h.engine.AddGroup(r.Context(), username, chi.URLParam(r, "group"), admin)
	})
}

func (h *Handler) removeGroup(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "remove_group", func(admin idpcore.Principal, username string) error {
		return h.engine.RemoveGroup(r.Context(), username, chi.URLParam(r, "group"), admin)
	})
}

func (h *Handler) enable(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "enable", func(admin idpcore.Principal, username string) error {
		return h.engine.EnableAccount(r.Context(), username, admin)
	})
}

// disable accepts an optional {"reason": ...} body.
func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	var req disableRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}
	h.mutate(w, r, "disable", func(admin idpcore.Principal, username string) error {
		return h.engine.DisableAccount(r.Context(), username, req.Reason, admin)
	})
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "lock", func(admin idpcore.Principal, username string) error {
		return h.engine.LockAccount(r.Context(), username, admin)
	})
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "unlock", func(admin idpcore.Principal, username string) error {
		return h.engine.UnlockAccount(r.Context(), username, admin)
	})
}

func (h *Handler) initialPassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if _, err := h.engine.SendInitialPassword(r.Context(), username); err != nil {
		h.writeMappedError(w, r, "initial_password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, operation string, fn func(admin idpcore.Principal, username string) error) {
	admin, _ := idpcore.PrincipalFromContext(r.Context())
	if err := fn(admin, strings.TrimSpace(chi.URLParam(r, "username"))); err != nil {
		h.writeMappedError(w, r, operation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, msg := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed",
			"operation", operation,
			"request_id", requestIDFromContext(r.Context()),
			"code", code,
			"error", err,
		)
	}
	writeError(w, status, code, msg)
}

func toRoleViews(roles []idpcore.Authority) []roleView {
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleView{Code: role.Code, Name: role.Name})
	}
	return out
}
