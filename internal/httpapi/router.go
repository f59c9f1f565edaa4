// Package httpapi is the admin HTTP surface over idpcore.Engine.
package httpapi

import (
	"net/http"

	"github.com/MrEthical07/idpcore"
	"github.com/MrEthical07/idpcore/internal/logging"
	"github.com/MrEthical07/idpcore/middleware"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	engine  *idpcore.Engine
	log     logging.Logger
	metrics http.Handler

	// Route gates, taken from the engine's Roles config so the HTTP layer
	// and the engine agree on who is a superuser or group manager.
	superuser    string
	groupManager string
}

// NewHandler binds the routes to engine. metrics may be nil, in which case
// /metrics is not mounted.
func NewHandler(engine *idpcore.Engine, log logging.Logger, metrics http.Handler) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	roles := engine.Config().Roles
	return &Handler{
		engine:       engine,
		log:          log,
		metrics:      metrics,
		superuser:    roles.SuperuserAuthority,
		groupManager: roles.GroupManagerAuthority,
	}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/authenticate", h.authenticate)
		r.Post("/reset-password", h.resetPassword)
		r.Post("/verify-email", h.verifyEmail)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Guard(h.engine))
		r.Use(middleware.RequireAuthority(h.superuser, h.groupManager))

		r.Get("/roles", h.allRoles)
		r.Get("/users/me/assignable-roles", h.assignableRoles)
		r.Get("/users/me/assignable-groups", h.assignableGroups)

		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/roles", h.userRoles)
			r.Put("/roles/{role}", h.addRole)
			r.Delete("/roles/{role}", h.removeRole)
			r.Put("/groups/{group}", h.addGroup)
			r.Delete("/groups/{group}", h.removeGroup)
			r.Put("/enable", h.enable)
			r.Put("/disable", h.disable)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuthority(h.superuser))
				r.Put("/lock", h.lock)
				r.Put("/unlock", h.unlock)
				r.Post("/initial-password", h.initialPassword)
			})
		})
	})

	return r
}
