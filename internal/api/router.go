package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route(
		"/api", func(r chi.Router) {
			r.Get("/health", h.HealthHandler)

			r.Group(
				func(r chi.Router) {
					r.Use(h.JWTAuthMiddleware)

					r.Post("/session", h.StartSessionHandler)
					r.Post("/messages", h.PostMessageHandler)
					r.Get("/quick-replies", h.ListQuickRepliesHandler)
					r.Post("/quick-replies", h.PostQuickReplyHandler)
					r.Get("/history/stream", h.HistoryStreamHandler)
					r.Post("/logout", h.LogoutHandler)
				},
			)
		},
	)

	return r
}
