package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/httpx/middlewares"
)

// NewRouter mounts the order API under /api.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/order", handler.CreateOrder)
		r.Get("/order/{id}", handler.GetOrderByID)
		r.Get("/event", handler.FindByFilters)
		r.Get("/event/all", handler.FindAll)
	})
	return r
}
