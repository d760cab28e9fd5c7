package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the chi router serving the v1 HTTP surface.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(withRequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/actuator/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUserID)

		r.Post("/posts", h.CreatePost)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/posts", h.GetUserPosts)
			r.Get("/following", h.GetFollowing)
			r.Get("/followers", h.GetFollowers)
			r.Get("/timeline", h.GetTimeline)
			r.Post("/follow/{target}", h.Follow)
			r.Delete("/follow/{target}", h.Unfollow)
		})

		r.Get("/demo/stats", h.DemoStats)
		r.Post("/demo/reset", h.DemoReset)
	})

	return r
}
