package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relaymesh/server/internal/account"
	"github.com/relaymesh/server/internal/auth"
	"github.com/relaymesh/server/internal/http/handlers"
	"github.com/relaymesh/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(accountHandler *handlers.AccountHandler, jwtService *auth.JWTService, accounts *account.Manager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/v1/accounts", func(r chi.Router) {
		r.Post("/code", accountHandler.HandleRequestCode)
		r.Post("/", accountHandler.HandleRegister)

		// Protected routes (require valid device token)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService, accounts))
			r.Get("/me", accountHandler.HandleWhoAmI)
			r.Put("/attributes", accountHandler.HandleSetAttributes)
			r.Put("/number", accountHandler.HandleChangeNumber)
			r.Delete("/me", accountHandler.HandleDelete)
		})
	})

	return r
}
