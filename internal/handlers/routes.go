package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Will-Jameson/portfolio-website/internal/auth"
	"github.com/Will-Jameson/portfolio-website/internal/blog"
	"github.com/Will-Jameson/portfolio-website/internal/clock"
	appmiddleware "github.com/Will-Jameson/portfolio-website/internal/middleware"
)

type RouterConfig struct {
	Store              *blog.Store
	Gate               *auth.Gate
	Clock              clock.Clock
	LoginURL           string
	CorsAllowedOrigins []string
	CookieSecure       bool
}

// NewRouter wires the blog API. ctx bounds background work such as the
// rate limiter sweep and session auto-extension.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: allowsCredentials(cfg.CorsAllowedOrigins),
		MaxAge:           300,
	}).Handler)

	r.Get("/health", Health)

	postsHandler := NewPostsHandler(cfg.Store, cfg.Gate, cfg.Clock)
	authHandler := NewAuthHandler(ctx, cfg.Gate, cfg.CookieSecure)

	r.Route("/api", func(r chi.Router) {
		// 5 login attempts per minute per IP
		loginRateLimiter := appmiddleware.NewRateLimiter(ctx, 5, time.Minute)
		r.With(loginRateLimiter.Limit).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/session", authHandler.Session)

		publicLimiter := appmiddleware.NewRateLimiter(ctx, 60, time.Minute)
		r.With(publicLimiter.Limit).Get("/posts", postsHandler.ListPublic)
		r.With(publicLimiter.Limit).Get("/post", postsHandler.GetByID)
		r.Get("/stats", postsHandler.Stats)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.RequireSession(cfg.Gate, cfg.LoginURL))
			r.Get("/drafts", postsHandler.Drafts)
			r.Post("/posts", postsHandler.Save)
			r.Delete("/post", postsHandler.Delete)
			r.Get("/export", postsHandler.Export)
			r.Post("/import", postsHandler.Import)
			r.Get("/storage", postsHandler.Storage)
			r.Get("/settings", postsHandler.GetSettings)
			r.Put("/settings", postsHandler.SaveSettings)
			r.Post("/password", authHandler.ChangePassword)
		})
	})
	return r
}

// allowsCredentials reports whether the cookie may cross origins. A
// wildcard would hand the session to any site.
func allowsCredentials(origins []string) bool {
	if len(origins) == 0 {
		return false
	}
	for _, o := range origins {
		if o == "*" {
			return false
		}
	}
	return true
}
