package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// API routes — protected by API key auth
	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Generations
		r.Get("/generations", h.ListGenerations)
		r.Post("/generations", h.CreateGeneration)
		r.Get("/generations/{id}", h.GetGeneration)
		r.Delete("/generations/{id}", h.DeleteGeneration)
		r.Patch("/generations/{id}/settings", h.UpdateGenerationSettings)
		r.Get("/generations/{id}/debug/jobs", h.GetGenerationJobs)

		// Scenes — structural and in-place operations
		r.Delete("/generations/{id}/scenes/{sceneId}", h.DeleteScene)
		r.Post("/generations/{id}/scenes/{sceneId}/angles", h.GenerateAngles)
		r.Post("/generations/{id}/scenes/{sceneId}/edit", h.EditScene)
		r.Post("/generations/{id}/scenes/{sceneId}/undo", h.UndoEdit)
		r.Post("/generations/{id}/scenes/{sceneId}/save", h.SaveScene)

		// Per-scene video workflow
		r.Post("/generations/{id}/scenes/{sceneId}/video", h.GenerateVideo)
		r.Post("/generations/{id}/scenes/{sceneId}/video/reset", h.ResetVideo)
		r.Get("/generations/{id}/scenes/{sceneId}/clip", h.GetClip)

		// Standalone speech synthesis
		r.Post("/generations/{id}/scenes/{sceneId}/speech", h.GenerateSpeech)

		// Saved library
		r.Get("/saved", h.ListSavedItems)
		r.Delete("/saved/{key}", h.DeleteSavedItem)

		// Character roster
		r.Get("/characters", h.ListCharacters)
		r.Post("/characters", h.CreateCharacter)
		r.Get("/characters/{id}", h.GetCharacter)
		r.Put("/characters/{id}", h.UpdateCharacter)
		r.Delete("/characters/{id}", h.DeleteCharacter)
		r.Post("/characters/{id}/describe", h.DescribeCharacter)
		r.Post("/characters/detect", h.DetectCharacters)
	})

	return r
}
