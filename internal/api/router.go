// Package api wires the HTTP router: middleware chain, REST endpoints and
// the websocket entrypoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/FathanAS/fdvp-backend/internal/activity"
	"github.com/FathanAS/fdvp-backend/internal/api/middleware"
	"github.com/FathanAS/fdvp-backend/internal/gateway"
	"github.com/FathanAS/fdvp-backend/internal/handlers"
	"github.com/FathanAS/fdvp-backend/internal/presence"
	"github.com/FathanAS/fdvp-backend/internal/store"
	"github.com/FathanAS/fdvp-backend/internal/ws"
)

// Deps holds everything the router serves.
type Deps struct {
	Logger   zerolog.Logger
	Store    store.DataStore
	Redis    *store.RedisStore
	Hub      *ws.Hub
	Gateway  *gateway.Gateway
	Presence *presence.Tracker
	Activity *activity.Recorder
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(32 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	// CORS - browser clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(d.Store, d.Redis, d.Presence, d.Activity)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Websocket entrypoint; everything real-time flows through here.
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(d.Hub, d.Gateway, d.Logger, w, req)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Get("/history/{roomId}", h.GetHistory)
		r.Delete("/history/{roomId}", h.ClearHistory)
		r.Delete("/messages", h.DeleteMessages)
		r.Patch("/messages/{id}", h.EditMessage)
	})

	r.Get("/conversations/{userId}", h.GetConversations)

	r.Route("/users/{id}", func(r chi.Router) {
		r.Put("/", h.UpsertUser)
		r.Get("/status", h.GetUserStatus)
		r.Post("/push-tokens", h.AddPushToken)
		r.Delete("/push-tokens", h.RemovePushTokens)
	})

	return r
}
