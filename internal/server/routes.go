// Package server wires HTTP handlers into a ServeMux for the room chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures and returns the application's HTTP handler.
// Plain HTTP routes are wrapped with CORS for the configured origins; the
// WebSocket endpoints enforce origins during the upgrade instead.
func (s *Server) SetupRoutes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/healthz", HealthHandler)
	api.HandleFunc("/config", s.ConfigHandler)
	api.HandleFunc("/favicon.ico", s.FaviconHandler)
	api.HandleFunc("/test", TestPageHandler)
	api.Handle("/metrics", s.metrics.Handler())
	if s.cfg.StaticDir != "" {
		api.Handle("/", s.StaticHandler())
	} else {
		api.HandleFunc("/", HealthHandler)
	}

	corsPolicy := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/lobby", s.LobbyHandler)
	mux.HandleFunc("/ws/room/{id}", s.RoomHandler)
	mux.Handle("/", corsPolicy.Handler(api))
	return mux
}
