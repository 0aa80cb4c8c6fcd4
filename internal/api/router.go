package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
				r.Get("/hwinfo", s.handleGetHardwareInfo)
				r.Put("/command", s.handleCommand)
			})
		})

		r.Post("/refresh", s.handleRefresh)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status, including how recently
// the device mirror reconciled with the vendor.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	lastSync := s.registry.LastSync()
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if !lastSync.IsZero() {
		body["last_sync"] = lastSync.UTC().Format(time.RFC3339)
		body["sync_age_seconds"] = int(time.Since(lastSync).Seconds())
	} else {
		body["status"] = "starting"
	}
	writeJSON(w, http.StatusOK, body)
}
