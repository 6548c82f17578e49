package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

func init() { Register(registerControl, apiTimeout()) }

func registerControl(r chi.Router, d deps.Deps) {
	r.Post("/api/start", handlers.Start(d))
	r.Post("/api/stop", handlers.Stop(d))
	r.Post("/api/restart", handlers.Restart(d))
}
