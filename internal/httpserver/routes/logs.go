package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

func init() { Register(registerLogs, apiTimeout()) }

func registerLogs(r chi.Router, d deps.Deps) {
	r.Get("/api/logs", handlers.Logs(d))
	r.Get("/api/events", handlers.Events(d))
}
