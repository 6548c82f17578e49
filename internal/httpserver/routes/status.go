package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

func init() { Register(registerStatus, apiTimeout()) }

func registerStatus(r chi.Router, d deps.Deps) {
	r.Get("/api/status", handlers.Status(d))
}
