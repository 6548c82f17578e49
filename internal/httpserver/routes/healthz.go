package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

func init() { Register(registerHealthz, apiTimeout()) }

func registerHealthz(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
}
