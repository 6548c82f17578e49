package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

func init() { Register(registerConfig, apiTimeout()) }

func registerConfig(r chi.Router, d deps.Deps) {
	r.Get("/api/config", handlers.GetConfig(d))
	r.Post("/api/config", handlers.UpdateConfig(d))
}
