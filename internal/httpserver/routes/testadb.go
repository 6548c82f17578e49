package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

func init() { Register(registerTestADB, apiTimeout()) }

func registerTestADB(r chi.Router, d deps.Deps) {
	r.Post("/api/test/adb", handlers.TestADB(d))
}
