package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/handlers"
)

// The live tail is the one route registered without apiTimeout: the
// connection stays open as long as the client keeps reading.
func init() { Register(registerStream) }

func registerStream(r chi.Router, d deps.Deps) {
	r.Get("/api/logs/stream", handlers.Stream(d))
}
