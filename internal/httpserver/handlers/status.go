package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
)

type statusResponse struct {
	domain.SessionState
	WatcherEnabled       bool   `json:"watcher_enabled"`
	NotificationEndpoint string `json:"notification_endpoint"`
	CooldownSeconds      int    `json:"cooldown_seconds"`
}

func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config.Current()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponse{
			SessionState:         d.Session.Status(),
			WatcherEnabled:       cfg.General.EnableWatcher,
			NotificationEndpoint: cfg.Notification.Endpoint,
			CooldownSeconds:      cfg.General.CooldownSeconds,
		})
	}
}
