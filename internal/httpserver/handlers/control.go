package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/logger"
)

type controlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeControl(w http.ResponseWriter, status int, success bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(controlResponse{Success: success, Message: message})
}

// Start enables the watcher in the configuration and launches the session in
// the background. Connection establishment can take seconds (adb retries),
// so the request returns immediately and progress lands in /api/status.
func Start(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("device_id")

		if err := d.Config.Update(map[string]any{
			"general": map[string]any{"enable_watcher": true},
		}); err != nil {
			d.Logger.Error("persisting watcher enable failed", logger.Error(err))
		}

		go func() {
			if err := d.Session.Start(target); err != nil {
				d.Logger.Error("session start failed", logger.Error(err))
			}
		}()

		writeControl(w, http.StatusAccepted, true, "monitoring start requested")
	}
}

// Stop halts the session and disables the watcher so it stays off across
// restarts of the service.
func Stop(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Config.Update(map[string]any{
			"general": map[string]any{"enable_watcher": false},
		}); err != nil {
			d.Logger.Error("persisting watcher disable failed", logger.Error(err))
		}

		d.Session.Stop()
		writeControl(w, http.StatusOK, true, "monitoring stopped")
	}
}

// Restart tears the session down and brings it back up with the last-used
// device target, asynchronously like Start.
func Restart(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := d.Session.Restart(); err != nil {
				d.Logger.Error("session restart failed", logger.Error(err))
			}
		}()

		writeControl(w, http.StatusAccepted, true, "monitoring restart requested")
	}
}
