package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/logger"
)

// GetConfig returns the full configuration document as it sits on disk.
func GetConfig(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"config": d.Config.Raw(),
		})
	}
}

type updateConfigRequest struct {
	Config map[string]any `json:"config"`
}

// UpdateConfig merges the submitted sections into the configuration, persists
// them, and reconciles the running session with the new settings.
func UpdateConfig(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeControl(w, http.StatusBadRequest, false, "invalid JSON body")
			return
		}
		if len(req.Config) == 0 {
			writeControl(w, http.StatusBadRequest, false, "no configuration sections provided")
			return
		}

		if err := d.Config.Update(req.Config); err != nil {
			d.Logger.Error("configuration update rejected", logger.Error(err))
			writeControl(w, http.StatusBadRequest, false, err.Error())
			return
		}

		// Reconciling may stop or restart the session; do it off-request.
		go func() {
			if err := d.Session.ApplyConfig(); err != nil {
				d.Logger.Error("applying configuration to session failed", logger.Error(err))
			}
		}()

		writeControl(w, http.StatusOK, true, "configuration updated")
	}
}
