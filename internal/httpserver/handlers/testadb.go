package handlers

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/logger"
)

// network targets look like 192.168.1.50 or 192.168.1.50:5555
var networkTargetRe = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}(:\d{1,5})?$`)

const connTestTimeout = 15 * time.Second

// TestADB probes connectivity to a device without disturbing the running
// session. The target comes from the device_id query parameter, falling
// back to the configured device.
func TestADB(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("device_id")
		if target == "" {
			target = d.Config.Current().ADB.DeviceID
		}
		if target == "" {
			writeControl(w, http.StatusBadRequest, false, "no device target configured")
			return
		}
		if !networkTargetRe.MatchString(target) {
			writeControl(w, http.StatusBadRequest, false, "device_id must look like IP or IP:PORT")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), connTestTimeout)
		defer cancel()

		if err := d.TestConnection(ctx, target); err != nil {
			d.Logger.Warn("adb connection test failed",
				logger.String("target", target),
				logger.Error(err))
			writeControl(w, http.StatusOK, false, err.Error())
			return
		}

		writeControl(w, http.StatusOK, true, "device reachable")
	}
}
