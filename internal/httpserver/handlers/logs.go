package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
)

const (
	defaultRawLogCount = 100
	defaultEventCount  = 50
)

func parseCount(r *http.Request, def int) int {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Logs returns the most recent raw logcat lines, oldest first.
func Logs(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lines := d.RawLines.Last(parseCount(r, defaultRawLogCount))
		if lines == nil {
			lines = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"logs":  lines,
			"count": len(lines),
		})
	}
}

// Events returns the most recent notification records, oldest first.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := d.Records.Last(parseCount(r, defaultEventCount))
		if records == nil {
			records = []domain.LogRecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": records,
			"count":  len(records),
		})
	}
}
