package deps

import (
	"context"
	"time"

	"github.com/adbwatch/adbwatch/internal/config"
	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/history"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/monitor"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	Config   *config.Manager                 // live configuration manager
	Session  *monitor.Session                // the monitoring session
	RawLines *history.Ring[string]           // raw logcat tail
	Records  *history.Ring[domain.LogRecord] // notification history

	Hub *monitor.Hub // live line fan-out for the websocket tail

	// TestConnection probes a device target without touching the session.
	TestConnection func(ctx context.Context, target string) error
}
