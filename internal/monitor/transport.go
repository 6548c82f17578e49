package monitor

import (
	"context"

	"github.com/adbwatch/adbwatch/internal/adb"
	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/logger"
)

// LineStream is a live sequence of raw log lines. Lines closes when the
// underlying stream ends; Close terminates it early.
type LineStream interface {
	Lines() <-chan domain.RawLine
	Close() error
}

// Transport is the capability the session needs from the device bridge.
// Keeping it an interface lets the monitoring loop run against a fake stream
// without a real device.
type Transport interface {
	Connect(ctx context.Context) error
	ForceReconnect(ctx context.Context) error
	Alive(ctx context.Context) bool
	OpenLogStream(ctx context.Context, filter adb.LogcatFilter) (LineStream, error)
	Target() string
}

// TransportFactory builds a transport bound to a device target. The session
// calls it on every (re)start so a target change takes effect.
type TransportFactory func(target string) Transport

type adbTransport struct {
	*adb.Client
}

func (t adbTransport) OpenLogStream(ctx context.Context, filter adb.LogcatFilter) (LineStream, error) {
	stream, err := t.Client.OpenLogStream(ctx, filter)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// ADBFactory is the production TransportFactory, backed by the adb binary.
func ADBFactory(log logger.Logger) TransportFactory {
	return func(target string) Transport {
		return adbTransport{adb.NewClient(target, log)}
	}
}
