// Package monitor owns the monitoring session: one background task driving
// the device log stream through extraction, cooldown, mapping, and
// notification, while keeping the health snapshot everyone else reads.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adbwatch/adbwatch/internal/adb"
	"github.com/adbwatch/adbwatch/internal/config"
	"github.com/adbwatch/adbwatch/internal/dedup"
	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/history"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/notify"
)

const (
	defaultProbeInterval  = 30 * time.Second
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	// every Nth reconnect attempt escalates to an adb server restart
	forceEvery = 3

	storeTimeout = 2 * time.Second
)

// Session is the single monitoring session. All mutable health state lives
// behind its locks; external layers only ever see Status() snapshots.
type Session struct {
	cfg          *config.Manager
	log          logger.Logger
	newTransport TransportFactory
	dedup        dedup.Store
	dispatcher   *notify.Dispatcher
	rawLines     *history.Ring[string]
	hub          *Hub

	probeInterval  time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// serializes Start/Stop/Restart/ApplyConfig
	mu sync.Mutex

	stateMu    sync.RWMutex
	state      domain.SessionState
	lastTarget string

	extMu   sync.Mutex
	pattern string
	ext     *domain.Extractor

	stopCh chan struct{}
	done   chan struct{}
}

func NewSession(
	cfg *config.Manager,
	log logger.Logger,
	factory TransportFactory,
	store dedup.Store,
	dispatcher *notify.Dispatcher,
	rawLines *history.Ring[string],
	hub *Hub,
) *Session {
	return &Session{
		cfg:           cfg,
		log:           log,
		newTransport:  factory,
		dedup:         store,
		dispatcher:    dispatcher,
		rawLines:      rawLines,
		hub:           hub,
		probeInterval:  defaultProbeInterval,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
}

// Status returns a read-only snapshot of the session health.
func (s *Session) Status() domain.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Start connects to target (or the configured device when empty, or the sole
// attached device when that is empty too) and launches the monitoring loop.
// Only a failure to establish the initial connection is surfaced here; every
// later failure is absorbed into the session state.
func (s *Session) Start(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(target)
}

// Stop terminates the monitoring loop and resets the health flags.
// Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Restart stops the session and starts it again with the last-used target.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return s.startLocked(s.lastTarget)
}

// ApplyConfig reconciles the running session with the current configuration:
// disabling the watcher stops it, a device target change restarts it. Other
// settings (cooldown, mapping, endpoint, pattern) are picked up per line and
// need no restart.
func (s *Session) ApplyConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Current()
	running := s.Status().Running

	if !cfg.General.EnableWatcher {
		if running {
			s.log.Info("watcher disabled in configuration, stopping monitoring")
			s.stopLocked()
		}
		return nil
	}

	if running && cfg.ADB.DeviceID != "" && cfg.ADB.DeviceID != s.lastTarget {
		s.log.Info("device target changed, restarting session",
			logger.String("old", s.lastTarget),
			logger.String("new", cfg.ADB.DeviceID))
		s.stopLocked()
		return s.startLocked(cfg.ADB.DeviceID)
	}

	return nil
}

func (s *Session) startLocked(target string) error {
	if s.Status().Running {
		return nil
	}

	cfg := s.cfg.Current()
	if target == "" {
		target = cfg.ADB.DeviceID
	}

	t := s.newTransport(target)
	ctx := context.Background()

	if err := t.Connect(ctx); err != nil {
		s.log.Warn("connect failed, forcing reconnect",
			logger.String("target", target),
			logger.Error(err))
		if err := t.ForceReconnect(ctx); err != nil {
			s.markStartFailure(t.Target())
			return fmt.Errorf("connect %q: %w", target, err)
		}
	}

	stream, err := t.OpenLogStream(ctx, s.filter(cfg))
	if err != nil {
		s.markStartFailure(t.Target())
		return fmt.Errorf("open log stream: %w", err)
	}

	s.lastTarget = t.Target()
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	s.setState(domain.SessionState{
		Running:         true,
		DeviceConnected: true,
		DeviceID:        t.Target(),
	})
	s.log.Info("monitoring started", logger.String("target", t.Target()))

	go s.run(t, stream, s.stopCh, s.done)
	return nil
}

func (s *Session) stopLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		<-s.done
		s.stopCh = nil
		s.done = nil
		s.log.Info("monitoring stopped")
	}

	s.stateMu.Lock()
	s.state.Running = false
	s.state.DeviceConnected = false
	s.state.MonitoringFailed = false
	s.stateMu.Unlock()
}

// run is the monitoring loop: read lines, watch liveness, reconnect with
// backoff when the stream dies. It only returns when the session is stopped.
func (s *Session) run(t Transport, stream LineStream, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	probe := time.NewTicker(s.probeInterval)
	defer probe.Stop()
	defer func() { _ = stream.Close() }()

	for {
		select {
		case <-stopCh:
			return

		case line, ok := <-stream.Lines():
			if !ok {
				s.log.Warn("log stream ended, reconnecting",
					logger.String("target", t.Target()))
				s.setConnected(false, true)

				next := s.reconnect(t, stopCh)
				if next == nil {
					return
				}
				stream = next
				s.setConnected(true, false)
				continue
			}
			s.process(line)

		case <-probe.C:
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			alive := t.Alive(ctx)
			cancel()
			if !alive {
				s.log.Warn("liveness probe failed",
					logger.String("target", t.Target()))
				// Closing the stream routes us through the reconnect path.
				_ = stream.Close()
			}
		}
	}
}

// reconnect retries connection establishment indefinitely with capped
// exponential backoff. Returns nil only when the session is stopped; stop is
// honored at every backoff boundary.
func (s *Session) reconnect(t Transport, stopCh <-chan struct{}) LineStream {
	wait := s.initialBackoff
	attempt := 0

	for {
		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		attempt++
		ctx := context.Background()

		var err error
		if attempt%forceEvery == 0 {
			err = t.ForceReconnect(ctx)
		} else {
			err = t.Connect(ctx)
		}
		if err == nil {
			stream, serr := t.OpenLogStream(ctx, s.filter(s.cfg.Current()))
			if serr == nil {
				s.log.Info("reconnected to device",
					logger.String("target", t.Target()),
					logger.Int("attempts", attempt))
				return stream
			}
			err = serr
		}

		s.log.Warn("reconnect attempt failed",
			logger.String("target", t.Target()),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))

		wait *= 2
		if wait > s.maxBackoff {
			wait = s.maxBackoff
		}
	}
}

// process pushes one raw line through the pipeline. Configuration is
// re-read per line so runtime updates apply without a restart.
func (s *Session) process(line domain.RawLine) {
	s.rawLines.Append(line.Text)
	s.hub.Publish(line.Text)

	cfg := s.cfg.Current()

	ev, ok := s.extractor(cfg.ADB.Logcat.Pattern).Extract(line)
	if !ok {
		return
	}

	key := dedup.Key(ev.SourcePath, cfg.Dedup.KeyTrimSuffixes)
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	accepted, err := s.dedup.Accept(ctx, key, ev.ObservedAt, cfg.CooldownWindow())
	cancel()
	if err != nil {
		// Fail open: a broken dedup store must not swallow events.
		s.log.Warn("cooldown store unavailable, accepting event", logger.Error(err))
		accepted = true
	}

	mapped := domain.MappedEvent{
		PlaybackEvent: ev,
		MappedPath:    domain.MapPath(ev.SourcePath, cfg.MappingPaths),
	}

	if !accepted {
		s.log.Debug("duplicate event inside cooldown window",
			logger.String("source_path", ev.SourcePath))
	} else {
		s.log.Info("detected playback intent",
			logger.String("source_path", ev.SourcePath),
			logger.String("mapped_path", mapped.MappedPath))
	}

	s.dispatcher.Dispatch(context.Background(), mapped, line.Text,
		cfg.Notification.Endpoint, cfg.NotifyTimeout(), !accepted)
}

// extractor returns the compiled matcher for pattern, recompiling only when
// the configuration changed. An invalid pattern keeps the previous matcher.
func (s *Session) extractor(pattern string) *domain.Extractor {
	s.extMu.Lock()
	defer s.extMu.Unlock()

	if s.ext != nil && s.pattern == pattern {
		return s.ext
	}

	ext, err := domain.NewExtractor(pattern)
	if err != nil {
		s.log.Error("invalid match pattern, keeping previous",
			logger.String("pattern", pattern),
			logger.Error(err))
		if s.ext == nil {
			s.ext, _ = domain.NewExtractor("")
			s.pattern = ""
		}
		return s.ext
	}

	s.pattern = pattern
	s.ext = ext
	return ext
}

func (s *Session) filter(cfg config.Config) adb.LogcatFilter {
	return adb.LogcatFilter{
		Buffer:  cfg.ADB.Logcat.Buffer,
		Tags:    cfg.ADB.Logcat.Tags,
		Pattern: cfg.ADB.Logcat.Pattern,
	}
}

func (s *Session) setState(state domain.SessionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Session) setConnected(connected, failed bool) {
	s.stateMu.Lock()
	s.state.DeviceConnected = connected
	s.state.MonitoringFailed = failed
	s.stateMu.Unlock()
}

func (s *Session) markStartFailure(deviceID string) {
	s.stateMu.Lock()
	s.state.Running = false
	s.state.DeviceConnected = false
	s.state.MonitoringFailed = true
	if deviceID != "" {
		s.state.DeviceID = deviceID
	}
	s.stateMu.Unlock()
}
