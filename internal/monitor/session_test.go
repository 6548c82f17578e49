package monitor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adbwatch/adbwatch/internal/adb"
	"github.com/adbwatch/adbwatch/internal/config"
	"github.com/adbwatch/adbwatch/internal/dedup"
	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/history"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/notify"
)

// fakeStream feeds scripted lines to the session.
type fakeStream struct {
	lines chan domain.RawLine
	once  sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{lines: make(chan domain.RawLine, 64)}
}

func (f *fakeStream) Lines() <-chan domain.RawLine { return f.lines }

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.lines) })
	return nil
}

func (f *fakeStream) emit(text string) {
	f.lines <- domain.RawLine{Text: text, ReadAt: time.Now()}
}

// fakeTransport satisfies Transport without a device.
type fakeTransport struct {
	target string

	mu          sync.Mutex
	connectErr  error
	streams     []*fakeStream
	connectCnt  int
	forceCnt    int
	alive       bool
	streamIndex int
}

func newFakeTransport(target string) *fakeTransport {
	return &fakeTransport{target: target, alive: true}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCnt++
	return f.connectErr
}

func (f *fakeTransport) ForceReconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceCnt++
	return f.connectErr
}

func (f *fakeTransport) Alive(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTransport) OpenLogStream(context.Context, adb.LogcatFilter) (LineStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	stream := newFakeStream()
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeTransport) Target() string { return f.target }

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) currentStream(t *testing.T) *fakeStream {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := len(f.streams)
		f.mu.Unlock()
		if n > f.streamIndex {
			f.mu.Lock()
			s := f.streams[n-1]
			f.streamIndex = n
			f.mu.Unlock()
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no stream opened in time")
	return nil
}

type sessionEnv struct {
	session   *Session
	transport *fakeTransport
	records   *history.Ring[domain.LogRecord]
	rawLines  *history.Ring[string]
	cfg       *config.Manager
}

func newSessionEnv(t *testing.T, yaml string) *sessionEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("config manager: %v", err)
	}

	log := logger.New("error", false)
	records := history.NewRing[domain.LogRecord](100)
	rawLines := history.NewRing[string](100)
	transport := newFakeTransport("fake-device")

	session := NewSession(
		cfg,
		log,
		func(target string) Transport { return transport },
		dedup.NewMemory(),
		notify.New(records, log),
		rawLines,
		NewHub(),
	)
	session.initialBackoff = 5 * time.Millisecond
	session.maxBackoff = 20 * time.Millisecond

	t.Cleanup(session.Stop)

	return &sessionEnv{session: session, transport: transport, records: records, rawLines: rawLines, cfg: cfg}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

const baseYAML = `general:
  cooldown_seconds: 3
adb:
  device_id: "fake-device"
`

func TestSessionLifecycle(t *testing.T) {
	env := newSessionEnv(t, baseYAML)

	if err := env.session.Start(""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	st := env.session.Status()
	if !st.Running || !st.DeviceConnected || st.MonitoringFailed {
		t.Fatalf("after Start: %+v", st)
	}
	if st.DeviceID != "fake-device" {
		t.Errorf("device_id = %q", st.DeviceID)
	}

	// Simulated stream EOF: the session flags the failure but keeps running.
	env.transport.setConnectErr(errors.New("device gone"))
	env.transport.currentStream(t).Close()
	waitFor(t, "disconnect detection", func() bool {
		s := env.session.Status()
		return !s.DeviceConnected && s.MonitoringFailed && s.Running
	})

	// The device comes back: the session reconnects on its own.
	env.transport.setConnectErr(nil)
	waitFor(t, "autonomous reconnect", func() bool {
		s := env.session.Status()
		return s.DeviceConnected && !s.MonitoringFailed && s.Running
	})

	env.session.Stop()
	st = env.session.Status()
	if st.Running || st.DeviceConnected || st.MonitoringFailed {
		t.Errorf("after Stop: %+v", st)
	}

	// Restart after stop re-establishes with the last-used target.
	if err := env.session.Restart(); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	st = env.session.Status()
	if !st.Running || st.DeviceID != "fake-device" {
		t.Errorf("after Restart: %+v", st)
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	env := newSessionEnv(t, baseYAML)

	env.session.Stop()
	env.session.Stop()

	if err := env.session.Start(""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	env.session.Stop()
	env.session.Stop()

	if st := env.session.Status(); st.Running {
		t.Errorf("session still running after Stop: %+v", st)
	}
}

func TestSessionStartFailureIsSurfaced(t *testing.T) {
	env := newSessionEnv(t, baseYAML)
	env.transport.setConnectErr(errors.New("unreachable"))

	if err := env.session.Start(""); err == nil {
		t.Fatal("Start() should fail when no device is reachable")
	}
	st := env.session.Status()
	if st.Running || !st.MonitoringFailed {
		t.Errorf("after failed Start: %+v", st)
	}
}

func TestSessionStopDuringReconnectBackoff(t *testing.T) {
	env := newSessionEnv(t, baseYAML)
	env.session.initialBackoff = time.Hour // park the loop in a backoff wait

	if err := env.session.Start(""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	env.transport.setConnectErr(errors.New("device gone"))
	env.transport.currentStream(t).Close()
	waitFor(t, "disconnect detection", func() bool {
		return !env.session.Status().DeviceConnected
	})

	stopped := make(chan struct{})
	go func() {
		env.session.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() must cancel the reconnect loop at a backoff boundary")
	}
}

func TestSessionPipelineEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		delivered = append(delivered, string(body))
		mu.Unlock()
	}))
	defer srv.Close()

	env := newSessionEnv(t, `general:
  cooldown_seconds: 60
adb:
  device_id: "fake-device"
mapping_paths:
  - source: "Movies/"
    target: "smb://nas/movies/"
notification:
  endpoint: "`+srv.URL+`"
  timeout_seconds: 2
`)

	if err := env.session.Start(""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	stream := env.transport.currentStream(t)

	intent := `I ActivityTaskManager: START u0 {dat=content://storage#Movies/show/e01.mkv cmp=org.videolan.vlc/.StartActivity}`
	stream.emit("D WifiService: scan finished")
	stream.emit(intent)
	stream.emit(intent) // duplicate inside the cooldown window

	waitFor(t, "both records", func() bool { return env.records.Len() >= 2 })

	recs := env.records.Last(0)
	if recs[0].Outcome != domain.OutcomeSuccess {
		t.Errorf("first record outcome = %q (%s), want success", recs[0].Outcome, recs[0].Reason)
	}
	if recs[0].MappedPath != "smb://nas/movies/show/e01.mkv" {
		t.Errorf("mapped path = %q", recs[0].MappedPath)
	}
	if recs[1].Outcome != domain.OutcomeDuplicate {
		t.Errorf("second record outcome = %q, want duplicate", recs[1].Outcome)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Fatalf("endpoint hit %d times, want exactly 1", len(delivered))
	}
	if want := `{"file_path":"smb://nas/movies/show/e01.mkv"}`; delivered[0] != want {
		t.Errorf("payload = %s, want %s", delivered[0], want)
	}

	// Non-matching lines still land in the raw tail.
	if env.rawLines.Len() != 3 {
		t.Errorf("raw line count = %d, want 3", env.rawLines.Len())
	}
}

func TestSessionApplyConfigStopsWhenDisabled(t *testing.T) {
	env := newSessionEnv(t, baseYAML)

	if err := env.session.Start(""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := env.cfg.Update(map[string]any{
		"general": map[string]any{"enable_watcher": false},
	}); err != nil {
		t.Fatalf("config update: %v", err)
	}

	if err := env.session.ApplyConfig(); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}
	if st := env.session.Status(); st.Running {
		t.Errorf("session should stop when the watcher is disabled: %+v", st)
	}
}
