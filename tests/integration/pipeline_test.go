package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adbwatch/adbwatch/internal/adb"
	"github.com/adbwatch/adbwatch/internal/config"
	"github.com/adbwatch/adbwatch/internal/dedup"
	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/history"
	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/httpserver/routes"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/monitor"
	"github.com/adbwatch/adbwatch/internal/notify"
)

type scriptedStream struct {
	lines chan domain.RawLine
	once  sync.Once
}

func (s *scriptedStream) Lines() <-chan domain.RawLine { return s.lines }

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.lines) })
	return nil
}

func (s *scriptedStream) emit(text string) {
	s.lines <- domain.RawLine{Text: text, ReadAt: time.Now()}
}

type scriptedTransport struct {
	target string

	mu     sync.Mutex
	stream *scriptedStream
}

func (t *scriptedTransport) Connect(context.Context) error        { return nil }
func (t *scriptedTransport) ForceReconnect(context.Context) error { return nil }
func (t *scriptedTransport) Alive(context.Context) bool           { return true }
func (t *scriptedTransport) Target() string                       { return t.target }

func (t *scriptedTransport) OpenLogStream(context.Context, adb.LogcatFilter) (monitor.LineStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stream = &scriptedStream{lines: make(chan domain.RawLine, 64)}
	return t.stream, nil
}

func (t *scriptedTransport) current(test *testing.T) *scriptedStream {
	test.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		s := t.stream
		t.mu.Unlock()
		if s != nil {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	test.Fatal("no log stream opened")
	return nil
}

type env struct {
	api       *httptest.Server
	transport *scriptedTransport
	received  func() []string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	var mu sync.Mutex
	var received []string
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, string(body))
		mu.Unlock()
	}))
	t.Cleanup(sink.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfgYAML := `general:
  cooldown_seconds: 60
  enable_watcher: false
adb:
  device_id: "10.0.0.42:5555"
mapping_paths:
  - source: "Movies/"
    target: "smb://nas/movies/"
notification:
  endpoint: "` + sink.URL + `"
  timeout_seconds: 2
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))
	manager, err := config.NewManager(cfgPath)
	require.NoError(t, err)

	log := logger.New("error", false)
	records := history.NewRing[domain.LogRecord](100)
	rawLines := history.NewRing[string](1000)
	hub := monitor.NewHub()
	transport := &scriptedTransport{target: "10.0.0.42:5555"}

	session := monitor.NewSession(
		manager,
		log,
		func(target string) monitor.Transport { return transport },
		dedup.NewMemory(),
		notify.New(records, log),
		rawLines,
		hub,
	)
	t.Cleanup(session.Stop)

	r := chi.NewRouter()
	routes.RegisterAll(r, deps.Deps{
		Logger:    log,
		StartTime: time.Now(),
		Version:   "integration",
		TimeNow:   time.Now,
		Config:    manager,
		Session:   session,
		RawLines:  rawLines,
		Records:   records,
		Hub:       hub,
		TestConnection: func(ctx context.Context, target string) error {
			return nil
		},
	})
	api := httptest.NewServer(r)
	t.Cleanup(api.Close)

	return &env{
		api:       api,
		transport: transport,
		received: func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), received...)
		},
	}
}

func (e *env) get(t *testing.T, path string) map[string]any {
	t.Helper()
	resp, err := http.Get(e.api.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (e *env) post(t *testing.T, path, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.api.URL+path, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

const playbackLine = `I ActivityTaskManager: START u0 {dat=content://media#Movies/show/e01.mkv cmp=org.videolan.vlc/.StartActivity}`

func TestMonitoringPipelineOverHTTP(t *testing.T) {
	e := newEnv(t)

	// Boot state: configured but idle.
	status := e.get(t, "/api/status")
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, false, status["watcher_enabled"])

	resp := e.post(t, "/api/start", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		s := e.get(t, "/api/status")
		return s["is_running"] == true && s["device_connected"] == true
	}, 2*time.Second, 20*time.Millisecond)

	stream := e.transport.current(t)
	stream.emit("D WifiService: scan results available")
	stream.emit(playbackLine)
	stream.emit(playbackLine) // duplicate inside cooldown

	require.Eventually(t, func() bool {
		return e.get(t, "/api/events")["count"] == float64(2)
	}, 2*time.Second, 20*time.Millisecond)

	events := e.get(t, "/api/events")["events"].([]any)
	first := events[0].(map[string]any)
	second := events[1].(map[string]any)
	assert.Equal(t, "success", first["notification_status"])
	assert.Equal(t, "smb://nas/movies/show/e01.mkv", first["mapped_path"])
	assert.Equal(t, "duplicate", second["notification_status"])

	require.Len(t, e.received(), 1)
	assert.JSONEq(t, `{"file_path":"smb://nas/movies/show/e01.mkv"}`, e.received()[0])

	logs := e.get(t, "/api/logs")
	assert.Equal(t, float64(3), logs["count"])

	resp = e.post(t, "/api/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = e.get(t, "/api/status")
	assert.Equal(t, false, status["is_running"])
	assert.Equal(t, false, status["device_connected"])
}

func TestConfigRoundTripOverHTTP(t *testing.T) {
	e := newEnv(t)

	doc := e.get(t, "/api/config")["config"].(map[string]any)
	adbSection := doc["adb"].(map[string]any)
	assert.Equal(t, "10.0.0.42:5555", adbSection["device_id"])

	resp := e.post(t, "/api/config", `{"config": {"general": {"cooldown_seconds": 12}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc = e.get(t, "/api/config")["config"].(map[string]any)
	general := doc["general"].(map[string]any)
	assert.Equal(t, float64(12), general["cooldown_seconds"])
	// untouched sections survive a partial update
	adbSection = doc["adb"].(map[string]any)
	assert.Equal(t, "10.0.0.42:5555", adbSection["device_id"])
}

func TestADBConnectionTestOverHTTP(t *testing.T) {
	e := newEnv(t)

	resp := e.post(t, "/api/test/adb?device_id=10.0.0.42:5555", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])

	resp = e.post(t, "/api/test/adb?device_id=not-an-ip", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
