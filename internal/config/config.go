// Package config owns the YAML configuration file: typed access for the
// watcher, raw section access for the API, and safe persistence with a
// backup and verify-after-write. The running session observes updates
// without a process restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adbwatch/adbwatch/internal/domain"
)

type General struct {
	LogLevel        string `yaml:"log_level" json:"log_level"`
	CooldownSeconds int    `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	EnableWatcher   bool   `yaml:"enable_watcher" json:"enable_watcher"`
}

type Logcat struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Buffer  string `yaml:"buffer" json:"buffer"`
	Tags    string `yaml:"tags" json:"tags"`
}

type ADB struct {
	DeviceID string `yaml:"device_id" json:"device_id"`
	Logcat   Logcat `yaml:"logcat" json:"logcat"`
}

type Notification struct {
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Dedup tunes cooldown key handling. RedisAddr switches the cooldown store
// from in-process memory to a shared Redis instance.
type Dedup struct {
	RedisAddr       string   `yaml:"redis_addr" json:"redis_addr"`
	RedisUsername   string   `yaml:"redis_username" json:"redis_username"`
	RedisPassword   string   `yaml:"redis_password" json:"redis_password"`
	RedisDB         int      `yaml:"redis_db" json:"redis_db"`
	KeyTrimSuffixes []string `yaml:"key_trim_suffixes" json:"key_trim_suffixes"`
}

type Server struct {
	Listen                 string `yaml:"listen" json:"listen"`
	PrettyLog              bool   `yaml:"pretty_log" json:"pretty_log"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds" json:"shutdown_timeout_seconds"`
}

type Config struct {
	General      General              `yaml:"general" json:"general"`
	ADB          ADB                  `yaml:"adb" json:"adb"`
	MappingPaths []domain.MappingRule `yaml:"mapping_paths" json:"mapping_paths"`
	Notification Notification         `yaml:"notification" json:"notification"`
	Dedup        Dedup                `yaml:"dedup" json:"dedup"`
	Server       Server               `yaml:"server" json:"server"`
}

// Default returns the configuration used when the file is absent or a
// section is missing.
func Default() Config {
	return Config{
		General: General{
			LogLevel:        "info",
			CooldownSeconds: 3,
			EnableWatcher:   true,
		},
		ADB: ADB{
			Logcat: Logcat{
				Buffer: "system",
				Tags:   "ActivityTaskManager:I",
			},
		},
		Notification: Notification{
			TimeoutSeconds: 10,
		},
		Server: Server{
			Listen:                 ":8080",
			PrettyLog:              true,
			ShutdownTimeoutSeconds: 5,
		},
	}
}

func (c Config) CooldownWindow() time.Duration {
	return time.Duration(c.General.CooldownSeconds) * time.Second
}

func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notification.TimeoutSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Path resolves the config file location from the environment, with a local
// default for development.
func Path() string {
	if v := os.Getenv("ADBWATCH_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}

// Manager is the thread-safe owner of the configuration. Readers get value
// copies; writers persist before the new state becomes visible.
type Manager struct {
	path string

	mu  sync.RWMutex
	cur Config
	raw map[string]any
}

// NewManager loads the file at path. A missing file is not an error: the
// manager starts from defaults and creates the file on first save.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path, cur: Default(), raw: map[string]any{}}
	if err := m.Reload(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	return m, nil
}

// Current returns a copy of the typed configuration safe to hold across
// config updates.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyConfig(m.cur)
}

// Raw returns a deep copy of the configuration document for the API.
func (m *Manager) Raw() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopyMap(m.raw)
}

// Reload re-reads the file, replacing the in-memory state.
func (m *Manager) Reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, raw, err := decode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = cfg
	m.raw = raw
	return nil
}

// Update merges sections into the document, persists, and reloads so the
// in-memory state always reflects what was actually written. Section values
// that are maps merge key-by-key; anything else replaces the section.
func (m *Manager) Update(sections map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := deepCopyMap(m.raw)
	for section, value := range sections {
		if patch, ok := value.(map[string]any); ok {
			existing, ok := merged[section].(map[string]any)
			if !ok {
				existing = map[string]any{}
			}
			for k, v := range patch {
				existing[k] = v
			}
			merged[section] = existing
			continue
		}
		merged[section] = value
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	cfg, raw, err := decode(data)
	if err != nil {
		return fmt.Errorf("updated config does not decode: %w", err)
	}

	if err := m.writeFile(data); err != nil {
		return err
	}

	m.cur = cfg
	m.raw = raw
	return nil
}

// Save persists the current document as-is.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := yaml.Marshal(m.raw)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return m.writeFile(data)
}

// writeFile backs up the previous file, writes the new one, and verifies the
// write by reading it back. Callers must hold the write lock.
func (m *Manager) writeFile(data []byte) error {
	if prev, err := os.ReadFile(m.path); err == nil {
		if err := os.WriteFile(m.path+".bak", prev, 0o644); err != nil {
			return fmt.Errorf("backup config: %w", err)
		}
	}

	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	written, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("verify config: %w", err)
	}
	if string(written) != string(data) {
		return errors.New("verify config: written data does not match")
	}
	return nil
}

// decode parses YAML into both the typed view (over defaults, so missing
// keys keep their default values) and the raw document.
func decode(data []byte) (Config, map[string]any, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("parse config: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, raw, nil
}

func copyConfig(c Config) Config {
	out := c
	out.MappingPaths = append([]domain.MappingRule(nil), c.MappingPaths...)
	out.Dedup.KeyTrimSuffixes = append([]string(nil), c.Dedup.KeyTrimSuffixes...)
	return out
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}
