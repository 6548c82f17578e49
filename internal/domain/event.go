package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawLine is a single line read from the device log stream.
// Ephemeral: it only exists while it travels through the pipeline.
type RawLine struct {
	Text   string
	ReadAt time.Time
}

// PlaybackEvent is a recognized playback intent extracted from a log line.
// Immutable after creation.
type PlaybackEvent struct {
	SourcePath string
	ObservedAt time.Time
}

// MappedEvent is a PlaybackEvent plus the path the downstream player understands.
type MappedEvent struct {
	PlaybackEvent
	MappedPath string
}

// MappingRule rewrites a device-local path prefix into a downstream one.
// Rules are evaluated in configuration order, first match wins.
type MappingRule struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Outcome classifies what happened to the notification for an event.
type Outcome string

const (
	OutcomeDisabled  Outcome = "disabled"
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// LogRecord is one processed event retained in the history ring.
// Immutable once appended; only ring eviction removes it.
type LogRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	OriginalLine string    `json:"original_event"`
	SourcePath   string    `json:"source_path"`
	MappedPath   string    `json:"mapped_path"`
	Outcome      Outcome   `json:"notification_status"`
	Reason       string    `json:"notification_reason,omitempty"`
}

// NewLogRecord stamps a fresh record with a unique ID.
func NewLogRecord(ev MappedEvent, originalLine string, outcome Outcome, reason string) LogRecord {
	return LogRecord{
		ID:           uuid.NewString(),
		Timestamp:    ev.ObservedAt,
		OriginalLine: originalLine,
		SourcePath:   ev.SourcePath,
		MappedPath:   ev.MappedPath,
		Outcome:      outcome,
		Reason:       reason,
	}
}

// SessionState is the authoritative health snapshot of the monitoring session.
// Owned by the session; everyone else gets read-only copies.
type SessionState struct {
	Running          bool   `json:"is_running"`
	DeviceConnected  bool   `json:"device_connected"`
	MonitoringFailed bool   `json:"monitoring_failed"`
	DeviceID         string `json:"device_id,omitempty"`
}
