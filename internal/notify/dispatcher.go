// Package notify delivers recognized playback events to the downstream HTTP
// endpoint. One attempt per event; a failed delivery is recorded, not retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/history"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/utils"
)

// machine-readable failure reasons attached to failed records
const (
	ReasonTimeout           = "timeout"
	ReasonConnectionRefused = "connection_refused"
	ReasonDNS               = "dns"
	ReasonHTTP4xx           = "http_4xx"
	ReasonHTTP5xx           = "http_5xx"
	ReasonHTTPOther         = "http_error"
	ReasonNetwork           = "network"
)

type payload struct {
	FilePath string `json:"file_path"`
}

// Dispatcher posts mapped paths to the notification endpoint and appends the
// resulting record to the event history, whatever the outcome.
type Dispatcher struct {
	client  *http.Client
	records *history.Ring[domain.LogRecord]
	log     logger.Logger
}

func New(records *history.Ring[domain.LogRecord], log logger.Logger) *Dispatcher {
	return &Dispatcher{
		// Per-call deadlines come from the configured timeout, not the client.
		client:  &http.Client{},
		records: records,
		log:     log,
	}
}

// Dispatch delivers ev to endpoint within timeout and records the outcome.
// duplicate marks events the cooldown filter rejected: they are recorded but
// never sent. An empty endpoint disables delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.MappedEvent, originalLine, endpoint string, timeout time.Duration, duplicate bool) domain.LogRecord {
	var rec domain.LogRecord
	switch {
	case duplicate:
		rec = domain.NewLogRecord(ev, originalLine, domain.OutcomeDuplicate, "")
	case endpoint == "":
		rec = domain.NewLogRecord(ev, originalLine, domain.OutcomeDisabled, "")
	default:
		outcome, reason := d.send(ctx, endpoint, ev.MappedPath, timeout)
		rec = domain.NewLogRecord(ev, originalLine, outcome, reason)
	}

	d.records.Append(rec)
	return rec
}

// send performs the single delivery attempt.
func (d *Dispatcher) send(ctx context.Context, endpoint, mappedPath string, timeout time.Duration) (domain.Outcome, string) {
	body, err := json.Marshal(payload{FilePath: mappedPath})
	if err != nil {
		return domain.OutcomeFailed, ReasonNetwork
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		d.log.Error("invalid notification endpoint",
			logger.String("endpoint", endpoint),
			logger.Error(err))
		return domain.OutcomeFailed, ReasonNetwork
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := d.client.Do(req)
	if err != nil {
		reason := classifyTransportError(err)
		d.log.Warn("notification delivery failed",
			logger.String("endpoint", endpoint),
			logger.String("reason", reason),
			logger.Error(err))
		return domain.OutcomeFailed, reason
	}
	defer utils.Close(resp.Body)
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		d.log.Info("notification sent",
			logger.String("endpoint", endpoint),
			logger.String("mapped_path", mappedPath))
		return domain.OutcomeSuccess, ""
	case resp.StatusCode >= 500:
		return domain.OutcomeFailed, ReasonHTTP5xx
	case resp.StatusCode >= 400:
		return domain.OutcomeFailed, ReasonHTTP4xx
	default:
		return domain.OutcomeFailed, fmt.Sprintf("%s_%d", ReasonHTTPOther, resp.StatusCode)
	}
}

func classifyTransportError(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonConnectionRefused
	case errors.As(err, &dnsErr):
		return ReasonDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetwork
}
