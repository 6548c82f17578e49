// Package adb drives the adb host binary for a single device target. Every
// operation shells out; nothing here keeps a persistent connection, so any
// call can observe a freshly dropped device and report it as retryable.
package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/adbwatch/adbwatch/internal/logger"
)

var (
	ErrNoDevice        = errors.New("adb: no device reachable")
	ErrMultipleDevices = errors.New("adb: multiple devices attached and no target selected")
	ErrNotConnected    = errors.New("adb: device not connected")
)

const (
	connectTimeout = 5 * time.Second
	forceTimeout   = 10 * time.Second
	probeTimeout   = 2 * time.Second
	serverTimeout  = 5 * time.Second
)

// LogcatFilter selects the source-side log filter so volume is reduced on the
// device, before lines ever reach the extractor.
type LogcatFilter struct {
	Buffer  string // logcat ring buffer, ex "system"
	Tags    string // tag:priority spec, ex "ActivityTaskManager:I"
	Pattern string // regexp handed to logcat -e, may be empty
}

// Client talks to one device through the adb binary.
type Client struct {
	target string // host:port or serial; empty until discovery adopts one
	bin    string
	log    logger.Logger
}

func NewClient(target string, log logger.Logger) *Client {
	return &Client{target: target, bin: "adb", log: log}
}

func (c *Client) Target() string { return c.target }

// Connect establishes (or verifies) the connection to the target. An empty
// target adopts the sole attached device; zero or several candidates fail.
func (c *Client) Connect(ctx context.Context) error {
	if c.target == "" {
		serials, err := c.Devices(ctx)
		if err != nil {
			return err
		}
		switch len(serials) {
		case 0:
			return ErrNoDevice
		case 1:
			c.target = serials[0]
			c.log.Info("adopted sole attached device", logger.String("serial", c.target))
		default:
			return fmt.Errorf("%w: %d candidates", ErrMultipleDevices, len(serials))
		}
	}

	// host:port targets need an explicit adb connect; bare serials are
	// attached out-of-band (USB) and only need to show up in the list.
	if strings.Contains(c.target, ":") {
		out, err := c.run(ctx, connectTimeout, "connect", c.target)
		if err != nil {
			return fmt.Errorf("%w: connect %s: %v", ErrNoDevice, c.target, err)
		}
		low := strings.ToLower(out)
		if !strings.Contains(low, "connected") {
			return fmt.Errorf("%w: adb said %q", ErrNoDevice, strings.TrimSpace(out))
		}
		return nil
	}

	serials, err := c.Devices(ctx)
	if err != nil {
		return err
	}
	for _, s := range serials {
		if s == c.target {
			return nil
		}
	}
	return fmt.Errorf("%w: serial %s not attached", ErrNoDevice, c.target)
}

// ForceReconnect restarts the adb server before connecting again. This is the
// escalation path when a plain connect keeps failing.
func (c *Client) ForceReconnect(ctx context.Context) error {
	c.log.Info("restarting adb server", logger.String("target", c.target))
	if _, err := c.run(ctx, serverTimeout, "kill-server"); err != nil {
		c.log.Warn("adb kill-server failed", logger.Error(err))
	}
	if _, err := c.run(ctx, serverTimeout, "start-server"); err != nil {
		return fmt.Errorf("%w: start-server: %v", ErrNoDevice, err)
	}
	ctx, cancel := context.WithTimeout(ctx, forceTimeout)
	defer cancel()
	return c.Connect(ctx)
}

// Alive probes the device with a short shell echo. False means the transport
// dropped or the device stopped answering.
func (c *Client) Alive(ctx context.Context) bool {
	if c.target == "" {
		return false
	}
	out, err := c.run(ctx, probeTimeout, "-s", c.target, "shell", "echo", "check")
	return err == nil && strings.Contains(out, "check")
}

// Devices lists serials of attached devices in the "device" state.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, connectTimeout, "devices")
	if err != nil {
		return nil, fmt.Errorf("%w: devices: %v", ErrNoDevice, err)
	}
	var serials []string
	for _, line := range strings.Split(out, "\n") {
		if serial, ok := parseDeviceLine(line); ok {
			serials = append(serials, serial)
		}
	}
	return serials, nil
}

// parseDeviceLine reads one line of `adb devices` output. Only entries in the
// "device" state count; offline and unauthorized ones do not.
func parseDeviceLine(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 2 && fields[1] == "device" {
		return fields[0], true
	}
	return "", false
}

// OpenLogStream clears the selected buffer and spawns the filtered logcat
// reader bound to ctx. The returned stream ends when the process dies or the
// stream is closed.
func (c *Client) OpenLogStream(ctx context.Context, f LogcatFilter) (*Stream, error) {
	if c.target == "" {
		return nil, ErrNotConnected
	}

	// Flush history first so only fresh events are observed.
	if _, err := c.run(ctx, connectTimeout, "-s", c.target, "logcat", "-c"); err != nil {
		c.log.Warn("logcat buffer clear failed", logger.Error(err))
	}

	args := append([]string{"-s", c.target}, logcatArgs(f)...)
	cmd := exec.CommandContext(ctx, c.bin, args...)
	stream, err := newStream(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: logcat: %v", ErrNotConnected, err)
	}
	c.log.Info("logcat stream started",
		logger.String("target", c.target),
		logger.String("buffer", f.Buffer),
		logger.String("tags", f.Tags))
	return stream, nil
}

// logcatArgs builds the logcat argument list for a filter.
func logcatArgs(f LogcatFilter) []string {
	args := []string{"logcat"}
	if f.Buffer != "" {
		args = append(args, "--buffer="+f.Buffer)
	}
	if f.Tags != "" {
		args = append(args, f.Tags, "*:S")
	}
	if f.Pattern != "" {
		args = append(args, "-e", f.Pattern)
	}
	return args
}

// run executes one adb invocation with a bounded deadline.
func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.bin, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("adb %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
