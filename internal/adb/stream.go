package adb

import (
	"bufio"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/adbwatch/adbwatch/internal/domain"
)

// maxLineBytes bounds a single logcat line; anything longer is split by the
// scanner rather than aborting the stream.
const maxLineBytes = 1 << 20

// Stream is a live sequence of logcat lines backed by a running adb process.
// The Lines channel closes when the process exits or Close is called.
type Stream struct {
	cmd   *exec.Cmd
	lines chan domain.RawLine
	quit  chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func newStream(cmd *exec.Cmd) (*Stream, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	s := &Stream{
		cmd:   cmd,
		lines: make(chan domain.RawLine, 256),
		quit:  make(chan struct{}),
	}
	go s.pump(bufio.NewScanner(stdout))
	return s, nil
}

// Lines yields raw log lines in read order. The channel closes on stream end.
func (s *Stream) Lines() <-chan domain.RawLine { return s.lines }

// Err reports why the stream ended, nil for a clean EOF or explicit Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close terminates the underlying process and releases the pump even when
// nobody is draining Lines. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	return nil
}

func (s *Stream) pump(scanner *bufio.Scanner) {
	defer close(s.lines)
	defer func() { _ = s.cmd.Wait() }()

	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		// Garbled bytes must not kill the stream: best-effort decode,
		// drop anything that is empty after repair.
		text := strings.ToValidUTF8(scanner.Text(), "�")
		if strings.TrimSpace(text) == "" {
			continue
		}
		// A consumer that stopped draining must not strand the pump: once
		// the stream is closed the buffered backlog is abandoned and the
		// deferred Wait reaps the killed process.
		select {
		case s.lines <- domain.RawLine{Text: text, ReadAt: time.Now()}:
		case <-s.quit:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}
