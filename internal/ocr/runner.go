package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// stderrLimit bounds how much diagnostic output a failed tool may keep.
const stderrLimit = 8 << 10

// Runner executes an external tool. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// CommandError reports a failed tool invocation with the tail of its
// stderr.
type CommandError struct {
	Tool     string
	ExitCode int // -1 when the process never ran or was killed
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func commandError(tool string, err error, stderr []byte) error {
	ce := &CommandError{Tool: filepath.Base(tool), ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	}
	ce.Stderr = strings.TrimSpace(tail(string(stderr), 512))
	return ce
}

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
	lost  int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	switch {
	case room <= 0:
		c.lost += len(p)
	case len(p) > room:
		c.buf.Write(p[:room])
		c.lost += len(p) - room
	default:
		c.buf.Write(p)
	}
	return len(p), nil
}

type execRunner struct {
	log *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// pdftoppm can leave children holding the pipes after a kill
	cmd.WaitDelay = 5 * time.Second

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	log := r.log.With("tool", filepath.Base(name), "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.Error("ocr.exec.failed", "error", err, "stderr_dropped", stderr.lost)
		return stdout.Bytes(), stderr.buf.Bytes(), err
	}
	log.Debug("ocr.exec.ok", "stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.buf.Bytes(), nil
}

// tail keeps the last max bytes of s, where tools print the actual error.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
