// Package tosslog wires every tossd subsystem into a single rotating log
// file, following the per-subsystem logger registry dcrlnd keeps in its
// top-level log.go.
package tosslog

import (
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// RotatingLogWriter accumulates one slog.Backend fed by a rotating file on
// disk, and hands out a Logger per subsystem tag.
type RotatingLogWriter struct {
	rotator *rotator.Rotator
	backend *slog.Backend
}

// NewRotatingLogWriter constructs a writer with logging disabled; call
// InitLogRotator before requesting subsystem loggers.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// InitLogRotator opens (creating if necessary) the log file at logFile,
// rotating it once it exceeds 10MiB, keeping maxRolls old copies.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxRolls int) error {
	rot, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return err
	}
	r.rotator = rot
	r.backend = slog.NewBackend(r)
	return nil
}

// Write satisfies io.Writer by forwarding to the underlying rotator.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.rotator == nil {
		return len(b), nil
	}
	return r.rotator.Write(b)
}

// Close flushes and closes the underlying rotator.
func (r *RotatingLogWriter) Close() error {
	if r.rotator == nil {
		return nil
	}
	return r.rotator.Close()
}

// SubLogger returns (creating if necessary) the Logger for a subsystem tag,
// defaulting to slog.Disabled until InitLogRotator has run.
func (r *RotatingLogWriter) SubLogger(tag string) slog.Logger {
	if r.backend == nil {
		return slog.Disabled
	}
	return r.backend.Logger(tag)
}

// SetLevel sets the logging level for a previously created subsystem
// logger. It is a no-op if the backend has not been initialized.
func (r *RotatingLogWriter) SetLevel(logger slog.Logger, level string) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return
	}
	logger.SetLevel(lvl)
}
