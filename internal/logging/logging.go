// Package logging wires the process-wide slog logger and the error-capture
// sink. Both are initialized once at startup; everything else receives them
// ambiently through the slog default logger.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// CaptureFunc receives errors of internal severity for out-of-band reporting.
type CaptureFunc func(err error)

var capture atomic.Value // CaptureFunc

func init() {
	capture.Store(CaptureFunc(func(err error) {}))
}

// Setup initializes the global slog logger with a JSON handler on stdout.
func Setup(levelStr string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("failed to parse log level %q: %w", levelStr, err)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("logging initialized", "level", levelStr)
	return nil
}

// SetCapture installs the error-capture sink. Passing nil restores the no-op sink.
func SetCapture(fn CaptureFunc) {
	if fn == nil {
		fn = func(err error) {}
	}
	capture.Store(fn)
}

// CaptureError logs err at error level and forwards it to the capture sink.
func CaptureError(err error, args ...any) {
	slog.Error(err.Error(), args...)
	capture.Load().(CaptureFunc)(err)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
