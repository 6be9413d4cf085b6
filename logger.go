package g3d

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/g3d/render"
	"github.com/gogpu/g3d/shader"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// backendsMu guards backends, the initialized backends of live renderers.
var (
	backendsMu sync.Mutex
	backends   = make(map[render.Backend]int)
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for g3d and all its sub-packages.
// By default, g3d produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by g3d:
//   - [slog.LevelDebug]: cache misses, pipeline and program creation, eviction
//   - [slog.LevelInfo]: lifecycle events (device acquired)
//   - [slog.LevelWarn]: skipped texture uploads (missing or pending image)
//   - [slog.LevelError]: unsupported fog, background or material kinds
//
// Example:
//
//	g3d.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	render.SetLogger(l)
	shader.SetLogger(l)

	backendsMu.Lock()
	defer backendsMu.Unlock()
	for b := range backends {
		propagateLogger(b, l)
	}
}

// Logger returns the current logger used by g3d.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements the
// loggerSetter interface.
func propagateLogger(b render.Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// trackBackend hands b the current logger and keeps it updated by later
// SetLogger calls until untrackBackend.
func trackBackend(b render.Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b]++
	propagateLogger(b, Logger())
}

func untrackBackend(b render.Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if backends[b] <= 1 {
		delete(backends, b)
		return
	}
	backends[b]--
}
