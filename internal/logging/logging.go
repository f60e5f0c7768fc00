// Package logging sets up the process-wide slog logger, optionally mirroring
// errors to Sentry.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds logging configuration.
type Config struct {
	Level     slog.Level
	Format    string // "text" (default) or "json"
	SentryDSN string
	Env       string
	Version   string
	LogFile   string    // Empty logs to Output
	Output    io.Writer // Defaults to stderr
}

// Logger is the process logger plus the resources it owns.
type Logger struct {
	*slog.Logger
	sentryEnabled bool
	logFile       *os.File
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
)

// Init installs the global logger. It also becomes slog's default.
func Init(cfg Config) error {
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     cfg.Version,
		})
		if err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		sentryEnabled = true
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	var logFile *os.File
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		output = f
		logFile = f
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.Level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Local().Format("2006-01-02T15:04:05.000-07:00"))
				}
			}
			return a
		},
	}
	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(output, opts)
	} else {
		inner = slog.NewTextHandler(output, opts)
	}

	l := &Logger{
		Logger:        slog.New(&sentryHandler{Handler: inner, sentryEnabled: sentryEnabled}),
		sentryEnabled: sentryEnabled,
		logFile:       logFile,
	}

	mu.Lock()
	prev := defaultLogger
	defaultLogger = l
	mu.Unlock()
	if prev != nil && prev.logFile != nil {
		prev.logFile.Close()
	}

	slog.SetDefault(l.Logger)
	return nil
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Flush sends buffered Sentry events and closes the log file.
func Flush(timeout time.Duration) {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return
	}
	if l.sentryEnabled {
		sentry.Flush(timeout)
	}
	if l.logFile != nil {
		l.logFile.Sync()
		l.logFile.Close()
	}
}

// Default returns the global logger, or slog's default before Init.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return &Logger{Logger: slog.Default()}
	}
	return defaultLogger
}

type ctxKey struct{}

// NewContext returns a context carrying l.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// ContextLogger returns the logger stored by NewContext, if any.
func ContextLogger(ctx context.Context) (*slog.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	return l, ok
}

// FromContext returns the logger stored by NewContext, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ContextLogger(ctx); ok {
		return l
	}
	return Default().Logger
}

// capturedKey marks records already reported to Sentry as exceptions.
type capturedKey struct{}

// sentryHandler forwards error records to Sentry after logging them.
type sentryHandler struct {
	slog.Handler
	sentryEnabled bool
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}
	if h.sentryEnabled && r.Level >= slog.LevelError && ctx.Value(capturedKey{}) == nil {
		h.sendToSentry(r)
	}
	return nil
}

func (h *sentryHandler) sendToSentry(r slog.Record) {
	event := sentry.NewEvent()
	event.Level = sentryLevel(r.Level)
	event.Message = r.Message
	event.Timestamp = r.Time

	r.Attrs(func(a slog.Attr) bool {
		event.Extra[a.Key] = a.Value.Any()
		return true
	})

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		event.Exception = []sentry.Exception{{
			Type:  "LogError",
			Value: r.Message,
			Stacktrace: &sentry.Stacktrace{
				Frames: []sentry.Frame{{
					Filename: frame.File,
					Function: frame.Function,
					Lineno:   frame.Line,
				}},
			},
		}}
	}

	sentry.CaptureEvent(event)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithAttrs(attrs), sentryEnabled: h.sentryEnabled}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{Handler: h.Handler.WithGroup(name), sentryEnabled: h.sentryEnabled}
}

func sentryLevel(level slog.Level) sentry.Level {
	switch {
	case level >= slog.LevelError:
		return sentry.LevelError
	case level >= slog.LevelWarn:
		return sentry.LevelWarning
	case level >= slog.LevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level and sends to Sentry.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// CaptureError reports err to Sentry with key/value extras and logs msg
// through the context logger.
func CaptureError(ctx context.Context, err error, msg string, kv ...any) {
	if Default().sentryEnabled {
		sentry.WithScope(func(scope *sentry.Scope) {
			setExtras(scope, kv)
			sentry.CaptureException(err)
		})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	FromContext(ctx).ErrorContext(context.WithValue(ctx, capturedKey{}, true), msg, append([]any{"error", err}, kv...)...)
}

// CapturePanic logs a recovered panic value and reports it to Sentry.
// It returns the value so callers may re-panic.
func CapturePanic(panicValue any, kv ...any) any {
	if panicValue == nil {
		return nil
	}

	msg := fmt.Sprintf("panic: %v", panicValue)
	Default().Error(msg, append([]any{"panic", panicValue}, kv...)...)

	if Default().sentryEnabled {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelFatal)
			scope.SetTag("type", "panic")
			setExtras(scope, kv)
			if err, ok := panicValue.(error); ok {
				sentry.CaptureException(err)
			} else {
				sentry.CaptureMessage(msg)
			}
		})
		sentry.Flush(2 * time.Second)
	}
	return panicValue
}

func setExtras(scope *sentry.Scope, kv []any) {
	for i := 0; i < len(kv)-1; i += 2 {
		if key, ok := kv[i].(string); ok {
			scope.SetExtra(key, kv[i+1])
		}
	}
}
