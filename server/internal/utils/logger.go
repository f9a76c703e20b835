package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

// levelFatal sits above slog.LevelError so fatal lines survive any filter.
const levelFatal = slog.Level(12)

var (
	mu              sync.RWMutex
	currentLogLevel = new(slog.LevelVar) // Defaults to INFO
	logger          = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      currentLogLevel,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= levelFatal {
					return slog.String(slog.LevelKey, "FTL")
				}
			}
			return a
		},
	}))
}

func logLevelToString(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel sets the global log level for the application.
func SetLogLevel(levelString string) {
	level := LevelInfo
	known := true
	switch strings.ToUpper(levelString) {
	case "DEBUG":
		level = LevelDebug
	case "INFO":
		level = LevelInfo
	case "WARNING", "WARN":
		level = LevelWarning
	case "ERROR":
		level = LevelError
	case "FATAL":
		level = LevelFatal
	default:
		known = false
	}
	currentLogLevel.Set(level.slogLevel())
	if !known {
		LogWarnf("Unknown log level '%s', defaulting to INFO", levelString)
	}
	LogInfof("Log level set to %s", logLevelToString(level))
}

// SetOutput redirects all log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

// Logger returns the shared structured logger, for libraries that accept an
// *slog.Logger (the actor system among them).
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func logInternal(level slog.Level, message string) {
	l := Logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, message, 0)
	_ = l.Handler().Handle(context.Background(), r)
}

func LogDebug(args ...interface{}) {
	logInternal(slog.LevelDebug, fmt.Sprint(args...))
}

func LogDebugf(format string, args ...interface{}) {
	logInternal(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func LogInfo(args ...interface{}) {
	logInternal(slog.LevelInfo, fmt.Sprint(args...))
}

func LogInfof(format string, args ...interface{}) {
	logInternal(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func LogWarn(args ...interface{}) {
	logInternal(slog.LevelWarn, fmt.Sprint(args...))
}

func LogWarnf(format string, args ...interface{}) {
	logInternal(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func LogError(args ...interface{}) {
	logInternal(slog.LevelError, fmt.Sprint(args...))
}

func LogErrorf(format string, args ...interface{}) {
	logInternal(slog.LevelError, fmt.Sprintf(format, args...))
}

func LogFatal(args ...interface{}) {
	logInternal(levelFatal, fmt.Sprint(args...))
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	logInternal(levelFatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}
