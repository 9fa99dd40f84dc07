package debuglog

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo // Default to INFO
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

var (
	mu           sync.RWMutex
	currentLevel = LevelOff
	logger       = zerolog.Nop()
	logFile      *os.File
)

// DefaultPath is ~/.streamview/streamview.log.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".streamview", "streamview.log")
}

// Setup configures the logging system with the specified level and optional file path.
// If filePath is empty, defaults to DefaultPath.
func Setup(level LogLevel, filePath ...string) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	currentLevel = level

	if level == LevelOff {
		logger = zerolog.Nop()
		return nil
	}

	logPath := DefaultPath()
	if len(filePath) > 0 && filePath[0] != "" {
		logPath = filePath[0]
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open log file %s", logPath)
	}

	logFile = f
	logger = newLogger(f, level)
	return nil
}

// SetOutput sends log lines to w instead of a file. Used by tests.
func SetOutput(w io.Writer, level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	currentLevel = level
	logger = newLogger(w, level)
}

func newLogger(w io.Writer, level LogLevel) zerolog.Logger {
	return zerolog.New(w).
		Level(level.zerolog()).
		With().
		Timestamp().
		Str("app", "streamview").
		Logger()
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Close closes the log file if open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

func closeLocked() error {
	logger = zerolog.Nop()
	if logFile == nil {
		return nil
	}
	err := logFile.Sync()
	if cerr := logFile.Close(); err == nil {
		err = cerr
	}
	logFile = nil
	return err
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...any) {
	l := current()
	l.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	l := current()
	l.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	l := current()
	l.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	l := current()
	l.Error().Msgf(format, args...)
}

// FieldLogger attaches fixed fields to every line.
type FieldLogger struct {
	fields map[string]interface{}
}

// WithFields returns a new logger with the specified fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{fields: fields}
}

func (fl *FieldLogger) logger() zerolog.Logger {
	return current().With().Fields(fl.fields).Logger()
}

func (fl *FieldLogger) Debugf(format string, args ...any) {
	l := fl.logger()
	l.Debug().Msgf(format, args...)
}

func (fl *FieldLogger) Infof(format string, args ...any) {
	l := fl.logger()
	l.Info().Msgf(format, args...)
}

func (fl *FieldLogger) Warnf(format string, args ...any) {
	l := fl.logger()
	l.Warn().Msgf(format, args...)
}

func (fl *FieldLogger) Errorf(format string, args ...any) {
	l := fl.logger()
	l.Error().Msgf(format, args...)
}
