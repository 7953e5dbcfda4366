package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
)

var defaultLogger *slog.Logger

// LogLevel is the minimum level written, as named in the [logging] table.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config is the [logging] section of the diffuser config.
type Config struct {
	Level  LogLevel `toml:"level" validate:"required,oneof=debug info warn error"`
	Format string   `toml:"format" validate:"required,oneof=text json"`
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// slogLevel maps l onto slog, treating unknown names as info.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the process-wide logger. Logs go to stderr so that stdout
// only carries what the CLI prints, such as exported file paths. An invalid
// config is reported and falls back to info level text output.
func Init(config Config) {
	if err := config.Validate(); err != nil {
		slog.Error("Invalid logger configuration", "error", err)
	}
	defaultLogger = slog.New(newHandler(os.Stderr, config))
	slog.SetDefault(defaultLogger)
}

func newHandler(w io.Writer, config Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}
	if config.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// current falls back to the slog default until Init has run, so packages
// and tests can log without any setup.
func current() *slog.Logger {
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// With returns a logger with additional context
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Fatal logs an error and exits the program
func Fatal(msg string, args ...any) {
	current().Error(msg, args...)
	os.Exit(1)
}

// Service creates a logger with service context
func Service(service string) *slog.Logger {
	return current().With("service", service)
}

// Model creates a logger with model context
func Model(name string) *slog.Logger {
	return current().With("model", name)
}

// Job creates a logger scoped to a single worker job
func Job(kind, id string) *slog.Logger {
	return current().With("job", kind, "job_id", id)
}
