package reporting

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel names a zerolog level in configuration and on the CLI.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	Output io.Writer
}

// Logger is the structured logger shared by the runner and the engine.
// It embeds zerolog.Logger, so the fluent API is available directly;
// ForRun derives per-run children whose every line carries the scenario
// name and the seed.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == LogFormatText {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return &Logger{zerolog.New(output).Level(level).With().Timestamp().Logger()}
}

// ForRun returns a child logger stamped with the scenario name and the
// seed. In a deterministic simulation the seed is the replay handle, so
// every engine line (tick, send, fault transition) that carries it can
// be reproduced with `run --seed`.
func (l *Logger) ForRun(scenario string, seed uint64) *Logger {
	child := l.With().
		Str("scenario", scenario).
		Uint64("seed", seed).
		Logger()
	return &Logger{child}
}
