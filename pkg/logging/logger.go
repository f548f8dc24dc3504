package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/offlinefirst/tinymacro/pkg/config"
)

// Options describe how to configure a logger instance.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Logger bundles a structured logger with the level it filters on, so a
// reloaded configuration can adjust verbosity in place.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a structured logger backed by Go's slog package.
func New(opts Options) (*Logger, error) {
	levelVar := new(slog.LevelVar)
	if err := setLevel(levelVar, opts.Level); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceTimeAttr,
	}

	format, err := config.NormalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(out, &handlerOpts)
	case "console":
		handler = slog.NewTextHandler(out, &handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	return &Logger{Logger: slog.New(handler), level: levelVar}, nil
}

// FromConfig builds a logger from the logging section of a configuration.
func FromConfig(cfg config.LoggingConfig, out io.Writer) (*Logger, error) {
	return New(Options{Level: cfg.Level, Format: cfg.Format, Output: out})
}

// SetLevel changes the minimum level of this logger and every logger derived
// from it with With or WithGroup.
func (l *Logger) SetLevel(level string) error {
	return setLevel(l.level, level)
}

// Level reports the active minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

func setLevel(v *slog.LevelVar, level string) error {
	normalized, err := config.NormalizeLogLevel(level)
	if err != nil {
		return err
	}

	switch normalized {
	case "info":
		v.Set(slog.LevelInfo)
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		return fmt.Errorf("unhandled log level %q", strings.TrimSpace(level))
	}
	return nil
}

func replaceTimeAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.TimeKey && attr.Value.Kind() == slog.KindTime {
		attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
	}
	return attr
}
