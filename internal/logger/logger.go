// Package logger builds the process zerolog.Logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `json:"level" yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format     string `json:"format" yaml:"format" default:"console" validate:"oneof=console json"`
	Output     string `json:"output" yaml:"output" default:"stdout"` // stdout, stderr or a file path
	TimeFormat string `json:"time_format,omitempty" yaml:"time_format,omitempty"`
}

// New returns a logger writing to cfg.Output. File output is appended to
// and stays open for the life of the process.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("could not open log file: %w", err)
		}
		out = f
	}

	return NewWithWriter(cfg, out, level), nil
}

// NewWithWriter builds a logger on an arbitrary writer.
func NewWithWriter(cfg Config, out io.Writer, level zerolog.Level) zerolog.Logger {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: cfg.TimeFormat,
			NoColor:    out != os.Stdout && out != os.Stderr,
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}
