// Package logger initializes and configures the global zerolog instance.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds configuration options for the application logger.
type Config struct {
	Level  string `long:"level" env:"LEVEL" description:"Log level (trace, debug, info, warn, error)" default:"warn" json:"level"`
	Format string `long:"format" env:"FORMAT" description:"Log format (console or json)" default:"console" json:"format"`
	Output string `long:"output" env:"OUTPUT" description:"Log output (stdout, stderr or file path)" default:"stderr" json:"output"`
}

// Setup configures the global logger from cfg and returns it, so callers can hand the same
// logger to components that take one explicitly. The returned io.Closer releases a log file
// when one was opened.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	var (
		writer io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			// Fallback to stderr if file fails
			tempLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			tempLogger.Error().Err(err).Str("path", cfg.Output).Msg("Failed to open log file, falling back to stderr")
			writer = os.Stderr
		} else {
			writer, closer = file, file
		}
	}

	if cfg.Format == "json" {
		log.Logger = zerolog.New(writer).With().Timestamp().Logger()
		return log.Logger, closer
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        writer,
		TimeFormat: time.RFC3339,
		NoColor:    !colorful(writer),
	}
	log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

	return log.Logger, closer
}

// colorful reports whether writer is a terminal and NO_COLOR is unset.
func colorful(writer io.Writer) bool {
	f, ok := writer.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}

	stat, err := f.Stat()
	if err != nil {
		return false
	}

	return (stat.Mode() & os.ModeCharDevice) != 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
