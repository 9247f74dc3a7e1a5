// Package logger builds the process logger.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger on stderr, or a console logger in development.
// An unknown level falls back to info.
func New(development bool, level string) zerolog.Logger {
	return newLogger(os.Stderr, development, level)
}

func newLogger(w io.Writer, development bool, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	out := w
	if development {
		out = zerolog.ConsoleWriter{Out: w}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
