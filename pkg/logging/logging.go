// Package logging configures the global zerolog logger for the binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup points log.Logger at stderr, and at logFile as well when set. The
// returned closer releases the file.
func Setup(level, logFile string) (io.Closer, error) {
	logger, closer, err := New(level, logFile, os.Stderr)
	if err != nil {
		return nil, err
	}
	log.Logger = logger
	return closer, nil
}

func New(level, logFile string, console io.Writer) (zerolog.Logger, io.Closer, error) {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: console}
	var closer io.Closer = nopCloser{}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}

		output = io.MultiWriter(zerolog.ConsoleWriter{Out: console}, file)
		closer = file
	}

	return zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger(), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
