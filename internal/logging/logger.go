// Package logging builds the structured loggers shared by vrouterd and xconnect.
package logging

import (
	"log/slog"
	"os"
)

// New returns a slog.Logger configured for structured, JSON-oriented output,
// scoped to the given subsystem.
func New(subsystem string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	return slog.New(handler).With("subsystem", subsystem)
}

// NewVerbose is like New but lowers the handler to debug level, used when
// --trace/--debug is passed on the command line.
func NewVerbose(subsystem string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})
	return slog.New(handler).With("subsystem", subsystem)
}
