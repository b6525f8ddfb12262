package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/cli"
	"github.com/cruciblehq/kiln/internal/logging"
)

// Exit status after an interrupt, following the shell convention for SIGINT.
const exitInterrupted = 130

// The entry point for kiln.
//
// Initializes logging, displays startup information, and executes the root
// command. Exits with 130 if the command was cancelled and 1 on any other
// error.
func main() {
	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("kiln is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		if errors.Is(err, internal.ErrCancelled) {
			os.Exit(exitInterrupted)
		}
		os.Exit(1)
	}
}

// Creates a buffered logger seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via cli.Execute.
func logger() *slog.Logger {
	handler := logging.NewHandler()
	handler.SetLevel(logLevel())
	return slog.New(handler.WithGroup(internal.Name))
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
