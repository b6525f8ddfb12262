package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/logging"
	"github.com/cruciblehq/kiln/internal/paths"
)

// Represents the root command for kiln.
var RootCmd struct {
	Quiet   bool            `short:"q" help:"Suppress informational output."`
	Verbose bool            `short:"v" help:"Enable verbose output, including tool output."`
	Debug   bool            `short:"d" help:"Enable debug output."`
	Socket  string          `short:"s" help:"Override the default Unix socket path." placeholder:"PATH"`
	Log     string          `name:"log-format" enum:"auto,pretty,plain" default:"auto" help:"Log format: ${enum}. Auto is pretty on a terminal."`
	Config  kong.ConfigFlag `help:"Load defaults from a JSON configuration file." placeholder:"FILE"`
	Build   BuildCmd        `cmd:"" help:"Build a recipe and its dependencies."`
	Plan    PlanCmd         `cmd:"" help:"Show the build order of a recipe and what is cached."`
	Fetch   FetchCmd        `cmd:"" help:"Download the sources of a recipe and its dependencies."`
	Start   StartCmd        `cmd:"" help:"Start the build daemon."`
	Status  StatusCmd       `cmd:"" help:"Show the status of the build daemon."`
	Version VersionCmd      `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds software components from declarative recipes.\n\nResolves dependencies, fetches and verifies sources, and runs build steps into install directories."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, paths.ConfigFile()),
		kong.Vars{
			"version":      internal.VersionString(),
			"install_root": paths.InstallRoot(),
			"work_root":    paths.WorkRoot(),
			"cache_dir":    paths.Cache(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Applies the parsed global flags to the default logger and releases the
// records buffered during startup.
func configureLogger() {
	handler, ok := slog.Default().Handler().(*logging.Handler)
	if !ok {
		return
	}

	handler.SetLevel(logLevel(
		RootCmd.Debug || internal.IsDebug(),
		RootCmd.Quiet || internal.IsQuiet(),
	))
	handler.SetFormatter(logFormatter(RootCmd.Log, isatty(os.Stderr), RootCmd.Verbose || internal.IsVerbose()))
	handler.SetStream(os.Stderr)
	handler.Flush()
}

// Debug wins over quiet.
func logLevel(debug, quiet bool) slog.Level {
	switch {
	case debug:
		return slog.LevelDebug
	case quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Returns the formatter selected by format. Daemons started by a service
// manager log to a pipe, where auto selects the plain format.
func logFormatter(format string, tty, verbose bool) logging.Formatter {
	if format == "plain" || (format != "pretty" && !tty) {
		return logging.NewPlainFormatter()
	}
	f := logging.NewPrettyFormatter(tty)
	f.SetVerbose(verbose)
	return f
}

// Reports whether f is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// Returns the socket path selected on the command line, or the default.
func socketPath() string {
	if RootCmd.Socket != "" {
		return RootCmd.Socket
	}
	return paths.Socket()
}
