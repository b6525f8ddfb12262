// Package logging provides the slog handler used by kiln.
//
// The handler starts out buffering records, because the final level, output
// stream, and formatter are only known after command-line flags have been
// parsed. Once the CLI has configured it, [Handler.Flush] replays the
// buffered records that pass the configured level and switches to direct
// output.
//
// Two formatters are available. The pretty formatter is meant for
// terminals: levels are coloured, timestamps are shown only in verbose mode,
// and the program-level group is not repeated on every key. The plain
// formatter writes logfmt-style lines suitable for files and CI logs.
//
// Example usage:
//
//	handler := logging.NewHandler()
//	slog.SetDefault(slog.New(handler.WithGroup("kiln")))
//
//	// ... parse flags ...
//
//	handler.SetLevel(slog.LevelDebug)
//	handler.SetFormatter(logging.NewPrettyFormatter(true))
//	handler.SetStream(os.Stderr)
//	handler.Flush()
package logging
