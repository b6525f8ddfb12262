// Parses flags, configures logging, and runs kiln commands.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output, including tool output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path of the daemon.
//	    --config    JSON configuration file.
//
// Flags override values from the configuration file, which override
// build-time defaults set via linker flags. After parsing, the global logger
// is reconfigured to reflect the final level and verbosity before the
// command runs.
package cli
