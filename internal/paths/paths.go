package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	programName = "kiln"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the content-addressed source artifact cache.
//
//	Linux:   $XDG_CACHE_HOME/kiln or ~/.cache/kiln
//	macOS:   ~/Library/Caches/kiln
func Cache() string {
	return filepath.Join(xdg.CacheHome, programName)
}

// Path to the root under which recipes are installed.
//
//	Linux:   $XDG_DATA_HOME/kiln/install or ~/.local/share/kiln/install
//	macOS:   ~/Library/Application Support/kiln/install
func InstallRoot() string {
	return filepath.Join(xdg.DataHome, programName, "install")
}

// Path to the root under which per-recipe working directories are created.
//
//	Linux:   $XDG_STATE_HOME/kiln/work or ~/.local/state/kiln/work
//	macOS:   ~/Library/Application Support/kiln/work
func WorkRoot() string {
	return filepath.Join(xdg.StateHome, programName, "work")
}

// Default path to the JSON configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/kiln/config.json or ~/.config/kiln/config.json
//	macOS:   ~/Library/Application Support/kiln/config.json
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, programName, "config.json")
}

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/kiln or /run/user/<uid>/kiln
//	macOS:   ~/Library/Caches/kiln/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, programName)
	}
	return filepath.Join(xdg.CacheHome, programName, "run")
}

// Default path to the Unix domain socket of the build daemon.
func Socket() string {
	return filepath.Join(Runtime(), "kiln.sock")
}

// Default path to the daemon PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), "kiln.pid")
}
