package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Program name. Names the logging group, default directories, the socket
// group and the User-Agent product.
const Name = "kiln"

const (
	undefined   = "(undefined)"
	localBuild  = "(local)"
	mainBranch  = "main"
	shortCommit = 12
)

// Set with -ldflags "-X" by release pipelines.
var (
	version   = ""
	stage     = ""
	gitCommit = ""

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"
)

// Describes the running binary.
type BuildInfo struct {
	Version  string // Release version without a "v" prefix.
	Stage    string // Branch or development stage.
	Commit   string // VCS revision.
	Modified bool   // Built from a dirty tree.
	Platform string // GOOS/GOARCH.
	Local    bool   // Not produced by a release pipeline.
}

// Returns the linker-provided build information. Local builds fall back to
// the VCS stamp the Go toolchain embeds, when there is one.
func Build() BuildInfo {
	b := BuildInfo{
		Version:  strings.TrimPrefix(strings.ToLower(strings.TrimSpace(version)), "v"),
		Stage:    strings.ToLower(strings.TrimSpace(stage)),
		Commit:   strings.TrimSpace(gitCommit),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	b.Local = b.Version == "" || b.Stage == "" || b.Commit == ""

	if b.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					b.Commit = s.Value
				case "vcs.modified":
					b.Modified = s.Value == "true"
				}
			}
		}
	}
	return b
}

// Formats the build as "<version>[+<stage>] <commit> [<platform>]". The stage
// is omitted on the main branch. Local builds print "(local)", followed by
// the embedded commit when known.
func (b BuildInfo) String() string {
	commit := b.Commit
	if len(commit) > shortCommit {
		commit = commit[:shortCommit]
	}
	if b.Modified {
		commit += "-dirty"
	}

	if b.Local {
		if commit == "" {
			return localBuild
		}
		return localBuild + " " + commit
	}

	st := ""
	if b.Stage != mainBranch {
		st = "+" + b.Stage
	}
	return fmt.Sprintf("%s%s %s [%s]", or(b.Version), st, or(commit), b.Platform)
}

func or(s string) string {
	if s == "" {
		return undefined
	}
	return s
}

// Returns the detailed version string of the running binary.
func VersionString() string {
	return Build().String()
}

// Returns the User-Agent sent with source downloads.
func UserAgent() string {
	b := Build()
	if b.Local {
		return Name + "/dev"
	}
	return Name + "/" + b.Version
}
