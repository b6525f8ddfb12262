package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/google/renameio"
	"github.com/opencontainers/go-digest"
)

// Record of a completed install.
type Stamp struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Fingerprint digest.Digest   `json:"fingerprint"`
	Source      digest.Digest   `json:"source,omitempty"`
	Platform    string          `json:"platform"`
	Licenses    []build.License `json:"licenses,omitempty"`
	RunID       string          `json:"run_id"`
	Completed   time.Time       `json:"completed"`
}

// Returns the stamp path of recipe name installed in installDir.
func stampPath(installDir, name string) string {
	return filepath.Join(installDir, "."+internal.Name, name+".json")
}

// Reads the stamp at p. A missing stamp returns nil and no error.
func readStamp(p string) (*Stamp, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStamp, err)
	}

	var s Stamp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStamp, p, err)
	}
	return &s, nil
}

// Returns true if s describes an install of fingerprint fp on platform.
func (s *Stamp) matches(fp digest.Digest, platform string) bool {
	return s != nil && s.Fingerprint == fp && s.Platform == platform
}

// Writes s to p atomically.
func writeStamp(p string, s *Stamp) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStamp, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrStamp, err)
	}
	if err := renameio.WriteFile(p, append(data, '\n'), paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrStamp, err)
	}
	return nil
}

// Removes the stamp at p, if any.
func removeStamp(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrStamp, err)
	}
	return nil
}
