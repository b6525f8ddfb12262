package archive

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/runtime"
)

// Name of the external 7z tool, looked up in PATH.
var sevenZipTool = "7z"

// Extracts a 7z archive into dest with the external 7z tool.
//
// The archive listing is validated before the tool runs. The listing does not
// carry link targets, so the tool extracts into a staging directory next to
// dest; links are checked there and entries move into dest only when every
// link stays inside. A rejected archive leaves dest untouched.
func extract7z(ctx context.Context, src, dest string) error {
	names, err := list7z(ctx, src)
	if err != nil {
		return err
	}

	v := newValidator()
	for _, name := range names {
		if _, err := v.file(name); err != nil {
			return err
		}
	}

	stage, err := os.MkdirTemp(filepath.Dir(dest), ".7z-")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	defer os.RemoveAll(stage)

	if _, err := run7z(ctx, "x", "-y", "-o"+stage, src); err != nil {
		return err
	}
	if err := checkLinks(stage); err != nil {
		return err
	}
	return moveEntries(stage, dest)
}

// Renames every top-level entry of from into to. Both must be on the same
// file system.
func moveEntries(from, to string) error {
	entries, err := os.ReadDir(from)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(from, e.Name()), filepath.Join(to, e.Name())); err != nil {
			return fmt.Errorf("%w: %w", ErrExtract, err)
		}
	}
	return nil
}

// Returns the entry paths reported by "7z l -slt".
//
// The technical listing prints the archive's own properties first, then a
// dashed separator, then one "Path = ..." block per entry.
func list7z(ctx context.Context, src string) ([]string, error) {
	out, err := run7z(ctx, "l", "-slt", src)
	if err != nil {
		return nil, err
	}

	var names []string
	entries := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "----------") {
			entries = true
			continue
		}
		if name, ok := strings.CutPrefix(line, "Path = "); ok && entries {
			names = append(names, name)
		}
	}
	return names, sc.Err()
}

// Runs the 7z tool with args and returns its standard output.
func run7z(ctx context.Context, args ...string) (string, error) {
	result, err := runtime.New(nil).ExecArgs(ctx, append([]string{sevenZipTool}, args...), nil, "")
	if err != nil {
		if internal.IsInterrupted(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrExtract, err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("%w: %s %s exited with %d: %s", ErrExtract, sevenZipTool, args[0], result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// Walks root and rejects any symlink whose target leaves it.
func checkLinks(root string) error {
	v := newValidator()
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		target, err := os.Readlink(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		_, err = v.symlink(filepath.ToSlash(rel), filepath.ToSlash(target))
		return err
	})
}
