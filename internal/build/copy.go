package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/google/renameio"
)

// Copies the regular file src into dir, keeping its base name, and returns
// the destination path.
//
// The destination is replaced atomically. A missing src is reported with an
// error satisfying os.IsNotExist.
func installFile(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrFileSystemOperation, src)
	}

	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	dest := filepath.Join(dir, filepath.Base(src))
	t, err := renameio.TempFile(dir, dest)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer t.Cleanup()

	if _, err := io.Copy(t, in); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := t.Chmod(paths.DefaultFileMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return dest, nil
}
