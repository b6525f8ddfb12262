package archive

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Writes validated entries beneath root.
//
// Parent directories are resolved with a symlink-aware join scoped to root,
// so even a link created by an earlier entry cannot redirect a write outside
// it. The final path component is never resolved, which lets link entries be
// created in place.
type writer struct {
	root string
}

// Returns the host path of the root-relative slash path rel.
func (w *writer) target(rel string) (string, error) {
	dir, err := securejoin.SecureJoin(w.root, filepath.FromSlash(path.Dir(rel)))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path.Base(rel)), nil
}

// Creates a directory and its parents.
func (w *writer) dir(rel string, mode fs.FileMode) error {
	if rel == "." {
		return nil
	}
	p, err := w.target(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, mode.Perm()|0o700)
}

// Writes a regular file from r, preserving the mode bits and, when known,
// the modification time. Autotools trees depend on the latter to avoid
// regenerating configure scripts.
func (w *writer) file(rel string, r io.Reader, mode fs.FileMode, mtime time.Time) error {
	p, err := w.target(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := removeExisting(p); err != nil {
		return err
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if !mtime.IsZero() {
		return os.Chtimes(p, mtime, mtime)
	}
	return nil
}

// Creates a symbolic link at rel pointing to linkTarget.
func (w *writer) symlink(rel, linkTarget string) error {
	p, err := w.target(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := removeExisting(p); err != nil {
		return err
	}
	return os.Symlink(filepath.FromSlash(linkTarget), p)
}

// Creates a hard link at rel to the earlier entry targetRel.
func (w *writer) hardlink(rel, targetRel string) error {
	oldname, err := w.target(cleanName(targetRel))
	if err != nil {
		return err
	}
	newname, err := w.target(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newname), 0o755); err != nil {
		return err
	}
	if err := removeExisting(newname); err != nil {
		return err
	}
	return os.Link(oldname, newname)
}

// Removes a non-directory at p so the entry can be created exclusively.
func removeExisting(p string) error {
	info, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "create", Path: p, Err: fs.ErrExist}
	}
	return os.Remove(p)
}
