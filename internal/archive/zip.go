package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/cruciblehq/kiln/internal"
)

// Longest symlink target read from a zip entry.
const maxLinkTarget = 4096

// Extracts a zip archive into dest, validating every entry first.
func extractZip(ctx context.Context, src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	defer r.Close()

	v := newValidator()
	links := make(map[*zip.File]string)
	for _, f := range r.File {
		if err := internal.Interrupted(ctx); err != nil {
			return err
		}
		if f.Mode()&fs.ModeSymlink != 0 {
			target, err := readLink(f)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrExtract, f.Name, err)
			}
			if _, err := v.symlink(f.Name, target); err != nil {
				return err
			}
			links[f] = target
			continue
		}
		if _, err := v.file(f.Name); err != nil {
			return err
		}
	}

	w := &writer{root: dest}
	for _, f := range r.File {
		if err := internal.Interrupted(ctx); err != nil {
			return err
		}
		rel := cleanName(f.Name)
		if err := writeZipEntry(w, f, rel, links); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExtract, rel, err)
		}
	}
	return nil
}

// Writes a single validated zip entry.
func writeZipEntry(w *writer, f *zip.File, rel string, links map[*zip.File]string) error {
	if target, ok := links[f]; ok {
		return w.symlink(rel, target)
	}
	if f.FileInfo().IsDir() {
		return w.dir(rel, f.Mode())
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return w.file(rel, rc, f.Mode(), f.Modified)
}

// Reads the target of a symlink entry, stored as the entry's content.
func readLink(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxLinkTarget {
		return "", fmt.Errorf("link target longer than %d bytes", maxLinkTarget)
	}
	return string(b), nil
}
