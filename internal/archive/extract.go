package archive

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/paths"
)

// Options for [Extract].
type Options struct {
	Method Method // Extraction method; empty means [MethodAuto].
	Name   string // Artifact name, usually the last URL path segment.
}

// Extracts the artifact at src into dest using the configured method.
//
// The dest directory is created if needed. Every entry is validated before
// anything is written, and an unsafe entry fails the whole extraction with
// an [*UnsafeEntryError]. Cancellation of ctx is reported as
// internal.ErrCancelled or internal.ErrTimeout.
func Extract(ctx context.Context, src, dest string, opts Options) error {
	m := opts.Method
	if m == "" {
		m = MethodAuto
	}
	m, err := resolveMethod(m, src, opts.Name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}

	switch {
	case m == MethodPlain:
		return copyPlain(ctx, src, dest, opts.Name)
	case m.isTar():
		return extractTar(ctx, src, dest, m)
	case m == MethodZip:
		return extractZip(ctx, src, dest)
	case m == Method7z:
		return extract7z(ctx, src, dest)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedMethod, m)
}

// Copies src into dest as a single file named after the artifact.
func copyPlain(ctx context.Context, src, dest, name string) error {
	if err := internal.Interrupted(ctx); err != nil {
		return err
	}

	if name == "" {
		name = path.Base(src)
	}
	rel, err := newValidator().file(path.Base(cleanName(name)))
	if err != nil {
		return err
	}
	if rel == "." || rel == ".." {
		return &UnsafeEntryError{Name: name, Reason: "no usable file name"}
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}

	w := &writer{root: dest}
	if err := w.file(rel, f, info.Mode()|0o644, info.ModTime()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExtract, rel, err)
	}
	return nil
}
