package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cruciblehq/kiln/internal"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Extracts a tar archive, optionally compressed, into dest.
//
// The stream is read twice. The first pass validates every header and
// writes nothing; the second pass writes. A rejected entry therefore leaves
// dest untouched.
func extractTar(ctx context.Context, src, dest string, m Method) error {
	v := newValidator()
	err := walkTar(ctx, src, m, func(hdr *tar.Header, _ io.Reader) error {
		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg:
			_, err := v.file(hdr.Name)
			return err
		case tar.TypeSymlink:
			_, err := v.symlink(hdr.Name, hdr.Linkname)
			return err
		case tar.TypeLink:
			_, err := v.hardlink(hdr.Name, hdr.Linkname)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	w := &writer{root: dest}
	return walkTar(ctx, src, m, func(hdr *tar.Header, r io.Reader) error {
		rel := cleanName(hdr.Name)
		var err error
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = w.dir(rel, hdr.FileInfo().Mode())
		case tar.TypeReg:
			err = w.file(rel, r, hdr.FileInfo().Mode(), hdr.ModTime)
		case tar.TypeSymlink:
			err = w.symlink(rel, hdr.Linkname)
		case tar.TypeLink:
			err = w.hardlink(rel, hdr.Linkname)
		default:
			// Devices, FIFOs, and global headers are skipped.
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExtract, rel, err)
		}
		return nil
	})
}

// Calls fn for every header of the tar stream in src.
func walkTar(ctx context.Context, src string, m Method, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	defer f.Close()

	r, closeFn, err := decompress(f, m)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExtract, m, err)
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		if err := internal.Interrupted(ctx); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar: %w", ErrExtract, err)
		}

		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// Wraps r with the decompressor for m.
func decompress(r io.Reader, m Method) (io.Reader, func(), error) {
	nop := func() {}
	switch m {
	case MethodTar:
		return r, nop, nil
	case MethodTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case MethodTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, nop, nil
	case MethodTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case MethodTarBz2:
		return bzip2.NewReader(r), nop, nil
	}
	return nil, nil, fmt.Errorf("%w: %s is not a tar method", ErrUnsupportedMethod, m)
}
