// Package archive unpacks fetched source artifacts into a directory.
//
// Supported methods are plain copy, tar (optionally compressed with gzip,
// xz, zstd, or bzip2), zip, and 7z. The 7z method delegates to the external
// 7z tool, the others are handled in-process. The "seven_zip" method sniffs
// the payload and picks the matching in-process extractor, falling back to
// the 7z tool only for real 7z archives; "auto" detects the method from the
// artifact name and sniffs when the name is inconclusive.
//
// Extraction never writes outside the target directory. Every entry is
// validated before the first byte is written: absolute names, names that
// climb out of the root, links whose targets escape it, and entries nested
// under a link are all rejected with [ErrUnsafeArchiveEntry]. Writes then go
// through a symlink-aware join rooted at the target directory.
//
// Example usage:
//
//	err := archive.Extract(ctx, "/cache/blobs/sha256/af9a...", "work/src", archive.Options{
//	    Method: archive.MethodTarGz,
//	    Name:   "v2.2.0.tar.gz",
//	})
package archive
