package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Extraction method for a source artifact.
type Method string

const (
	MethodAuto     Method = "auto"      // Detect from the artifact name, then by content.
	MethodPlain    Method = "plain"     // Copy the artifact as a single file.
	MethodTar      Method = "tar"       // Uncompressed tar.
	MethodTarGz    Method = "tar.gz"    // Gzip-compressed tar.
	MethodTarXz    Method = "tar.xz"    // Xz-compressed tar.
	MethodTarZst   Method = "tar.zst"   // Zstandard-compressed tar.
	MethodTarBz2   Method = "tar.bz2"   // Bzip2-compressed tar.
	MethodZip      Method = "zip"       // Zip archive.
	Method7z       Method = "7z"        // 7z archive, extracted by the external 7z tool.
	MethodSevenZip Method = "seven_zip" // Any archive the 7z tool understands, detected by content.
)

// Alternative spellings accepted by [ParseMethod].
var methodAliases = map[string]Method{
	"":           MethodAuto,
	"copy":       MethodPlain,
	"plain-copy": MethodPlain,
	"none":       MethodPlain,
	"tgz":        MethodTarGz,
	"gz":         MethodTarGz,
	"txz":        MethodTarXz,
	"tar.zstd":   MethodTarZst,
	"tzst":       MethodTarZst,
	"tbz2":       MethodTarBz2,
	"tar.bz":     MethodTarBz2,
	"sevenzip":   MethodSevenZip,
	"seven-zip":  MethodSevenZip,
}

// Name suffixes used by [MethodAuto], longest first.
var methodSuffixes = []struct {
	suffix string
	method Method
}{
	{".tar.gz", MethodTarGz},
	{".tar.xz", MethodTarXz},
	{".tar.zst", MethodTarZst},
	{".tar.bz2", MethodTarBz2},
	{".tgz", MethodTarGz},
	{".txz", MethodTarXz},
	{".tbz2", MethodTarBz2},
	{".tar", MethodTar},
	{".zip", MethodZip},
	{".7z", Method7z},
}

// Media types recorded for cached artifacts.
var mediaTypes = map[Method]string{
	MethodTar:    "application/x-tar",
	MethodTarGz:  "application/gzip",
	MethodTarXz:  "application/x-xz",
	MethodTarZst: "application/zstd",
	MethodTarBz2: "application/x-bzip2",
	MethodZip:    "application/zip",
	Method7z:     "application/x-7z-compressed",
}

// Parses an extraction method name, accepting common aliases.
func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if m, ok := methodAliases[s]; ok {
		return m, nil
	}
	switch m := Method(s); m {
	case MethodAuto, MethodPlain, MethodTar, MethodTarGz, MethodTarXz, MethodTarZst,
		MethodTarBz2, MethodZip, Method7z, MethodSevenZip:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

// Returns the media type of artifacts extracted with m.
func (m Method) MediaType() string {
	if mt, ok := mediaTypes[m]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Returns true if m is one of the tar variants.
func (m Method) isTar() bool {
	switch m {
	case MethodTar, MethodTarGz, MethodTarXz, MethodTarZst, MethodTarBz2:
		return true
	}
	return false
}

// Detects the method from a file or URL name. Returns false when the name
// carries no recognised suffix.
func DetectMethod(name string) (Method, bool) {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	for _, s := range methodSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.method, true
		}
	}
	return "", false
}

// Magic numbers recognised by [SniffMethod].
var signatures = []struct {
	offset int
	magic  []byte
	method Method
}{
	{0, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}, Method7z},
	{0, []byte{0x1F, 0x8B}, MethodTarGz},
	{0, []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}, MethodTarXz},
	{0, []byte{0x28, 0xB5, 0x2F, 0xFD}, MethodTarZst},
	{0, []byte{'B', 'Z', 'h'}, MethodTarBz2},
	{0, []byte{'P', 'K', 0x03, 0x04}, MethodZip},
	{257, []byte("ustar"), MethodTar},
}

// Detects the method of the file at path from its leading bytes.
func SniffMethod(path string) (Method, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	head = head[:n]

	for _, s := range signatures {
		end := s.offset + len(s.magic)
		if len(head) >= end && bytes.Equal(head[s.offset:end], s.magic) {
			return s.method, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised content in %s", ErrUnsupportedMethod, path)
}

// Resolves auto and seven_zip to a concrete method for the file at path.
func resolveMethod(m Method, path, name string) (Method, error) {
	switch m {
	case MethodAuto:
		if detected, ok := DetectMethod(name); ok {
			return detected, nil
		}
		if sniffed, err := SniffMethod(path); err == nil {
			return sniffed, nil
		}
		return MethodPlain, nil
	case MethodSevenZip:
		return SniffMethod(path)
	}
	return m, nil
}
