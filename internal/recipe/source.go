package recipe

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"strings"

	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/opencontainers/go-digest"
)

// Describes where a recipe's source comes from.
type Source struct {
	URL     Template       // Download location; may reference ${name} and ${version}.
	Digest  digest.Digest  // Expected content digest of the downloaded artifact.
	Extract archive.Method // Extraction method; empty means archive.MethodAuto.
}

// Validates the source and normalises its extraction method.
func (s Source) normalize() (Source, error) {
	if strings.TrimSpace(string(s.URL)) == "" {
		return s, malformed("source.url", "missing")
	}
	if err := s.URL.check(sourceVars); err != nil {
		return s, malformedErr("source.url", err)
	}

	if s.Digest == "" {
		return s, malformed("source.digest", "missing")
	}
	if err := s.Digest.Validate(); err != nil {
		return s, malformedErr("source.digest", err)
	}

	m, err := archive.ParseMethod(string(s.Extract))
	if err != nil {
		return s, malformedErr("source.extract", err)
	}
	s.Extract = m
	return s, nil
}

// Source with its URL rendered for a concrete version.
type ResolvedSource struct {
	URL     string
	Digest  digest.Digest
	Extract archive.Method
}

// Returns the last path segment of the URL, used to name the artifact.
func (s ResolvedSource) Filename() string {
	u := s.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	return u
}
