package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/google/renameio"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Content-addressed artifact store rooted at a directory.
type cache struct {
	root string
}

// Returns the path of the blob for d.
func (c *cache) blobPath(d digest.Digest) string {
	return filepath.Join(c.root, "blobs", d.Algorithm().String(), d.Encoded())
}

// Returns the path of the descriptor sidecar for d.
func (c *cache) descriptorPath(d digest.Digest) string {
	return c.blobPath(d) + ".json"
}

// Returns the cached artifact for d, if present.
//
// The blob is trusted when its size matches the recorded descriptor; blobs
// only appear after verification, so a size check catches external damage
// without rehashing.
func (c *cache) lookup(d digest.Digest) (*Artifact, bool) {
	p := c.blobPath(d)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}

	desc := ocispec.Descriptor{Digest: d, Size: info.Size()}
	if b, err := os.ReadFile(c.descriptorPath(d)); err == nil {
		var recorded ocispec.Descriptor
		if json.Unmarshal(b, &recorded) == nil && recorded.Digest == d {
			if recorded.Size != info.Size() {
				return nil, false
			}
			desc = recorded
		}
	}
	return &Artifact{Path: p, Descriptor: desc, Cached: true}, true
}

// Creates the directory holding blobs of d's algorithm.
func (c *cache) prepare(d digest.Digest) error {
	return os.MkdirAll(filepath.Dir(c.blobPath(d)), paths.DefaultDirMode)
}

// Writes the descriptor sidecar atomically.
func (c *cache) writeDescriptor(desc ocispec.Descriptor) error {
	b, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding descriptor: %w", err)
	}
	return renameio.WriteFile(c.descriptorPath(desc.Digest), b, paths.DefaultFileMode)
}

// Starts a pending blob write. The file becomes visible only when committed.
func (c *cache) create(d digest.Digest) (*renameio.PendingFile, error) {
	p := c.blobPath(d)
	return renameio.TempFile(filepath.Dir(p), p)
}
