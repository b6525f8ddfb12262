package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRetries       = 3               // Default number of retries after a failed attempt.
	DefaultRetryInterval = 1 * time.Second // Default delay before the first retry.
)

// Configures a [Fetcher].
type Config struct {
	CacheDir      string        // Cache root; defaults to paths.Cache().
	Timeout       time.Duration // Bound on a whole fetch including retries; zero means none.
	Retries       int           // Retries after the first attempt; negative disables retrying.
	RetryInterval time.Duration // Initial backoff interval.
	Client        *http.Client  // HTTP client; defaults to http.DefaultClient.
}

// Cached source artifact.
type Artifact struct {
	Path       string             // Location of the verified blob.
	Descriptor ocispec.Descriptor // Media type, digest, size, and origin.
	Cached     bool               // True if no download was needed.
}

// Downloads and caches source artifacts.
type Fetcher struct {
	cfg   Config
	cache *cache
	group singleflight.Group
}

// Creates a fetcher, creating the cache directory if needed.
func New(cfg Config) (*Fetcher, error) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = paths.Cache()
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if err := os.MkdirAll(cfg.CacheDir, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Fetcher{cfg: cfg, cache: &cache{root: cfg.CacheDir}}, nil
}

// Returns the cached artifact with digest d, if present.
func (f *Fetcher) Lookup(d digest.Digest) (*Artifact, bool) {
	return f.cache.lookup(d)
}

// Makes the artifact described by src available in the cache.
//
// A cached artifact is returned without touching the network. Otherwise the
// artifact is downloaded, verified against src.Digest, and committed to the
// cache. Returns [*IntegrityMismatchError] on a digest mismatch,
// internal.ErrTimeout if the configured timeout expires, and
// internal.ErrCancelled if ctx is cancelled.
func (f *Fetcher) Fetch(ctx context.Context, src recipe.ResolvedSource) (*Artifact, error) {
	if err := src.Digest.Validate(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
	}
	if art, ok := f.cache.lookup(src.Digest); ok {
		slog.Debug("source cached", "url", src.URL, "digest", src.Digest)
		return art, nil
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	for {
		// Concurrent fetches of one digest share a download, which runs
		// under the context of the caller that started it.
		ch := f.group.DoChan(src.Digest.String(), func() (any, error) {
			return f.download(ctx, src)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				// The caller that started the download gave up. Start over
				// under this caller's context.
				if res.Shared && internal.IsInterrupted(res.Err) && ctx.Err() == nil {
					slog.Debug("shared download interrupted, restarting", "url", src.URL)
					continue
				}
				return nil, res.Err
			}
			art := *res.Val.(*Artifact)
			return &art, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s: %w", src.URL, internal.Interrupted(ctx))
		}
	}
}

// Fetches src and extracts it into dest.
//
// Nothing is written to dest unless the artifact's digest matches and every
// archive entry is safe to extract.
func (f *Fetcher) FetchAndExtract(ctx context.Context, src recipe.ResolvedSource, dest string) (*Artifact, error) {
	art, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	opts := archive.Options{Method: src.Extract, Name: src.Filename()}
	if err := archive.Extract(ctx, art.Path, dest, opts); err != nil {
		return nil, fmt.Errorf("extract %s: %w", src.Filename(), err)
	}
	return art, nil
}

// Downloads src with retries and commits it to the cache.
func (f *Fetcher) download(ctx context.Context, src recipe.ResolvedSource) (*Artifact, error) {
	// Another caller may have committed the blob since the first lookup.
	if art, ok := f.cache.lookup(src.Digest); ok {
		return art, nil
	}
	if err := f.cache.prepare(src.Digest); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.RetryInterval
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if f.cfg.Retries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(f.cfg.Retries))
	}

	var size int64
	attempt := 0
	op := func() error {
		attempt++
		n, err := f.attempt(ctx, src)
		if err != nil {
			var mismatch *IntegrityMismatchError
			var status *statusError
			switch {
			case errors.As(err, &mismatch), errors.Is(err, ErrUnsupportedURL), errors.Is(err, fs.ErrNotExist):
				return backoff.Permanent(err)
			case errors.As(err, &status) && !status.temporary():
				return backoff.Permanent(err)
			case ctx.Err() != nil:
				return backoff.Permanent(err)
			}
			return err
		}
		size = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("download failed, retrying", "url", src.URL, "attempt", attempt, "wait", wait, "error", err)
	}

	slog.Info("downloading source", "url", src.URL, "digest", src.Digest)
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		if ierr := internal.Interrupted(ctx); ierr != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.URL, ierr)
		}
		return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
	}

	desc := ocispec.Descriptor{
		MediaType: mediaType(src),
		Digest:    src.Digest,
		Size:      size,
		URLs:      []string{src.URL},
		Annotations: map[string]string{
			ocispec.AnnotationTitle:   src.Filename(),
			ocispec.AnnotationCreated: time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := f.cache.writeDescriptor(desc); err != nil {
		slog.Warn("writing cache descriptor", "digest", src.Digest, "error", err)
	}

	return &Artifact{Path: f.cache.blobPath(src.Digest), Descriptor: desc}, nil
}

// Performs one download attempt, streaming into a pending cache entry and
// committing it only if the digest matches. Returns the artifact size.
func (f *Fetcher) attempt(ctx context.Context, src recipe.ResolvedSource) (int64, error) {
	body, err := f.open(ctx, src.URL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	pending, err := f.cache.create(src.Digest)
	if err != nil {
		return 0, err
	}
	defer pending.Cleanup()

	digester := src.Digest.Algorithm().Digester()
	n, err := io.Copy(io.MultiWriter(pending, digester.Hash()), body)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrDownload, src.URL, err)
	}

	if actual := digester.Digest(); actual != src.Digest {
		return 0, &IntegrityMismatchError{URL: src.URL, Expected: src.Digest, Actual: actual}
	}

	if err := pending.Chmod(paths.DefaultFileMode); err != nil {
		return 0, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return 0, err
	}
	return n, nil
}

// Opens the artifact at rawURL for reading.
func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnsupportedURL, rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
		}
		req.Header.Set("User-Agent", internal.UserAgent())

		resp, err := f.cfg.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDownload, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &statusError{url: rawURL, code: resp.StatusCode}
		}
		return resp.Body, nil

	case "file":
		return openLocal(u.Path)

	case "":
		return openLocal(rawURL)
	}
	return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
}

func openLocal(p string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return f, nil
}

// Returns the media type recorded for src.
func mediaType(src recipe.ResolvedSource) string {
	m := src.Extract
	if m == archive.MethodAuto || m == archive.MethodSevenZip || m == "" {
		if detected, ok := archive.DetectMethod(src.Filename()); ok {
			m = detected
		}
	}
	return m.MediaType()
}
