// Package fetch downloads source artifacts into a content-addressed cache
// and unpacks them.
//
// Artifacts are stored by digest under "<cache>/blobs/<algorithm>/<hex>",
// next to an OCI descriptor ("<hex>.json") recording the media type, size,
// and origin URLs. An artifact already in the cache is never downloaded
// again. Entries are written to a temporary file and renamed into place only
// after the digest has been verified, so readers never observe a partial or
// unverified artifact. Concurrent requests for the same digest share a single
// download.
//
// Transient failures (transport errors, 5xx, and 429 responses) are retried
// with exponential backoff. Digest mismatches and other 4xx responses are
// final. A mismatch returns [*IntegrityMismatchError] and nothing is cached
// or extracted.
//
// Example usage:
//
//	f, err := fetch.New(fetch.Config{CacheDir: paths.Cache(), Timeout: 10 * time.Minute})
//	if err != nil {
//	    return err
//	}
//	art, err := f.FetchAndExtract(ctx, plan.Source, plan.ExtractDir)
package fetch
