// Package fetch implements conditional HTTP retrieval of artifact files.
//
// The fetcher attaches the last-seen ETag as an If-None-Match header so
// unchanged files cost one round trip and no body transfer. It deliberately
// does not interpret content and does not retry — retry policy belongs to
// the sync engine, which also owns the hash-based integrity check that
// backstops this transport-level cache.
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// RequestTimeout bounds one fetch, covering dial, TLS, and body read.
const RequestTimeout = 30 * time.Second

// ValidatorCache stores the last-seen cache validator per fetch URL.
// Implemented by the sqlite state store; memCache provides an in-memory
// variant for tests and stateless runs.
type ValidatorCache interface {
	// Validator returns the stored token for url, if any.
	Validator(url string) (etag string, ok bool, err error)
	// SetValidator records a new token and the observed body size.
	SetValidator(url, etag string, size int64) error
	// ClearValidator forgets the token for url.
	ClearValidator(url string) error
}

// Result is the outcome of one successful fetch attempt.
type Result struct {
	// Body holds the artifact bytes. Nil when NotModified is set.
	Body []byte
	// NotModified reports a 304 response: the stored validator still
	// matches and the caller should use its local copy (after verifying
	// its hash — transport-level "not modified" says nothing about the
	// state of the local file).
	NotModified bool
}

// NetworkError reports that the source could not be reached at all:
// DNS failure, timeout, connection refused. Distinct from StatusError —
// callers need to tell "server said no" apart from "could not even ask".
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError reports a response with a status other than 200 or 304.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// Fetcher performs conditional GETs against raw-content URLs.
type Fetcher struct {
	client *http.Client
	cache  ValidatorCache
}

// New creates a Fetcher backed by the given validator cache. A nil cache
// falls back to an in-memory one.
func New(cache ValidatorCache) *Fetcher {
	if cache == nil {
		cache = NewMemCache()
	}
	return &Fetcher{
		client: &http.Client{Timeout: RequestTimeout},
		cache:  cache,
	}
}

// Fetch retrieves url, conditionally unless force is set.
//
// Returns Result{NotModified: true} on 304, Result{Body: ...} on 200.
// Any other status yields a *StatusError; transport failures yield a
// *NetworkError. Validator bookkeeping mutates only on 200: the new ETag is
// stored, or the old one cleared when the server stopped supplying one.
func (f *Fetcher) Fetch(url string, force bool) (*Result, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}

	if !force {
		etag, ok, err := f.cache.Validator(url)
		if err == nil && ok && etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		// A validator read failure just means an unconditional request.
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return &Result{NotModified: true}, nil
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			if err := f.cache.SetValidator(url, etag, int64(len(body))); err != nil {
				// Bookkeeping only; the bytes are good.
				return &Result{Body: body}, nil
			}
		} else {
			_ = f.cache.ClearValidator(url)
		}
		return &Result{Body: body}, nil
	default:
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
}
