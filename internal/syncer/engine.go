// Package syncer orchestrates sync passes: one engine pass per source, and
// a coordinator that runs all configured sources in priority order.
//
// Per artifact the engine walks a small state machine:
//
//	PENDING → FETCHING → {WRITTEN, CACHED, FAILED}
//
// A 200 writes bytes to the cache and tracks the new hash (WRITTEN). A 304
// is only trusted after re-hashing the local file against the tracked
// hash — a missing or drifted local copy despite "not modified" means the
// cache is corrupt, and the engine self-heals with one forced re-fetch
// whose outcome is final. Failures are per-artifact; one bad artifact never
// aborts the rest of the pass.
package syncer

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/agentsync/internal/fetch"
	"github.com/agentic-research/agentsync/internal/source"
	"github.com/agentic-research/agentsync/internal/state"
)

// Fetcher is the conditional-fetch dependency. Satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(url string, force bool) (*fetch.Result, error)
}

// Cataloger lists candidate artifact names. Satisfied by *catalog.Catalog.
type Cataloger interface {
	Candidates(src *source.Source) ([]string, bool)
}

// StateStore is the bookkeeping subset of *state.Store the engine needs.
type StateStore interface {
	TrackFile(sourceID, relPath, contentHash, localPath string, size int64) error
	HasFileChanged(sourceID, relPath, currentHash string) (bool, error)
	RecordSyncResult(sourceID, outcome string, downloaded, cached, failed int, duration time.Duration) error
	UpdateSourceSyncMetadata(sourceID, baseURL, etag string) error
}

// Outcome classifies a whole source pass.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// SourceResult summarizes one source's sync pass. This is the shape the
// CLI layer consumes: success flag, counts, and discovered identities.
type SourceResult struct {
	SourceID   string
	Downloaded []string
	Cached     []string
	Failed     []string
	// UsedFallback is set when the candidate list came from the built-in
	// fallback instead of the directory-listing API.
	UsedFallback bool
	Duration     time.Duration
	// Err carries the representative failure when the pass produced
	// nothing usable; nil for success and partial outcomes.
	Err error
	// Artifacts lists the identities discovered in this source's cache
	// after the pass. Populated by the coordinator.
	Artifacts []string
}

// Outcome returns success, partial, or error. A pass with no usable
// artifacts and at least one failure is an error; any failure alongside
// usable artifacts is partial.
func (r *SourceResult) Outcome() string {
	switch {
	case len(r.Failed) == 0:
		return OutcomeSuccess
	case len(r.Downloaded)+len(r.Cached) == 0:
		return OutcomeError
	default:
		return OutcomePartial
	}
}

// Success reports a pass with zero failed artifacts.
func (r *SourceResult) Success() bool { return len(r.Failed) == 0 }

// Engine performs one source's sync pass.
type Engine struct {
	fetcher   Fetcher
	catalog   Cataloger
	store     StateStore
	cacheRoot string
}

func NewEngine(fetcher Fetcher, cat Cataloger, store StateStore, cacheRoot string) *Engine {
	return &Engine{fetcher: fetcher, catalog: cat, store: store, cacheRoot: cacheRoot}
}

// SyncSource lists candidates for src and fetches each one, returning the
// per-source summary. It never returns an error: every failure is data in
// the result, and the result (including history) is recorded in the state
// store before returning.
func (e *Engine) SyncSource(src *source.Source, force bool) *SourceResult {
	start := time.Now()
	result := &SourceResult{SourceID: src.ID()}

	candidates, usedFallback := e.catalog.Candidates(src)
	result.UsedFallback = usedFallback

	var firstErr error
	for _, name := range candidates {
		status, err := e.syncArtifact(src, name, force)
		switch status {
		case artifactDownloaded:
			result.Downloaded = append(result.Downloaded, name)
		case artifactCached:
			result.Cached = append(result.Cached, name)
		case artifactFailed:
			result.Failed = append(result.Failed, name)
			if firstErr == nil {
				firstErr = err
			}
			log.Printf("syncer: %s: %s failed: %v", src.ID(), name, err)
		}
	}

	result.Duration = time.Since(start)
	if result.Outcome() == OutcomeError {
		result.Err = firstErr
	}

	// Flush bookkeeping before the pass is reported complete. Failures
	// here are diagnostic-only: the cache files themselves are already
	// correct on disk.
	if err := e.store.RecordSyncResult(src.ID(), result.Outcome(),
		len(result.Downloaded), len(result.Cached), len(result.Failed), result.Duration); err != nil {
		log.Printf("syncer: %s: record sync result: %v", src.ID(), err)
	}
	baseURL := strings.TrimSuffix(src.RawURL(""), "/")
	if err := e.store.UpdateSourceSyncMetadata(src.ID(), baseURL, ""); err != nil {
		log.Printf("syncer: %s: update source metadata: %v", src.ID(), err)
	}
	return result
}

type artifactStatus int

const (
	artifactDownloaded artifactStatus = iota
	artifactCached
	artifactFailed
)

// errCacheIntegrity marks the self-healing path: the server said "not
// modified" but the local copy is missing or its hash drifted.
var errCacheIntegrity = errors.New("local cache integrity violation")

// syncArtifact runs the per-artifact state machine for one candidate name.
func (e *Engine) syncArtifact(src *source.Source, name string, force bool) (artifactStatus, error) {
	url := src.RawURL(name)
	localPath := filepath.Join(src.CacheDir(e.cacheRoot), name)

	res, err := e.fetcher.Fetch(url, force)
	if err != nil {
		return artifactFailed, err
	}

	if !res.NotModified {
		return e.writeAndTrack(src, name, localPath, res.Body)
	}

	// 304: trust it only if the local file still matches the tracked hash.
	verifyErr := e.verifyLocal(src.ID(), name, localPath)
	if verifyErr == nil {
		return artifactCached, nil
	}
	log.Printf("syncer: %s: %s: %v, forcing re-fetch", src.ID(), name, verifyErr)

	// Self-heal with one cache-bypassing fetch. Its outcome is final: a
	// second "not modified" means the server refuses to hand us content
	// we provably do not have, and the artifact fails.
	res, err = e.fetcher.Fetch(url, true)
	if err != nil {
		return artifactFailed, err
	}
	if res.NotModified {
		return artifactFailed, fmt.Errorf("%w: server returned not-modified on forced re-fetch", errCacheIntegrity)
	}
	return e.writeAndTrack(src, name, localPath, res.Body)
}

// verifyLocal checks that the cached file exists and its hash matches the
// tracked hash. Any discrepancy is an errCacheIntegrity.
func (e *Engine) verifyLocal(sourceID, name, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("%w: read local copy: %v", errCacheIntegrity, err)
	}
	changed, err := e.store.HasFileChanged(sourceID, name, state.HashBytes(data))
	if err != nil {
		// Cannot verify, so do not trust the 304.
		return fmt.Errorf("%w: %v", errCacheIntegrity, err)
	}
	if changed {
		return fmt.Errorf("%w: hash drifted from tracked value", errCacheIntegrity)
	}
	return nil
}

// writeAndTrack persists fetched bytes to the cache and records tracking
// state. Tracking runs strictly after the byte write so the store never
// claims a file it does not have; a tracking failure is logged and the
// artifact still counts as downloaded (next run re-verifies the hash, at
// worst costing one redundant fetch).
func (e *Engine) writeAndTrack(src *source.Source, name, localPath string, body []byte) (artifactStatus, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return artifactFailed, fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(localPath, body, 0o644); err != nil {
		return artifactFailed, fmt.Errorf("write cache file: %w", err)
	}
	hash := state.HashBytes(body)
	if err := e.store.TrackFile(src.ID(), name, hash, localPath, int64(len(body))); err != nil {
		log.Printf("syncer: %s: track %s: %v", src.ID(), name, err)
	}
	return artifactDownloaded, nil
}
