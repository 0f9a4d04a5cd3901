package syncer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/agentic-research/agentsync/internal/fetch"
	"github.com/agentic-research/agentsync/internal/source"
	"github.com/agentic-research/agentsync/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticCatalog returns a fixed candidate list without touching the network.
type staticCatalog struct {
	names    []string
	fallback bool
}

func (c *staticCatalog) Candidates(src *source.Source) ([]string, bool) {
	return c.names, c.fallback
}

// artifactServer serves versioned artifact files with ETag support and
// counts body-bearing responses.
type artifactServer struct {
	mu    sync.Mutex
	files map[string]string // name -> content
	hits  map[string]int    // name -> 200 responses served
	srv   *httptest.Server
}

func newArtifactServer(files map[string]string) *artifactServer {
	a := &artifactServer{files: files, hits: make(map[string]int)}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()

		name := filepath.Base(r.URL.Path)
		content, ok := a.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		etag := `"` + state.HashBytes([]byte(content)) + `"`
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		a.hits[name]++
		_, _ = w.Write([]byte(content))
	}))
	return a
}

func (a *artifactServer) hitCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[name]
}

type fixture struct {
	store     *state.Store
	cacheRoot string
	src       *source.Source
	engine    *Engine
}

func newFixture(t *testing.T, serverURL string, candidates []string) *fixture {
	t.Helper()
	cacheRoot := t.TempDir()
	store, err := state.Open(filepath.Join(cacheRoot, state.DBFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	src := &source.Source{
		Owner:    "acme",
		Repo:     "agents",
		Priority: 50,
		Enabled:  true,
		RawBase:  serverURL,
	}
	engine := NewEngine(fetch.New(store), &staticCatalog{names: candidates}, store, cacheRoot)
	return &fixture{store: store, cacheRoot: cacheRoot, src: src, engine: engine}
}

func TestSyncSource_DownloadsWritesAndTracks(t *testing.T) {
	srv := newArtifactServer(map[string]string{
		"engineer.md": "---\nname: Engineer\n---\nbody\n",
		"reviewer.md": "---\nname: Reviewer\n---\nbody\n",
	})
	defer srv.srv.Close()

	f := newFixture(t, srv.srv.URL, []string{"engineer.md", "reviewer.md"})
	result := f.engine.SyncSource(f.src, false)

	assert.Equal(t, OutcomeSuccess, result.Outcome())
	assert.ElementsMatch(t, []string{"engineer.md", "reviewer.md"}, result.Downloaded)
	assert.Empty(t, result.Cached)
	assert.Empty(t, result.Failed)

	data, err := os.ReadFile(filepath.Join(f.src.CacheDir(f.cacheRoot), "engineer.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Engineer")

	changed, err := f.store.HasFileChanged(f.src.ID(), "engineer.md", state.HashBytes(data))
	require.NoError(t, err)
	assert.False(t, changed)

	runs, err := f.store.History(f.src.ID(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, OutcomeSuccess, runs[0].Outcome)
	assert.Equal(t, 2, runs[0].Downloaded)
}

func TestSyncSource_SecondRunIsAllCacheHits(t *testing.T) {
	srv := newArtifactServer(map[string]string{"engineer.md": "content"})
	defer srv.srv.Close()

	f := newFixture(t, srv.srv.URL, []string{"engineer.md"})

	first := f.engine.SyncSource(f.src, false)
	require.Equal(t, []string{"engineer.md"}, first.Downloaded)

	second := f.engine.SyncSource(f.src, false)
	assert.Empty(t, second.Downloaded)
	assert.Equal(t, []string{"engineer.md"}, second.Cached)
	assert.Equal(t, OutcomeSuccess, second.Outcome())
	// The body traveled exactly once.
	assert.Equal(t, 1, srv.hitCount("engineer.md"))
}

func TestSyncSource_SelfHealsDeletedLocalFile(t *testing.T) {
	srv := newArtifactServer(map[string]string{"engineer.md": "original content"})
	defer srv.srv.Close()

	f := newFixture(t, srv.srv.URL, []string{"engineer.md"})
	f.engine.SyncSource(f.src, false)

	localPath := filepath.Join(f.src.CacheDir(f.cacheRoot), "engineer.md")
	require.NoError(t, os.Remove(localPath))

	// Remote unchanged, so the validator still matches; the engine must
	// detect the missing local copy and force a re-download anyway.
	result := f.engine.SyncSource(f.src, false)
	assert.Equal(t, []string{"engineer.md"}, result.Downloaded)
	assert.Equal(t, OutcomeSuccess, result.Outcome())

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "original content", string(data))
}

func TestSyncSource_SelfHealsCorruptedLocalFile(t *testing.T) {
	srv := newArtifactServer(map[string]string{"engineer.md": "original content"})
	defer srv.srv.Close()

	f := newFixture(t, srv.srv.URL, []string{"engineer.md"})
	f.engine.SyncSource(f.src, false)

	localPath := filepath.Join(f.src.CacheDir(f.cacheRoot), "engineer.md")
	require.NoError(t, os.WriteFile(localPath, []byte("truncat"), 0o644))

	result := f.engine.SyncSource(f.src, false)
	assert.Equal(t, []string{"engineer.md"}, result.Downloaded)

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, "original content", string(data))
}

// stubbornFetcher always answers 304, even to forced requests.
type stubbornFetcher struct{}

func (stubbornFetcher) Fetch(url string, force bool) (*fetch.Result, error) {
	return &fetch.Result{NotModified: true}, nil
}

func TestSyncSource_ForcedRefetchStillNotModifiedFails(t *testing.T) {
	cacheRoot := t.TempDir()
	store, err := state.Open(filepath.Join(cacheRoot, state.DBFileName))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	src := &source.Source{Owner: "acme", Repo: "agents", Enabled: true}
	engine := NewEngine(stubbornFetcher{}, &staticCatalog{names: []string{"engineer.md"}}, store, cacheRoot)

	// No local file exists, the server insists on 304: the second forced
	// fetch's outcome is final and the artifact fails.
	result := engine.SyncSource(src, false)
	assert.Equal(t, []string{"engineer.md"}, result.Failed)
	assert.Equal(t, OutcomeError, result.Outcome())
	assert.Error(t, result.Err)
}

func TestSyncSource_PartialFailureIsolation(t *testing.T) {
	srv := newArtifactServer(map[string]string{"engineer.md": "content"})
	defer srv.srv.Close()

	// missing.md will 404; engineer.md must still sync.
	f := newFixture(t, srv.srv.URL, []string{"engineer.md", "missing.md"})
	result := f.engine.SyncSource(f.src, false)

	assert.Equal(t, []string{"engineer.md"}, result.Downloaded)
	assert.Equal(t, []string{"missing.md"}, result.Failed)
	assert.Equal(t, OutcomePartial, result.Outcome())
	assert.False(t, result.Success())
	assert.Nil(t, result.Err)

	runs, err := f.store.History(f.src.ID(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, OutcomePartial, runs[0].Outcome)
	assert.Equal(t, 1, runs[0].Failed)
}

func TestSyncSource_ForceRedownloadsEverything(t *testing.T) {
	srv := newArtifactServer(map[string]string{"engineer.md": "content"})
	defer srv.srv.Close()

	f := newFixture(t, srv.srv.URL, []string{"engineer.md"})
	f.engine.SyncSource(f.src, false)

	result := f.engine.SyncSource(f.src, true)
	assert.Equal(t, []string{"engineer.md"}, result.Downloaded)
	assert.Equal(t, 2, srv.hitCount("engineer.md"))
}

func TestSyncSource_ReportsCatalogFallback(t *testing.T) {
	srv := newArtifactServer(map[string]string{"engineer.md": "content"})
	defer srv.srv.Close()

	f := newFixture(t, srv.srv.URL, nil)
	f.engine.catalog = &staticCatalog{names: []string{"engineer.md"}, fallback: true}

	result := f.engine.SyncSource(f.src, false)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, OutcomeSuccess, result.Outcome())
}

func TestSourceResult_Outcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, (&SourceResult{Cached: []string{"a"}}).Outcome())
	assert.Equal(t, OutcomeSuccess, (&SourceResult{}).Outcome())
	assert.Equal(t, OutcomePartial, (&SourceResult{Downloaded: []string{"a"}, Failed: []string{"b"}}).Outcome())
	assert.Equal(t, OutcomeError, (&SourceResult{Failed: []string{"a", "b"}}).Outcome())
}
