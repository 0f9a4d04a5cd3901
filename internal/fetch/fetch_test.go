package fetch

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// etagServer serves a fixed body with an ETag and honors If-None-Match.
func etagServer(t *testing.T, body, etag string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if etag != "" && r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetch_StoresValidatorAndHitsCache(t *testing.T) {
	ts := etagServer(t, "agent content", `"v1"`)
	defer ts.Close()

	cache := NewMemCache()
	f := New(cache)

	res, err := f.Fetch(ts.URL+"/engineer.md", false)
	require.NoError(t, err)
	assert.False(t, res.NotModified)
	assert.Equal(t, "agent content", string(res.Body))

	etag, ok, err := cache.Validator(ts.URL + "/engineer.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"v1"`, etag)

	// Second fetch goes conditional and comes back 304.
	res, err = f.Fetch(ts.URL+"/engineer.md", false)
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Nil(t, res.Body)
}

func TestFetch_ForceBypassesValidator(t *testing.T) {
	ts := etagServer(t, "agent content", `"v1"`)
	defer ts.Close()

	f := New(nil)
	res, err := f.Fetch(ts.URL+"/a.md", false)
	require.NoError(t, err)
	require.False(t, res.NotModified)

	// With force the validator must not be attached, so the server
	// replies 200 again.
	res, err = f.Fetch(ts.URL+"/a.md", true)
	require.NoError(t, err)
	assert.False(t, res.NotModified)
	assert.Equal(t, "agent content", string(res.Body))
}

func TestFetch_NoETagClearsStoredValidator(t *testing.T) {
	etag := `"v1"`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		_, _ = w.Write([]byte("content"))
	}))
	defer ts.Close()

	cache := NewMemCache()
	f := New(cache)
	url := ts.URL + "/a.md"

	_, err := f.Fetch(url, false)
	require.NoError(t, err)
	_, ok, _ := cache.Validator(url)
	require.True(t, ok)

	// Server stops supplying ETags; stored validator must be cleared so
	// future requests are unconditional.
	etag = ""
	res, err := f.Fetch(url, true)
	require.NoError(t, err)
	assert.False(t, res.NotModified)
	_, ok, _ = cache.Validator(url)
	assert.False(t, ok)
}

func TestFetch_StatusErrorNoCacheMutation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	cache := NewMemCache()
	require.NoError(t, cache.SetValidator(ts.URL+"/gone.md", `"old"`, 3))

	f := New(cache)
	_, err := f.Fetch(ts.URL+"/gone.md", false)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	// The stored validator survives a server-side error untouched.
	etag, ok, _ := cache.Validator(ts.URL + "/gone.md")
	require.True(t, ok)
	assert.Equal(t, `"old"`, etag)
}

func TestFetch_NetworkErrorDistinctFromStatus(t *testing.T) {
	f := New(nil)
	// Closed server: connection refused.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := f.Fetch(url+"/a.md", false)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestMemCache_Roundtrip(t *testing.T) {
	c := NewMemCache()

	_, ok, err := c.Validator("u")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetValidator("u", `"e"`, 10))
	etag, ok, err := c.Validator("u")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"e"`, etag)

	require.NoError(t, c.ClearValidator("u"))
	_, ok, _ = c.Validator("u")
	assert.False(t, ok)
}
