// Package source defines the configured remote locations agent definitions
// are synchronized from, and the deterministic derivations (identifier,
// fetch URLs, cache directory) the rest of the engine builds on.
package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultRawBase is the raw-content endpoint artifacts are fetched from.
	DefaultRawBase = "https://raw.githubusercontent.com"
	// DefaultAPIBase is the hosting platform's REST API, used for
	// directory listing only.
	DefaultAPIBase = "https://api.github.com"
	// DefaultBranch is assumed when a source does not pin one.
	DefaultBranch = "main"
)

// Source is one configured remote location. Immutable for the duration of a
// sync run; created from configuration at process start.
type Source struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	// Path is an optional subdirectory within the repository that holds
	// the agent definition files.
	Path   string `yaml:"path,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	// Priority orders sources for conflict resolution: lower number wins.
	Priority int  `yaml:"priority"`
	Enabled  bool `yaml:"enabled"`

	// RawBase and APIBase override the default endpoints. Tests point them
	// at httptest servers; production configs leave them empty.
	RawBase string `yaml:"raw_base,omitempty"`
	APIBase string `yaml:"api_base,omitempty"`
}

// ID returns the unique source identifier, derived from owner, repository
// and the optional subpath: "owner/repo" or "owner/repo/sub/dir".
func (s *Source) ID() string {
	id := s.Owner + "/" + s.Repo
	if p := strings.Trim(s.Path, "/"); p != "" {
		id += "/" + p
	}
	return id
}

func (s *Source) branch() string {
	if s.Branch != "" {
		return s.Branch
	}
	return DefaultBranch
}

// RawURL returns the fetch URL for one artifact file within the source.
func (s *Source) RawURL(name string) string {
	base := s.RawBase
	if base == "" {
		base = DefaultRawBase
	}
	parts := []string{strings.TrimRight(base, "/"), s.Owner, s.Repo, s.branch()}
	if p := strings.Trim(s.Path, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, name)
	return strings.Join(parts, "/")
}

// ListURL returns the directory-listing API URL for the source's path.
func (s *Source) ListURL() string {
	base := s.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents", strings.TrimRight(base, "/"), s.Owner, s.Repo)
	if p := strings.Trim(s.Path, "/"); p != "" {
		u += "/" + p
	}
	return u
}

// CacheDir returns the source's local cache directory under root. The tree
// is partitioned by identifier so concurrent passes over different sources
// never touch the same files.
func (s *Source) CacheDir(root string) string {
	elems := append([]string{root, s.Owner, s.Repo}, splitPath(s.Path)...)
	return filepath.Join(elems...)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
