// Package catalog answers "which artifact files does this source publish".
//
// The primary path queries the hosting platform's contents API for a
// directory listing. Any failure along that path — network, rate limiting,
// malformed JSON, empty directory — degrades to a fixed built-in name list
// rather than surfacing an error: candidate listing is the first step of a
// sync pass and must never be the reason a whole source fails.
package catalog

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/agentic-research/agentsync/internal/source"
	"github.com/ohler55/ojg/oj"
)

// ArtifactExt is the file extension agent definitions are published under.
const ArtifactExt = ".md"

// excluded are repository files that match the extension filter but are not
// agent definitions.
var excluded = map[string]bool{
	"README.md": true,
	"CLAUDE.md": true,
	"AGENTS.md": true,
}

// DefaultCandidates is the static fallback list used when the directory
// listing is unavailable. Kept sorted.
var DefaultCandidates = []string{
	"architect.md",
	"debugger.md",
	"engineer.md",
	"planner.md",
	"researcher.md",
	"reviewer.md",
	"tester.md",
}

// Catalog lists candidate artifact file names for a source.
type Catalog struct {
	client *http.Client
}

func New() *Catalog {
	return &Catalog{client: &http.Client{Timeout: 30 * time.Second}}
}

// Candidates returns the ordered candidate file names for src and whether
// the static fallback was used. It never returns an error: every failure
// mode of the listing API resolves to the fallback list.
func (c *Catalog) Candidates(src *source.Source) ([]string, bool) {
	names, err := c.listRemote(src)
	if err != nil {
		log.Printf("catalog: listing %s failed (%v), using built-in candidate list", src.ID(), err)
		return fallback(), true
	}
	if len(names) == 0 {
		log.Printf("catalog: listing %s returned no artifacts, using built-in candidate list", src.ID())
		return fallback(), true
	}
	sort.Strings(names)
	return names, false
}

func fallback() []string {
	out := make([]string, len(DefaultCandidates))
	copy(out, DefaultCandidates)
	return out
}

// listRemote queries the contents API and filters the response down to
// artifact file names.
func (c *Catalog) listRemote(src *source.Source) ([]string, error) {
	url := src.ListURL()
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("contents API %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden {
		// Almost always API rate limiting for unauthenticated clients.
		return nil, fmt.Errorf("contents API %s: rate limited (403)", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contents API %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("contents API %s: read body: %w", url, err)
	}

	parsed, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("contents API %s: parse response: %w", url, err)
	}
	entries, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("contents API %s: expected JSON array, got %T", url, parsed)
	}

	wantPrefix := strings.Trim(src.Path, "/")
	var names []string
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if kind, _ := m["type"].(string); kind != "file" {
			continue
		}
		name, _ := m["name"].(string)
		if !strings.HasSuffix(name, ArtifactExt) || excluded[name] {
			continue
		}
		if wantPrefix != "" {
			if p, _ := m["path"].(string); p != "" && !strings.HasPrefix(p, wantPrefix) {
				continue
			}
		}
		names = append(names, name)
	}
	return names, nil
}
