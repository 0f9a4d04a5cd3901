// Package discover parses cached artifact files into structured records.
//
// An agent definition is a markdown file with a YAML frontmatter block:
//
//	---
//	name: Code Reviewer
//	description: Reviews diffs for correctness and style.
//	model: sonnet
//	---
//	system prompt body...
//
// Discovery is recomputed from the cache on every run; nothing here is
// persisted. The resolver operates on the Artifact records this produces.
package discover

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/agentsync/api"
	"github.com/agentic-research/agentsync/internal/source"
	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// Artifact is one discovered agent definition, bound to the source that
// published it. Ephemeral: rebuilt from cache contents each run.
type Artifact struct {
	// Identity is the normalized logical name artifacts are grouped by
	// during resolution.
	Identity string
	// Spec is the declared metadata, opaque to the engine.
	Spec api.AgentSpec
	// FileName is the artifact's file name, used as the deploy name.
	FileName string
	// Path is the absolute path of the cached file.
	Path string
	// SourceID and Priority identify and order the owning source.
	SourceID string
	Priority int
	// Body is the content after the frontmatter block.
	Body string
}

// Normalize derives a logical identity from a declared name: trimmed,
// lowercased, inner whitespace collapsed to hyphens. "Code Reviewer" and
// "code-reviewer" are the same artifact.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), "-")
}

// Scan walks src's cache directory under cacheRoot and parses every
// artifact file found. Files that fail to parse are logged and skipped; a
// missing cache directory yields an empty result, not an error.
func Scan(src *source.Source, cacheRoot string) ([]Artifact, error) {
	dir := src.CacheDir(cacheRoot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir %s: %w", dir, err)
	}

	var out []Artifact
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		a, err := ParseFile(path)
		if err != nil {
			log.Printf("discover: skipping %s: %v", path, err)
			continue
		}
		a.SourceID = src.ID()
		a.Priority = src.Priority
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// ParseFile parses one artifact file. The identity falls back to the file
// stem when the frontmatter declares no name.
func ParseFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	spec, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	name := spec.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	identity := Normalize(name)
	if identity == "" {
		return nil, fmt.Errorf("parse %s: empty artifact identity", filepath.Base(path))
	}

	return &Artifact{
		Identity: identity,
		Spec:     spec,
		FileName: filepath.Base(path),
		Path:     path,
		Body:     body,
	}, nil
}

// splitFrontmatter separates the YAML header from the body. A file without
// a frontmatter block is legal: the whole content is the body and metadata
// is empty.
func splitFrontmatter(content string) (api.AgentSpec, string, error) {
	var spec api.AgentSpec

	trimmed := strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(trimmed, frontmatterDelim+"\n") && !strings.HasPrefix(trimmed, frontmatterDelim+"\r\n") {
		return spec, content, nil
	}

	rest := trimmed[strings.Index(trimmed, "\n")+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return spec, "", fmt.Errorf("unterminated frontmatter block")
	}
	header := rest[:end]

	body := rest[end+1+len(frontmatterDelim):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(header), &spec); err != nil {
		return spec, "", fmt.Errorf("frontmatter yaml: %w", err)
	}
	return spec, body, nil
}
