package syncer

import (
	"log"
	"sort"

	"github.com/agentic-research/agentsync/internal/discover"
	"github.com/agentic-research/agentsync/internal/source"
)

// Coordinator runs sync passes over all configured sources and performs
// post-sync artifact discovery per source.
type Coordinator struct {
	engine    *Engine
	cacheRoot string
}

func NewCoordinator(engine *Engine, cacheRoot string) *Coordinator {
	return &Coordinator{engine: engine, cacheRoot: cacheRoot}
}

// SyncAll syncs every enabled source in ascending priority order (stable:
// equal priorities keep configuration order) and returns the per-source
// results keyed by source identifier, plus the union of all discovered
// artifacts for resolution.
//
// Partial availability is a normal operating condition: a source that
// cannot be reached at all yields an error-outcome result and the
// remaining sources are still attempted.
func (c *Coordinator) SyncAll(sources []source.Source, force bool) (map[string]*SourceResult, []discover.Artifact) {
	ordered := make([]source.Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	results := make(map[string]*SourceResult)
	var union []discover.Artifact
	for i := range ordered {
		src := &ordered[i]
		if !src.Enabled {
			continue
		}

		result := c.engine.SyncSource(src, force)

		artifacts, err := discover.Scan(src, c.cacheRoot)
		if err != nil {
			log.Printf("syncer: %s: discovery failed: %v", src.ID(), err)
		}
		for _, a := range artifacts {
			result.Artifacts = append(result.Artifacts, a.Identity)
		}
		union = append(union, artifacts...)

		results[src.ID()] = result
	}
	return results, union
}
