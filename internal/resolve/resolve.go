// Package resolve picks exactly one winning artifact per logical identity
// across all sources.
//
// Resolution is a pure function of its input: no I/O, no clock, no
// randomness. The same discovered-artifact list always yields the same
// winners and the same conflict report, which is what makes deployments
// reproducible and the resolver trivially testable.
package resolve

import (
	"sort"

	"github.com/agentic-research/agentsync/internal/discover"
)

// Resolved is the single winning artifact for one identity.
type Resolved struct {
	Artifact discover.Artifact
	// Conflicted is set when more than one distinct source declared the
	// identity.
	Conflicted bool
	// Losers lists the source identifiers that lost resolution, ordered
	// by (priority, source ID).
	Losers []string
}

// Conflict names one identity that multiple sources declared.
type Conflict struct {
	Identity string
	Winner   string
	Losers   []string
}

// Resolve groups artifacts by identity and selects one winner per group.
//
// Within a group the winner is the artifact with the lowest priority
// number; equal priorities tie-break on ascending source identifier so the
// choice is stable regardless of discovery order. Output slices are sorted
// by identity.
func Resolve(artifacts []discover.Artifact) ([]Resolved, []Conflict) {
	groups := make(map[string][]discover.Artifact)
	for _, a := range artifacts {
		groups[a.Identity] = append(groups[a.Identity], a)
	}

	identities := make([]string, 0, len(groups))
	for id := range groups {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	var resolved []Resolved
	var conflicts []Conflict
	for _, id := range identities {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority < group[j].Priority
			}
			return group[i].SourceID < group[j].SourceID
		})

		winner := group[0]
		losers := loserIDs(group)
		r := Resolved{Artifact: winner}
		if len(losers) > 0 {
			r.Conflicted = true
			r.Losers = losers
			conflicts = append(conflicts, Conflict{
				Identity: id,
				Winner:   winner.SourceID,
				Losers:   losers,
			})
		}
		resolved = append(resolved, r)
	}
	return resolved, conflicts
}

// loserIDs returns the distinct non-winning source IDs in group order.
// A source publishing the same identity twice does not conflict with
// itself.
func loserIDs(group []discover.Artifact) []string {
	winner := group[0].SourceID
	seen := map[string]bool{winner: true}
	var losers []string
	for _, a := range group[1:] {
		if seen[a.SourceID] {
			continue
		}
		seen[a.SourceID] = true
		losers = append(losers, a.SourceID)
	}
	return losers
}
