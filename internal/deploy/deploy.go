// Package deploy copies resolved artifacts into the consumer-facing target
// directory.
//
// Deployment is per-artifact: a winning source file that vanished between
// resolution and deployment fails that one artifact, never the run. The
// only fatal condition is a target directory that cannot be created. An
// unchanged file (same content hash as the already-deployed copy) is
// skipped so repeated deploys are cheap and leave mtimes alone.
package deploy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/agentsync/internal/resolve"
)

// Status classifies one artifact's deployment outcome.
type Status string

const (
	StatusDeployed Status = "deployed"
	StatusSkipped  Status = "skipped-unchanged"
	StatusFailed   Status = "failed"
)

// Outcome is the per-artifact deployment report.
type Outcome struct {
	Identity string
	FileName string
	Status   Status
	Err      error
}

// Manager deploys resolved artifacts into TargetDir.
type Manager struct {
	TargetDir string
}

func NewManager(targetDir string) *Manager {
	return &Manager{TargetDir: targetDir}
}

// Deploy writes each resolved artifact into the target directory under its
// declared file name. With dryRun set it computes identical outcomes
// without creating, modifying, or deleting anything under the target.
//
// The returned error is non-nil only for a fundamentally unusable target
// directory; per-artifact failures live in the outcomes.
func (m *Manager) Deploy(resolved []resolve.Resolved, dryRun bool) ([]Outcome, error) {
	if !dryRun {
		if err := os.MkdirAll(m.TargetDir, 0o755); err != nil {
			return nil, fmt.Errorf("create target dir %s: %w", m.TargetDir, err)
		}
	}

	outcomes := make([]Outcome, 0, len(resolved))
	for _, r := range resolved {
		outcomes = append(outcomes, m.deployOne(r, dryRun))
	}
	return outcomes, nil
}

func (m *Manager) deployOne(r resolve.Resolved, dryRun bool) Outcome {
	out := Outcome{Identity: r.Artifact.Identity, FileName: r.Artifact.FileName}

	content, err := os.ReadFile(r.Artifact.Path)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("read source file: %w", err)
		return out
	}

	target := filepath.Join(m.TargetDir, r.Artifact.FileName)
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, content) {
		out.Status = StatusSkipped
		return out
	}

	if dryRun {
		out.Status = StatusDeployed
		return out
	}

	if err := os.WriteFile(target, content, 0o644); err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("write %s: %w", target, err)
		return out
	}
	out.Status = StatusDeployed
	return out
}
