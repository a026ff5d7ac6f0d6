package correlate

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/store"
)

// Queue receives the identifiers of freshly created findings. The lifecycle
// engine owns everything past this seam.
type Queue interface {
	Enqueue(id uuid.UUID)
}

// Correlator turns ingested commits into DETECTED findings by intersecting
// the vulnerability catalog with the repository's language. Duplicate
// delivery of a commit is absorbed by the finding uniqueness invariant, so
// the correlator itself keeps no state.
type Correlator struct {
	catalog  *catalog.Catalog
	findings store.FindingStore
	queue    Queue
	logger   hclog.Logger
}

// New creates a Correlator.
func New(cat *catalog.Catalog, findings store.FindingStore, queue Queue, logger hclog.Logger) *Correlator {
	return &Correlator{catalog: cat, findings: findings, queue: queue, logger: logger}
}

// HandleCommit creates one finding per catalog vulnerability relevant to the
// repository's language, unless a non-terminal finding for the triple already
// exists. It is the ingestor's sink.
func (c *Correlator) HandleCommit(_ context.Context, repo model.Repository, commit model.Commit) error {
	candidates := c.catalog.ForLanguage(repo.Language)
	if len(candidates) == 0 {
		return nil
	}

	for _, vuln := range candidates {
		finding := model.NewFinding(repo.URL, commit.SHA, vuln.ID)
		finding.CommitDiff = commit.Diff
		finding.AffectedFiles = append([]string(nil), commit.Files...)

		stored, created := c.findings.CreateIfAbsent(finding)
		if !created {
			c.logger.Debug("finding already tracked", "triple", stored.TripleKey(), "status", stored.Status)
			continue
		}

		c.logger.Info("finding detected",
			"repo", repo.URL, "commit", commit.SHA, "vulnerability", vuln.ID, "severity", vuln.Severity)
		if c.queue != nil {
			c.queue.Enqueue(stored.ID)
		}
	}
	return nil
}
