package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/host"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/store"
)

// Sink receives each ingested commit, oldest first. A sink error for a commit
// halts that repository's run; the checkpoint stays at the last commit the
// sink accepted, so the commit is redelivered next round.
type Sink interface {
	HandleCommit(ctx context.Context, repo model.Repository, commit model.Commit) error
}

// Stats is the slice of the statistics collector the ingestor feeds.
type Stats interface {
	RecordCommits(n int)
}

// Ingestor walks the active repositories on a schedule, pulls the commits
// newer than each repository's checkpoint and hands them to the sink.
type Ingestor struct {
	repos   store.RepositoryStore
	sources map[string]host.CommitSource
	gateway *resilience.Gateway
	sink    Sink
	stats   Stats
	jobs    int
	logger  hclog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates an Ingestor. sources maps a hostname (e.g. "github.com") to the
// commit source serving it; repositories on unmapped hosts are skipped with a
// warning.
func New(repos store.RepositoryStore, sources map[string]host.CommitSource, gateway *resilience.Gateway, sink Sink, stats Stats, jobs int, logger hclog.Logger) *Ingestor {
	if jobs < 1 {
		jobs = 1
	}
	return &Ingestor{
		repos:    repos,
		sources:  sources,
		gateway:  gateway,
		sink:     sink,
		stats:    stats,
		jobs:     jobs,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// Run ingests on the given interval until the context is cancelled. The first
// round starts immediately.
func (in *Ingestor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		in.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce ingests every active repository, bounded by the configured job
// count. Repositories still being ingested from a previous round are skipped,
// which keeps checkpoint advancement strictly ordered per repository.
func (in *Ingestor) RunOnce(ctx context.Context) {
	sem := make(chan struct{}, in.jobs)
	var wg sync.WaitGroup

	for _, repo := range in.repos.List() {
		if !repo.Active {
			continue
		}
		if !in.claim(repo.URL) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(repo model.Repository) {
			defer wg.Done()
			defer func() { <-sem }()
			defer in.release(repo.URL)

			if err := in.ingestRepo(ctx, repo); err != nil {
				in.logger.Warn("ingestion round failed", "repo", repo.URL, "error", err)
			}
		}(repo)
	}
	wg.Wait()
}

func (in *Ingestor) claim(url string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.inflight[url] {
		return false
	}
	in.inflight[url] = true
	return true
}

func (in *Ingestor) release(url string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.inflight, url)
}

func (in *Ingestor) ingestRepo(ctx context.Context, repo model.Repository) error {
	source, ok := in.sources[repo.Host]
	if !ok {
		in.logger.Warn("no commit source for host", "host", repo.Host, "repo", repo.URL)
		return nil
	}

	commits, err := resilience.Call(ctx, in.gateway, "host:"+repo.Host, func(ctx context.Context) ([]model.Commit, error) {
		return source.ListCommits(ctx, repo, repo.Checkpoint)
	})
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		return nil
	}

	in.logger.Debug("ingesting commits", "repo", repo.URL, "count", len(commits))

	handled := 0
	for _, commit := range commits {
		if err := in.sink.HandleCommit(ctx, repo, commit); err != nil {
			in.recordHandled(handled)
			return err
		}
		// The checkpoint moves only after the sink has taken the commit, so
		// a crash between the two redelivers rather than skips.
		if err := in.repos.SetCheckpoint(repo.URL, commit.SHA); err != nil {
			in.recordHandled(handled)
			return err
		}
		handled++
	}
	in.recordHandled(handled)
	return nil
}

func (in *Ingestor) recordHandled(n int) {
	if in.stats != nil && n > 0 {
		in.stats.RecordCommits(n)
	}
}
