package view

import (
	"time"

	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/stats"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

// View is the read surface consumed by the presentation collaborator. Shapes
// here are compatibility contracts; pipeline internals stay out of them.
type View struct {
	stores    *store.Stores
	catalog   *catalog.Catalog
	collector *stats.Collector
	pipeline  config.Pipeline
}

// New creates a View.
func New(stores *store.Stores, cat *catalog.Catalog, collector *stats.Collector, pipeline config.Pipeline) *View {
	return &View{stores: stores, catalog: cat, collector: collector, pipeline: pipeline}
}

// Counts are the aggregate numbers shown on the dashboard.
type Counts struct {
	RepositoriesWatched    int `json:"repositories_watched"`
	VulnerabilitiesTracked int `json:"vulnerabilities_tracked"`
	CommitsProcessedToday  int `json:"commits_processed_today"`
}

// FindingView is the externally exposed shape of a finding.
type FindingView struct {
	ID                  uuid.UUID           `json:"id"`
	RepositoryURL       string              `json:"repository_url"`
	CommitID            string              `json:"commit_id"`
	VulnerabilityID     string              `json:"vulnerability_id"`
	Status              model.FindingStatus `json:"status"`
	PresenceConfidence  *float64            `json:"presence_confidence,omitempty"`
	FixConfidence       *float64            `json:"fix_confidence,omitempty"`
	RequiresHumanReview bool                `json:"requires_human_review"`
	AffectedFiles       []string            `json:"affected_files,omitempty"`
	SubmissionID        *uuid.UUID          `json:"submission_id,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
}

// SubmissionView joins a submission with its finding's vulnerability and
// confidence scores.
type SubmissionView struct {
	ID                 uuid.UUID              `json:"id"`
	HostID             string                 `json:"host_id"`
	URL                string                 `json:"url,omitempty"`
	RepositoryURL      string                 `json:"repository_url"`
	Status             model.SubmissionStatus `json:"status"`
	VulnerabilityID    string                 `json:"vulnerability_id"`
	PresenceConfidence *float64               `json:"presence_confidence,omitempty"`
	FixConfidence      *float64               `json:"fix_confidence,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
}

func toFindingView(f model.Finding) FindingView {
	v := FindingView{
		ID:                  f.ID,
		RepositoryURL:       f.RepositoryURL,
		CommitID:            f.CommitID,
		VulnerabilityID:     f.VulnerabilityID,
		Status:              f.Status,
		PresenceConfidence:  f.PresenceConfidence,
		FixConfidence:       f.FixConfidence,
		RequiresHumanReview: f.RequiresHumanReview,
		AffectedFiles:       f.AffectedFiles,
		SubmissionID:        f.SubmissionID,
		CreatedAt:           f.CreatedAt,
	}
	if f.Status.Terminal() {
		completed := f.UpdatedAt
		v.CompletedAt = &completed
	}
	return v
}

// Counts returns the dashboard aggregates.
func (v *View) Counts() Counts {
	watched := 0
	for _, repo := range v.stores.Repositories.List() {
		if repo.Active {
			watched++
		}
	}
	return Counts{
		RepositoriesWatched:    watched,
		VulnerabilitiesTracked: v.catalog.Count(),
		CommitsProcessedToday:  v.collector.CommitsToday(),
	}
}

// NeedingReview returns the findings waiting on a reviewer decision.
func (v *View) NeedingReview() []FindingView {
	var out []FindingView
	for _, f := range v.stores.Findings.ListByStatus(model.StatusHumanReview) {
		out = append(out, toFindingView(f))
	}
	return out
}

// LowConfidenceFixes returns non-rejected findings whose fix confidence sits
// below the auto-approve threshold.
func (v *View) LowConfidenceFixes() []FindingView {
	threshold := v.pipeline.AutoApprove()
	var out []FindingView
	for _, f := range v.stores.Findings.List() {
		if f.Status == model.StatusRejected || f.FixConfidence == nil {
			continue
		}
		if *f.FixConfidence < threshold {
			out = append(out, toFindingView(f))
		}
	}
	return out
}

// ClaimedBounties returns bounties in CLAIMED or later.
func (v *View) ClaimedBounties() []model.Bounty {
	var out []model.Bounty
	for _, b := range v.stores.Bounties.List() {
		switch b.Status {
		case model.BountyClaimed, model.BountyCompleted:
			out = append(out, b)
		}
	}
	return out
}

// SubmissionHistory returns every submission joined with its finding's
// vulnerability identifier and confidence scores.
func (v *View) SubmissionHistory() []SubmissionView {
	var out []SubmissionView
	for _, sub := range v.stores.Submissions.List() {
		sv := SubmissionView{
			ID:            sub.ID,
			HostID:        sub.HostID,
			URL:           sub.URL,
			RepositoryURL: sub.RepositoryURL,
			Status:        sub.Status,
			CreatedAt:     sub.CreatedAt,
			CompletedAt:   sub.CompletedAt,
		}
		if f, ok := v.stores.Findings.Get(sub.FindingID); ok {
			sv.VulnerabilityID = f.VulnerabilityID
			sv.PresenceConfidence = f.PresenceConfidence
			sv.FixConfidence = f.FixConfidence
		}
		out = append(out, sv)
	}
	return out
}

// Repositories returns every registered repository.
func (v *View) Repositories() []model.Repository {
	return v.stores.Repositories.List()
}

// CatalogEntries returns catalog entries relevant to the watched
// repositories' languages, in severity-then-recency order.
func (v *View) CatalogEntries() []model.Vulnerability {
	languages := make(map[string]bool)
	for _, repo := range v.stores.Repositories.List() {
		if repo.Active {
			languages[repo.Language] = true
		}
	}

	var out []model.Vulnerability
	for _, vuln := range v.catalog.Snapshot() {
		for language := range languages {
			if vuln.AffectsLanguage(language) {
				out = append(out, vuln)
				break
			}
		}
	}
	return out
}
