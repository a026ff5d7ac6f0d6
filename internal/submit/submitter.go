package submit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/host"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

const (
	branchPrefix      = "patchwatch/fix"
	defaultBaseBranch = "main"
)

// Submitter opens remediation change requests on the repository host and
// reports their merge state back to the lifecycle engine.
type Submitter struct {
	hosts   map[string]host.ChangeHost
	repos   store.RepositoryStore
	catalog *catalog.Catalog
	gateway *resilience.Gateway
	logger  hclog.Logger
}

// New creates a Submitter. hosts maps a hostname to the change host serving it.
func New(hosts map[string]host.ChangeHost, repos store.RepositoryStore, cat *catalog.Catalog,
	gateway *resilience.Gateway, logger hclog.Logger) *Submitter {
	return &Submitter{hosts: hosts, repos: repos, catalog: cat, gateway: gateway, logger: logger}
}

func (s *Submitter) hostFor(repoURL string) (host.ChangeHost, model.Repository, error) {
	repo, ok := s.repos.Get(repoURL)
	if !ok {
		return nil, model.Repository{}, errors.NewValidationError("repository", "not registered: "+repoURL)
	}
	h, ok := s.hosts[repo.Host]
	if !ok {
		return nil, model.Repository{}, errors.NewValidationError("host", "no change host configured for "+repo.Host)
	}
	return h, repo, nil
}

// Submit opens a change request built from the finding's patch and records a
// Submission for it.
func (s *Submitter) Submit(ctx context.Context, f model.Finding) (model.Submission, error) {
	h, repo, err := s.hostFor(f.RepositoryURL)
	if err != nil {
		return model.Submission{}, err
	}

	req := host.ChangeRequest{
		Title:      s.title(f),
		Body:       s.body(f),
		Branch:     branchName(f),
		BaseBranch: defaultBaseBranch,
	}

	ref, err := resilience.Call(ctx, s.gateway, "host:"+repo.Host, func(callCtx context.Context) (host.ChangeRef, error) {
		return h.OpenChangeRequest(callCtx, repo, req)
	})
	if err != nil {
		return model.Submission{}, err
	}

	s.logger.Info("change request opened", "repo", repo.URL, "finding", f.ID, "host_id", ref.ID)
	return model.Submission{
		ID:            uuid.New(),
		HostID:        ref.ID,
		URL:           ref.URL,
		FindingID:     f.ID,
		RepositoryURL: f.RepositoryURL,
		Status:        model.SubmissionOpen,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CheckStatus reports the current merge state of a submission.
func (s *Submitter) CheckStatus(ctx context.Context, sub model.Submission) (model.SubmissionStatus, error) {
	h, repo, err := s.hostFor(sub.RepositoryURL)
	if err != nil {
		return "", err
	}

	state, err := resilience.Call(ctx, s.gateway, "host:"+repo.Host, func(callCtx context.Context) (host.ChangeState, error) {
		return h.ChangeRequestState(callCtx, repo, sub.HostID)
	})
	if err != nil {
		return "", err
	}

	switch state {
	case host.ChangeMerged:
		return model.SubmissionMerged, nil
	case host.ChangeClosed:
		return model.SubmissionClosed, nil
	default:
		return model.SubmissionOpen, nil
	}
}

func (s *Submitter) title(f model.Finding) string {
	if vuln, ok := s.catalog.Get(f.VulnerabilityID); ok && vuln.Summary != "" {
		return fmt.Sprintf("fix: %s (%s)", vuln.Summary, f.VulnerabilityID)
	}
	return fmt.Sprintf("fix: remediate %s", f.VulnerabilityID)
}

func (s *Submitter) body(f model.Finding) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Automated remediation for %s introduced by commit %s.\n\n", f.VulnerabilityID, f.CommitID)
	if vuln, ok := s.catalog.Get(f.VulnerabilityID); ok && vuln.Summary != "" {
		fmt.Fprintf(&sb, "%s\n\n", vuln.Summary)
	}

	if len(f.AffectedFiles) > 0 {
		sb.WriteString("Affected files:\n")
		for _, file := range f.AffectedFiles {
			fmt.Fprintf(&sb, "- %s\n", file)
		}
		sb.WriteString("\n")
	}

	if f.Patch != "" {
		fmt.Fprintf(&sb, "Proposed change:\n```diff\n%s\n```\n\n", strings.TrimSpace(f.Patch))
	}
	if f.VerificationNotes != "" {
		fmt.Fprintf(&sb, "Verification: %s\n", f.VerificationNotes)
	}
	if f.FixConfidence != nil {
		fmt.Fprintf(&sb, "Fix confidence: %.2f\n", *f.FixConfidence)
	}
	return sb.String()
}

func branchName(f model.Finding) string {
	sha := f.CommitID
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return fmt.Sprintf("%s-%s-%s", branchPrefix, strings.ToLower(f.VulnerabilityID), sha)
}
