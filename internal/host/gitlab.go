package host

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/xanzy/go-gitlab"

	"github.com/patchwatch/patchwatch/internal/model"
)

// GitlabClient implements CommitSource and ChangeHost against the GitLab API.
type GitlabClient struct {
	client *gitlab.Client
	logger hclog.Logger
}

// NewGitlabClient builds a GitLab host client. baseURL may be empty for
// gitlab.com or point at a self-hosted instance.
func NewGitlabClient(baseURL, token string, logger hclog.Logger) (*GitlabClient, error) {
	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitlabClient{client: client, logger: logger}, nil
}

func (g *GitlabClient) projectID(repo model.Repository) string {
	return fmt.Sprintf("%s/%s", repo.Namespace, repo.Name)
}

// ListCommits returns commits newer than sinceSHA, oldest first.
func (g *GitlabClient) ListCommits(ctx context.Context, repo model.Repository, sinceSHA string) ([]model.Commit, error) {
	g.logger.Debug("listing commits", "repo", repo.URL, "since", sinceSHA)

	pid := g.projectID(repo)
	var newer []*gitlab.Commit
	opt := &gitlab.ListCommitsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}

listing:
	for {
		commits, resp, err := g.client.Commits.ListCommits(pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s: %w", repo.URL, err)
		}
		for _, c := range commits {
			if sinceSHA != "" && c.ID == sinceSHA {
				break listing
			}
			newer = append(newer, c)
			if len(newer) >= maxCommitsPerIngest {
				break listing
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	out := make([]model.Commit, 0, len(newer))
	for i := len(newer) - 1; i >= 0; i-- {
		commit, err := g.commitDetails(ctx, pid, newer[i])
		if err != nil {
			return nil, err
		}
		out = append(out, commit)
	}
	return out, nil
}

func (g *GitlabClient) commitDetails(ctx context.Context, pid string, c *gitlab.Commit) (model.Commit, error) {
	commit := model.Commit{
		SHA:     c.ID,
		Message: c.Message,
		Author:  c.AuthorName,
	}
	if c.CommittedDate != nil {
		commit.Timestamp = *c.CommittedDate
	}

	diffs, _, err := g.client.Commits.GetCommitDiff(pid, c.ID, &gitlab.GetCommitDiffOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}, gitlab.WithContext(ctx))
	if err != nil {
		return model.Commit{}, fmt.Errorf("fetching diff for %s: %w", c.ID, err)
	}
	for _, d := range diffs {
		commit.Files = append(commit.Files, d.NewPath)
		if d.Diff != "" {
			commit.Diff += fmt.Sprintf("--- %s\n%s\n", d.NewPath, d.Diff)
		}
	}
	return commit, nil
}

// OpenChangeRequest opens a merge request with the remediation.
func (g *GitlabClient) OpenChangeRequest(ctx context.Context, repo model.Repository, req ChangeRequest) (ChangeRef, error) {
	mr, _, err := g.client.MergeRequests.CreateMergeRequest(g.projectID(repo), &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.String(req.Title),
		Description:  gitlab.String(req.Body),
		SourceBranch: gitlab.String(req.Branch),
		TargetBranch: gitlab.String(req.BaseBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return ChangeRef{}, fmt.Errorf("creating merge request for %s: %w", repo.URL, err)
	}

	g.logger.Info("merge request created", "repo", repo.URL, "iid", mr.IID)
	return ChangeRef{
		ID:  strconv.Itoa(mr.IID),
		URL: mr.WebURL,
	}, nil
}

// ChangeRequestState reports the merge state of a merge request.
func (g *GitlabClient) ChangeRequestState(ctx context.Context, repo model.Repository, id string) (ChangeState, error) {
	iid, err := strconv.Atoi(id)
	if err != nil {
		return "", fmt.Errorf("invalid merge request id %q: %w", id, err)
	}

	mr, _, err := g.client.MergeRequests.GetMergeRequest(g.projectID(repo), iid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching merge request %s: %w", id, err)
	}

	switch mr.State {
	case "merged":
		return ChangeMerged, nil
	case "closed":
		return ChangeClosed, nil
	default:
		return ChangeOpen, nil
	}
}
