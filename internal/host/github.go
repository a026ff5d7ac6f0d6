package host

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-github/v47/github"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"

	"github.com/patchwatch/patchwatch/internal/model"
)

// GithubClient implements CommitSource and ChangeHost against the GitHub API.
type GithubClient struct {
	client *github.Client
	logger hclog.Logger
}

// NewGithubClient builds a GitHub host client. An empty token yields an
// unauthenticated client, good enough for public repositories.
func NewGithubClient(ctx context.Context, token string, logger hclog.Logger) *GithubClient {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		client = github.NewClient(nil)
	}
	return &GithubClient{client: client, logger: logger}
}

// ListCommits returns commits newer than sinceSHA, oldest first.
func (g *GithubClient) ListCommits(ctx context.Context, repo model.Repository, sinceSHA string) ([]model.Commit, error) {
	g.logger.Debug("listing commits", "repo", repo.URL, "since", sinceSHA)

	var newer []*github.RepositoryCommit
	opt := &github.CommitsListOptions{ListOptions: github.ListOptions{PerPage: 100}}

listing:
	for {
		commits, resp, err := g.client.Repositories.ListCommits(ctx, repo.Namespace, repo.Name, opt)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s: %w", repo.URL, err)
		}
		for _, c := range commits {
			if sinceSHA != "" && c.GetSHA() == sinceSHA {
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

	// The API lists newest first; the pipeline consumes oldest first.
	out := make([]model.Commit, 0, len(newer))
	for i := len(newer) - 1; i >= 0; i-- {
		commit, err := g.commitDetails(ctx, repo, newer[i].GetSHA())
		if err != nil {
			return nil, err
		}
		out = append(out, commit)
	}
	return out, nil
}

func (g *GithubClient) commitDetails(ctx context.Context, repo model.Repository, sha string) (model.Commit, error) {
	full, _, err := g.client.Repositories.GetCommit(ctx, repo.Namespace, repo.Name, sha, nil)
	if err != nil {
		return model.Commit{}, fmt.Errorf("fetching commit %s: %w", sha, err)
	}

	commit := model.Commit{
		SHA:     full.GetSHA(),
		Message: full.GetCommit().GetMessage(),
	}
	if author := full.GetCommit().GetAuthor(); author != nil {
		commit.Author = author.GetName()
		commit.Timestamp = author.GetDate()
	}
	for _, f := range full.Files {
		commit.Files = append(commit.Files, f.GetFilename())
		if f.GetPatch() != "" {
			commit.Diff += fmt.Sprintf("--- %s\n%s\n", f.GetFilename(), f.GetPatch())
		}
	}
	return commit, nil
}

// OpenChangeRequest opens a pull request with the remediation.
func (g *GithubClient) OpenChangeRequest(ctx context.Context, repo model.Repository, req ChangeRequest) (ChangeRef, error) {
	pr, _, err := g.client.PullRequests.Create(ctx, repo.Namespace, repo.Name, &github.NewPullRequest{
		Title: github.String(req.Title),
		Body:  github.String(req.Body),
		Head:  github.String(req.Branch),
		Base:  github.String(req.BaseBranch),
	})
	if err != nil {
		return ChangeRef{}, fmt.Errorf("creating pull request for %s: %w", repo.URL, err)
	}

	g.logger.Info("pull request created", "repo", repo.URL, "number", pr.GetNumber())
	return ChangeRef{
		ID:  strconv.Itoa(pr.GetNumber()),
		URL: pr.GetHTMLURL(),
	}, nil
}

// ChangeRequestState reports the merge state of a pull request.
func (g *GithubClient) ChangeRequestState(ctx context.Context, repo model.Repository, id string) (ChangeState, error) {
	number, err := strconv.Atoi(id)
	if err != nil {
		return "", fmt.Errorf("invalid pull request id %q: %w", id, err)
	}

	pr, _, err := g.client.PullRequests.Get(ctx, repo.Namespace, repo.Name, number)
	if err != nil {
		return "", fmt.Errorf("fetching pull request %s: %w", id, err)
	}

	switch {
	case pr.GetMerged():
		return ChangeMerged, nil
	case pr.GetState() == "closed":
		return ChangeClosed, nil
	default:
		return ChangeOpen, nil
	}
}
