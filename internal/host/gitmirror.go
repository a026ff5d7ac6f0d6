package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/model"
)

// GitMirror is a CommitSource backed by local clones. It serves hosts without
// an API client and keeps diff extraction off the hosting provider's quota.
type GitMirror struct {
	dir    string
	logger hclog.Logger
}

// NewGitMirror creates a mirror rooted at dir. Clones are laid out as
// dir/host/namespace/name.
func NewGitMirror(dir string, logger hclog.Logger) *GitMirror {
	return &GitMirror{dir: dir, logger: logger}
}

func (m *GitMirror) clonePath(repo model.Repository) string {
	return filepath.Join(m.dir, repo.Host, repo.Namespace, repo.Name)
}

// ensure clones the repository on first use and pulls on every later one.
func (m *GitMirror) ensure(ctx context.Context, repo model.Repository) (*git.Repository, error) {
	path := m.clonePath(repo)

	if _, err := os.Stat(filepath.Join(path, ".git")); os.IsNotExist(err) {
		m.logger.Info("cloning repository", "url", repo.URL, "path", path)
		cloned, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
			URL:          repo.URL,
			SingleBranch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("cloning %s: %w", repo.URL, err)
		}
		return cloned, nil
	}

	opened, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening clone of %s: %w", repo.URL, err)
	}

	wt, err := opened.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree of %s: %w", repo.URL, err)
	}
	if err := wt.PullContext(ctx, &git.PullOptions{SingleBranch: true}); err != nil &&
		!errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("pulling %s: %w", repo.URL, err)
	}
	return opened, nil
}

// ListCommits returns commits newer than sinceSHA, oldest first.
func (m *GitMirror) ListCommits(ctx context.Context, repo model.Repository, sinceSHA string) ([]model.Commit, error) {
	gitRepo, err := m.ensure(ctx, repo)
	if err != nil {
		return nil, err
	}

	head, err := gitRepo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD of %s: %w", repo.URL, err)
	}

	iter, err := gitRepo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walking log of %s: %w", repo.URL, err)
	}
	defer iter.Close()

	var newer []*object.Commit
	for {
		c, err := iter.Next()
		if err != nil {
			break
		}
		if sinceSHA != "" && c.Hash.String() == sinceSHA {
			break
		}
		newer = append(newer, c)
		if len(newer) >= maxCommitsPerIngest {
			break
		}
	}

	out := make([]model.Commit, 0, len(newer))
	for i := len(newer) - 1; i >= 0; i-- {
		commit, err := m.commitDetails(newer[i])
		if err != nil {
			return nil, err
		}
		out = append(out, commit)
	}
	return out, nil
}

func (m *GitMirror) commitDetails(c *object.Commit) (model.Commit, error) {
	commit := model.Commit{
		SHA:       c.Hash.String(),
		Message:   strings.TrimSpace(c.Message),
		Author:    c.Author.Name,
		Timestamp: c.Author.When.UTC(),
	}

	// Root commits have no parent to diff against; they enter the pipeline
	// without a patch.
	if c.NumParents() == 0 {
		return commit, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return model.Commit{}, fmt.Errorf("parent of %s: %w", commit.SHA, err)
	}
	patch, err := parent.Patch(c)
	if err != nil {
		return model.Commit{}, fmt.Errorf("diffing %s: %w", commit.SHA, err)
	}

	commit.Diff = patch.String()
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		switch {
		case to != nil:
			commit.Files = append(commit.Files, to.Path())
		case from != nil:
			commit.Files = append(commit.Files, from.Path())
		}
	}
	return commit, nil
}
