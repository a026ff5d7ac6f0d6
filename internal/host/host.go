package host

import (
	"context"

	"github.com/patchwatch/patchwatch/internal/model"
)

// maxCommitsPerIngest bounds how far back a single ingestion run reaches,
// including the very first run of a repository with no checkpoint yet.
const maxCommitsPerIngest = 50

// CommitSource lists the commits of a repository newer than a checkpoint.
// Implementations perform raw transport only; callers go through the
// resilience gateway.
type CommitSource interface {
	// ListCommits returns commits newer than sinceSHA, oldest first, with
	// per-commit diff and touched files populated. An empty sinceSHA means
	// no checkpoint exists yet; implementations return a bounded recent
	// window in that case.
	ListCommits(ctx context.Context, repo model.Repository, sinceSHA string) ([]model.Commit, error)
}

// ChangeRequest is the body of a remediation change request.
type ChangeRequest struct {
	Title      string
	Body       string
	Branch     string
	BaseBranch string
}

// ChangeRef identifies an opened change request on the host.
type ChangeRef struct {
	ID  string
	URL string
}

// ChangeState is the host-side state of a change request.
type ChangeState string

const (
	ChangeOpen   ChangeState = "open"
	ChangeMerged ChangeState = "merged"
	ChangeClosed ChangeState = "closed"
)

// ChangeHost opens remediation change requests and reports their merge state.
type ChangeHost interface {
	OpenChangeRequest(ctx context.Context, repo model.Repository, req ChangeRequest) (ChangeRef, error)
	ChangeRequestState(ctx context.Context, repo model.Repository, id string) (ChangeState, error)
}
