package bounty

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

// Reconciler drives bounty claims from submission events. It is the only
// writer of bounty state; platform feeds only ever add new bounties.
type Reconciler struct {
	mu       sync.Mutex
	bounties store.BountyStore
	logger   hclog.Logger
}

// New creates a Reconciler.
func New(bounties store.BountyStore, logger hclog.Logger) *Reconciler {
	return &Reconciler{bounties: bounties, logger: logger}
}

// SubmissionLinked moves the matching open bounty to IN_PROGRESS. An
// ambiguous match is held for manual resolution, never guessed.
func (r *Reconciler) SubmissionLinked(sub model.Submission, f model.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.match(f.RepositoryURL, f.VulnerabilityID, model.BountyOpen)
	if err != nil {
		if errors.IsMatchAmbiguous(err) {
			r.logger.Warn("bounty match held for manual resolution", "repo", f.RepositoryURL, "error", err)
		}
		return
	}

	b.SubmissionID = &sub.ID
	if err := r.advance(b, model.BountyInProgress); err != nil {
		r.logger.Warn("bounty link failed", "bounty", b.ID, "error", err)
		return
	}
	r.logger.Info("bounty in progress", "bounty", b.ID, "submission", sub.ID)
}

// SubmissionMerged moves the bounty linked to the submission to CLAIMED. A
// merge arriving before the link event matches and links in one step.
func (r *Reconciler) SubmissionMerged(sub model.Submission, f model.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bySubmission(sub.ID)
	if !ok {
		var err error
		b, err = r.match(f.RepositoryURL, f.VulnerabilityID, model.BountyOpen)
		if err != nil {
			if errors.IsMatchAmbiguous(err) {
				r.logger.Warn("bounty match held for manual resolution", "repo", f.RepositoryURL, "error", err)
			}
			return
		}
		b.SubmissionID = &sub.ID
		if err := r.advance(b, model.BountyInProgress); err != nil {
			r.logger.Warn("bounty link failed", "bounty", b.ID, "error", err)
			return
		}
		b.Status = model.BountyInProgress
	}

	if b.Status == model.BountyClaimed {
		return
	}
	if err := r.advance(b, model.BountyClaimed); err != nil {
		r.logger.Warn("bounty claim failed", "bounty", b.ID, "error", err)
		return
	}
	r.logger.Info("bounty claimed", "bounty", b.ID, "submission", sub.ID)
}

// ConfirmPayout moves a claimed bounty to COMPLETED once the platform
// confirms payment.
func (r *Reconciler) ConfirmPayout(platform, issueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byPlatformKey(platform, issueID)
	if !ok {
		return errors.NewValidationError("bounty", "unknown platform issue: "+platform+"/"+issueID)
	}
	if b.Status == model.BountyCompleted {
		return nil
	}

	now := time.Now().UTC()
	b.CompletedAt = &now
	if err := r.advance(b, model.BountyCompleted); err != nil {
		return err
	}
	r.logger.Info("bounty payout confirmed", "bounty", b.ID, "amount", b.Amount, "currency", b.Currency)
	return nil
}

// MarkFailed records a platform rejection.
func (r *Reconciler) MarkFailed(id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bounties.Get(id)
	if !ok {
		return errors.NewValidationError("bounty", "unknown id: "+id.String())
	}
	if b.Status == model.BountyFailed {
		return nil
	}

	b.FailureReason = reason
	now := time.Now().UTC()
	b.CompletedAt = &now
	if err := r.advance(b, model.BountyFailed); err != nil {
		return err
	}
	r.logger.Warn("bounty failed", "bounty", b.ID, "reason", reason)
	return nil
}

// ExpireOverdue expires every open or in-progress bounty whose platform
// deadline has passed.
func (r *Reconciler) ExpireOverdue(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.bounties.List() {
		if b.Deadline == nil || b.Status.Terminal() || !b.Deadline.Before(now) {
			continue
		}
		if !b.Status.CanTransitionTo(model.BountyExpired) {
			continue
		}
		completed := now.UTC()
		b.CompletedAt = &completed
		if err := r.advance(b, model.BountyExpired); err != nil {
			r.logger.Warn("bounty expiry failed", "bounty", b.ID, "error", err)
			continue
		}
		r.logger.Info("bounty expired", "bounty", b.ID, "deadline", b.Deadline)
	}
}

// match finds the single bounty for a repository in the wanted status.
// Several candidates need an explicit vulnerability reference from the
// platform; without one the match is ambiguous.
func (r *Reconciler) match(repoURL, vulnerabilityID string, wanted model.BountyStatus) (model.Bounty, error) {
	var candidates []model.Bounty
	for _, b := range r.bounties.OpenByRepository(repoURL) {
		if b.Status == wanted {
			candidates = append(candidates, b)
		}
	}

	switch len(candidates) {
	case 0:
		return model.Bounty{}, errors.NewValidationError("bounty", "no open bounty for "+repoURL)
	case 1:
		return candidates[0], nil
	}

	for _, b := range candidates {
		if b.VulnerabilityID != "" && b.VulnerabilityID == vulnerabilityID {
			return b, nil
		}
	}
	return model.Bounty{}, &errors.MatchAmbiguousError{RepositoryURL: repoURL, Candidates: len(candidates)}
}

func (r *Reconciler) bySubmission(subID uuid.UUID) (model.Bounty, bool) {
	for _, b := range r.bounties.List() {
		if b.SubmissionID != nil && *b.SubmissionID == subID && !b.Status.Terminal() {
			return b, true
		}
	}
	return model.Bounty{}, false
}

func (r *Reconciler) byPlatformKey(platform, issueID string) (model.Bounty, bool) {
	for _, b := range r.bounties.List() {
		if b.Platform == platform && b.IssueID == issueID {
			return b, true
		}
	}
	return model.Bounty{}, false
}

func (r *Reconciler) advance(b model.Bounty, next model.BountyStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return errors.NewConflictError("bounty transition", string(b.Status)+" -> "+string(next))
	}
	b.Status = next
	return r.bounties.Update(b)
}
