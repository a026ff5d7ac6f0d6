package model

import (
	"time"

	"github.com/google/uuid"
)

// BountyStatus is a stage of the bounty claim state machine.
type BountyStatus string

const (
	BountyOpen       BountyStatus = "OPEN"
	BountyInProgress BountyStatus = "IN_PROGRESS"
	BountyClaimed    BountyStatus = "CLAIMED"
	BountyCompleted  BountyStatus = "COMPLETED"
	BountyFailed     BountyStatus = "FAILED"
	BountyExpired    BountyStatus = "EXPIRED"
)

var bountyTransitions = map[BountyStatus][]BountyStatus{
	BountyOpen:       {BountyInProgress, BountyExpired},
	BountyInProgress: {BountyClaimed, BountyFailed, BountyExpired},
	BountyClaimed:    {BountyCompleted, BountyFailed},
}

// Terminal reports whether the bounty status is final.
func (s BountyStatus) Terminal() bool {
	return s == BountyCompleted || s == BountyFailed || s == BountyExpired
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s BountyStatus) CanTransitionTo(next BountyStatus) bool {
	for _, allowed := range bountyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Bounty is a monetary reward tied to remediating a vulnerability, fed from a
// bounty platform and linked to a submission once one is in flight.
type Bounty struct {
	ID            uuid.UUID    `json:"id"`
	IssueID       string       `json:"issue_id"` // identifier on the platform
	Platform      string       `json:"platform"` // algora, polar
	RepositoryURL string       `json:"repository_url"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	Amount        float64      `json:"amount"`
	Currency      string       `json:"currency"`
	Status        BountyStatus `json:"status"`

	// VulnerabilityID is an explicit reference supplied by the platform,
	// used to disambiguate when a repository has several open bounties.
	VulnerabilityID string `json:"vulnerability_id,omitempty"`

	SubmissionID  *uuid.UUID `json:"submission_id,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PlatformKey identifies the bounty on its source platform for dedup.
func (b Bounty) PlatformKey() string {
	return b.Platform + "|" + b.IssueID
}
