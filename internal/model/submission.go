package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus mirrors the merge outcome of a change request on the host.
type SubmissionStatus string

const (
	SubmissionOpen   SubmissionStatus = "OPEN"
	SubmissionMerged SubmissionStatus = "MERGED"
	SubmissionClosed SubmissionStatus = "CLOSED" // closed without merging
)

// Terminal reports whether the submission reached a final merge outcome.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionMerged || s == SubmissionClosed
}

// Submission is a remediation change request opened against the repository
// host, tracked until its merge outcome is final.
type Submission struct {
	ID            uuid.UUID        `json:"id"`
	HostID        string           `json:"host_id"` // change request identifier on the host
	URL           string           `json:"url,omitempty"`
	FindingID     uuid.UUID        `json:"finding_id"`
	RepositoryURL string           `json:"repository_url"`
	Status        SubmissionStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}
