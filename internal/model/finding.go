package model

import (
	"time"

	"github.com/google/uuid"
)

// FindingStatus is a stage in the finding lifecycle state machine.
type FindingStatus string

const (
	StatusDetected     FindingStatus = "DETECTED"
	StatusVerified     FindingStatus = "VERIFIED"
	StatusFixGenerated FindingStatus = "FIX_GENERATED"
	StatusFixConfirmed FindingStatus = "FIX_CONFIRMED"
	StatusHumanReview  FindingStatus = "HUMAN_REVIEW"
	StatusConfirmed    FindingStatus = "CONFIRMED"
	StatusPRCreated    FindingStatus = "PR_CREATED"
	StatusPRMerged     FindingStatus = "PR_MERGED"
	StatusRejected     FindingStatus = "REJECTED"
)

// validTransitions is the lifecycle state machine. A transition not listed
// here is a bug, not a retry.
var validTransitions = map[FindingStatus][]FindingStatus{
	StatusDetected:     {StatusVerified, StatusRejected},
	StatusVerified:     {StatusFixGenerated, StatusRejected},
	StatusFixGenerated: {StatusFixConfirmed, StatusRejected},
	StatusFixConfirmed: {StatusHumanReview, StatusConfirmed, StatusRejected},
	StatusHumanReview:  {StatusConfirmed, StatusRejected},
	StatusConfirmed:    {StatusPRCreated},
	StatusPRCreated:    {StatusPRMerged},
}

// Terminal reports whether the status ends the lifecycle. Terminal findings
// are kept for audit, never deleted.
func (s FindingStatus) Terminal() bool {
	return s == StatusPRMerged || s == StatusRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s FindingStatus) CanTransitionTo(next FindingStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Finding tracks one (repository, commit, vulnerability) triple through the
// lifecycle. At most one non-terminal finding exists per triple.
type Finding struct {
	ID              uuid.UUID     `json:"id"`
	RepositoryURL   string        `json:"repository_url"`
	CommitID        string        `json:"commit_id"`
	VulnerabilityID string        `json:"vulnerability_id"`
	Status          FindingStatus `json:"status"`

	PresenceConfidence *float64 `json:"presence_confidence,omitempty"` // in [0,1] or absent
	FixConfidence      *float64 `json:"fix_confidence,omitempty"`      // in [0,1] or absent

	RequiresHumanReview bool     `json:"requires_human_review"`
	AffectedFiles       []string `json:"affected_files,omitempty"`

	CommitDiff        string `json:"commit_diff,omitempty"`
	Patch             string `json:"patch,omitempty"`
	VerificationNotes string `json:"verification_notes,omitempty"`
	FixAttempts       int    `json:"fix_attempts"`

	SubmissionID *uuid.UUID `json:"submission_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFinding creates a DETECTED finding for a triple.
func NewFinding(repositoryURL, commitID, vulnerabilityID string) Finding {
	now := time.Now().UTC()
	return Finding{
		ID:              uuid.New(),
		RepositoryURL:   repositoryURL,
		CommitID:        commitID,
		VulnerabilityID: vulnerabilityID,
		Status:          StatusDetected,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TripleKey identifies the (repository, commit, vulnerability) triple.
func (f Finding) TripleKey() string {
	return f.RepositoryURL + "|" + f.CommitID + "|" + f.VulnerabilityID
}

// ValidConfidence reports whether c is a usable confidence score.
func ValidConfidence(c float64) bool {
	return c >= 0 && c <= 1
}

// ClampConfidence forces c into [0,1]. Analysis backends occasionally return
// scores slightly outside the range; stored confidences never do.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
