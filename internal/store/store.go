package store

import (
	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/model"
)

// The stores are the seam to durable storage, which is an external
// collaborator. The in-memory implementations in this package are safe for
// concurrent use and carry the uniqueness invariants the pipeline relies on.

// RepositoryStore tracks monitored repositories and their ingestion checkpoints.
type RepositoryStore interface {
	// Add registers a repository; a duplicate URL yields a ConflictError.
	Add(repo model.Repository) error
	Get(url string) (model.Repository, bool)
	List() []model.Repository
	// SetCheckpoint records the last processed commit for a repository.
	SetCheckpoint(url, commitSHA string) error
	// SetActive flips the soft deregistration state.
	SetActive(url string, active bool) error
	Count() int
}

// FindingStore owns the finding arena. CreateIfAbsent enforces the invariant
// that at most one non-terminal finding exists per triple.
type FindingStore interface {
	// CreateIfAbsent stores f unless a non-terminal finding for the same
	// triple already exists; it returns the authoritative finding and
	// whether f was actually created.
	CreateIfAbsent(f model.Finding) (model.Finding, bool)
	Get(id uuid.UUID) (model.Finding, bool)
	// Update replaces the stored finding atomically.
	Update(f model.Finding) error
	ListByStatus(statuses ...model.FindingStatus) []model.Finding
	List() []model.Finding
}

// SubmissionStore tracks remediation change requests.
type SubmissionStore interface {
	Add(sub model.Submission) error
	Get(id uuid.UUID) (model.Submission, bool)
	Update(sub model.Submission) error
	ListOpen() []model.Submission
	List() []model.Submission
}

// BountyStore tracks bounties fed from the platforms.
type BountyStore interface {
	// Add stores b unless a bounty with the same (platform, issue id)
	// already exists; it reports whether b was created.
	Add(b model.Bounty) bool
	Get(id uuid.UUID) (model.Bounty, bool)
	Update(b model.Bounty) error
	OpenByRepository(url string) []model.Bounty
	List() []model.Bounty
}

// Stores bundles the four stores the pipeline needs.
type Stores struct {
	Repositories RepositoryStore
	Findings     FindingStore
	Submissions  SubmissionStore
	Bounties     BountyStore
}

// NewMemoryStores builds an in-memory store set.
func NewMemoryStores() *Stores {
	return &Stores{
		Repositories: NewMemoryRepositoryStore(),
		Findings:     NewMemoryFindingStore(),
		Submissions:  NewMemorySubmissionStore(),
		Bounties:     NewMemoryBountyStore(),
	}
}
