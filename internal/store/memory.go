package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

// MemoryRepositoryStore is an in-memory RepositoryStore.
type MemoryRepositoryStore struct {
	mu    sync.RWMutex
	repos map[string]model.Repository
}

func NewMemoryRepositoryStore() *MemoryRepositoryStore {
	return &MemoryRepositoryStore{repos: make(map[string]model.Repository)}
}

func (s *MemoryRepositoryStore) Add(repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[repo.URL]; ok {
		return errors.NewConflictError("repository", repo.URL)
	}
	s.repos[repo.URL] = repo
	return nil
}

func (s *MemoryRepositoryStore) Get(url string) (model.Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[url]
	return repo, ok
}

func (s *MemoryRepositoryStore) List() []model.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Repository, 0, len(s.repos))
	for _, repo := range s.repos {
		out = append(out, repo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (s *MemoryRepositoryStore) SetCheckpoint(url, commitSHA string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[url]
	if !ok {
		return errors.NewValidationError("repository", "not registered: "+url)
	}
	repo.Checkpoint = commitSHA
	s.repos[url] = repo
	return nil
}

func (s *MemoryRepositoryStore) SetActive(url string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[url]
	if !ok {
		return errors.NewValidationError("repository", "not registered: "+url)
	}
	repo.Active = active
	s.repos[url] = repo
	return nil
}

func (s *MemoryRepositoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.repos)
}

// MemoryFindingStore is an in-memory FindingStore. The active index maps a
// triple key to its single non-terminal finding.
type MemoryFindingStore struct {
	mu       sync.Mutex
	findings map[uuid.UUID]model.Finding
	active   map[string]uuid.UUID
}

func NewMemoryFindingStore() *MemoryFindingStore {
	return &MemoryFindingStore{
		findings: make(map[uuid.UUID]model.Finding),
		active:   make(map[string]uuid.UUID),
	}
}

func (s *MemoryFindingStore) CreateIfAbsent(f model.Finding) (model.Finding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.active[f.TripleKey()]; ok {
		return s.findings[id], false
	}
	s.findings[f.ID] = f
	if !f.Status.Terminal() {
		s.active[f.TripleKey()] = f.ID
	}
	return f, true
}

func (s *MemoryFindingStore) Get(id uuid.UUID) (model.Finding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.findings[id]
	return f, ok
}

func (s *MemoryFindingStore) Update(f model.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findings[f.ID]; !ok {
		return errors.NewValidationError("finding", "unknown id: "+f.ID.String())
	}
	f.UpdatedAt = time.Now().UTC()
	s.findings[f.ID] = f
	if f.Status.Terminal() {
		// The triple becomes free for future re-detection once the
		// lifecycle ends.
		delete(s.active, f.TripleKey())
	}
	return nil
}

func (s *MemoryFindingStore) ListByStatus(statuses ...model.FindingStatus) []model.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Finding
	for _, f := range s.findings {
		for _, status := range statuses {
			if f.Status == status {
				out = append(out, f)
				break
			}
		}
	}
	sortFindings(out)
	return out
}

func (s *MemoryFindingStore) List() []model.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Finding, 0, len(s.findings))
	for _, f := range s.findings {
		out = append(out, f)
	}
	sortFindings(out)
	return out
}

func sortFindings(fs []model.Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].CreatedAt.Equal(fs[j].CreatedAt) {
			return fs[i].ID.String() < fs[j].ID.String()
		}
		return fs[i].CreatedAt.Before(fs[j].CreatedAt)
	})
}

// MemorySubmissionStore is an in-memory SubmissionStore.
type MemorySubmissionStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]model.Submission
}

func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{subs: make(map[uuid.UUID]model.Submission)}
}

func (s *MemorySubmissionStore) Add(sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; ok {
		return errors.NewConflictError("submission", sub.ID.String())
	}
	s.subs[sub.ID] = sub
	return nil
}

func (s *MemorySubmissionStore) Get(id uuid.UUID) (model.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

func (s *MemorySubmissionStore) Update(sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.subs[sub.ID]
	if !ok {
		return errors.NewValidationError("submission", "unknown id: "+sub.ID.String())
	}
	if current.Status.Terminal() {
		// Terminal submissions are immutable; re-delivered updates are no-ops.
		return nil
	}
	s.subs[sub.ID] = sub
	return nil
}

func (s *MemorySubmissionStore) ListOpen() []model.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Submission
	for _, sub := range s.subs {
		if !sub.Status.Terminal() {
			out = append(out, sub)
		}
	}
	sortSubmissions(out)
	return out
}

func (s *MemorySubmissionStore) List() []model.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Submission, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sortSubmissions(out)
	return out
}

func sortSubmissions(subs []model.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID.String() < subs[j].ID.String()
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

// MemoryBountyStore is an in-memory BountyStore with (platform, issue) dedup.
type MemoryBountyStore struct {
	mu       sync.Mutex
	bounties map[uuid.UUID]model.Bounty
	byKey    map[string]uuid.UUID
}

func NewMemoryBountyStore() *MemoryBountyStore {
	return &MemoryBountyStore{
		bounties: make(map[uuid.UUID]model.Bounty),
		byKey:    make(map[string]uuid.UUID),
	}
}

func (s *MemoryBountyStore) Add(b model.Bounty) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[b.PlatformKey()]; ok {
		return false
	}
	s.bounties[b.ID] = b
	s.byKey[b.PlatformKey()] = b.ID
	return true
}

func (s *MemoryBountyStore) Get(id uuid.UUID) (model.Bounty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bounties[id]
	return b, ok
}

func (s *MemoryBountyStore) Update(b model.Bounty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bounties[b.ID]
	if !ok {
		return errors.NewValidationError("bounty", "unknown id: "+b.ID.String())
	}
	if current.Status.Terminal() {
		return nil
	}
	s.bounties[b.ID] = b
	return nil
}

func (s *MemoryBountyStore) OpenByRepository(url string) []model.Bounty {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bounty
	for _, b := range s.bounties {
		if b.RepositoryURL == url && (b.Status == model.BountyOpen || b.Status == model.BountyInProgress) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryBountyStore) List() []model.Bounty {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Bounty, 0, len(s.bounties))
	for _, b := range s.bounties {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
