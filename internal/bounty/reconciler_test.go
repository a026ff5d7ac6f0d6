package bounty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

const repoURL = "https://github.com/acme/widget"

func openBounty(issueID, vulnID string) model.Bounty {
	return model.Bounty{
		ID:              uuid.New(),
		IssueID:         issueID,
		Platform:        "algora",
		RepositoryURL:   repoURL,
		Title:           "Fix the injection",
		Amount:          500,
		Currency:        "USD",
		Status:          model.BountyOpen,
		VulnerabilityID: vulnID,
		CreatedAt:       time.Now().UTC(),
	}
}

func submission() model.Submission {
	return model.Submission{
		ID:            uuid.New(),
		HostID:        "17",
		FindingID:     uuid.New(),
		RepositoryURL: repoURL,
		Status:        model.SubmissionOpen,
		CreatedAt:     time.Now().UTC(),
	}
}

func finding(vulnID string) model.Finding {
	return model.Finding{
		ID:              uuid.New(),
		RepositoryURL:   repoURL,
		CommitID:        "abc123",
		VulnerabilityID: vulnID,
		Status:          model.StatusPRCreated,
	}
}

func TestLinkedThenMergedThenPaid(t *testing.T) {
	bounties := store.NewMemoryBountyStore()
	b := openBounty("B-1", "")
	require.True(t, bounties.Add(b))

	r := New(bounties, hclog.NewNullLogger())
	sub := submission()
	f := finding("CVE-2024-0001")

	r.SubmissionLinked(sub, f)
	got, _ := bounties.Get(b.ID)
	assert.Equal(t, model.BountyInProgress, got.Status)
	require.NotNil(t, got.SubmissionID)
	assert.Equal(t, sub.ID, *got.SubmissionID)

	r.SubmissionMerged(sub, f)
	got, _ = bounties.Get(b.ID)
	assert.Equal(t, model.BountyClaimed, got.Status)

	require.NoError(t, r.ConfirmPayout("algora", "B-1"))
	got, _ = bounties.Get(b.ID)
	assert.Equal(t, model.BountyCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestMergeBeforeLinkClaimsInOneStep(t *testing.T) {
	bounties := store.NewMemoryBountyStore()
	b := openBounty("B-1", "")
	require.True(t, bounties.Add(b))

	r := New(bounties, hclog.NewNullLogger())
	r.SubmissionMerged(submission(), finding("CVE-2024-0001"))

	got, _ := bounties.Get(b.ID)
	assert.Equal(t, model.BountyClaimed, got.Status)
}

func TestAmbiguousMatchIsHeldNotGuessed(t *testing.T) {
	bounties := store.NewMemoryBountyStore()
	first := openBounty("B-1", "")
	second := openBounty("B-2", "")
	require.True(t, bounties.Add(first))
	require.True(t, bounties.Add(second))

	r := New(bounties, hclog.NewNullLogger())
	r.SubmissionLinked(submission(), finding("CVE-2024-0001"))

	for _, b := range bounties.List() {
		assert.Equal(t, model.BountyOpen, b.Status, "neither candidate is guessed at")
	}
}

func TestExplicitReferenceDisambiguates(t *testing.T) {
	bounties := store.NewMemoryBountyStore()
	first := openBounty("B-1", "CVE-2024-0001")
	second := openBounty("B-2", "CVE-2024-0002")
	require.True(t, bounties.Add(first))
	require.True(t, bounties.Add(second))

	r := New(bounties, hclog.NewNullLogger())
	r.SubmissionLinked(submission(), finding("CVE-2024-0002"))

	got, _ := bounties.Get(second.ID)
	assert.Equal(t, model.BountyInProgress, got.Status)
	got, _ = bounties.Get(first.ID)
	assert.Equal(t, model.BountyOpen, got.Status)
}

func TestMarkFailed(t *testing.T) {
	bounties := store.NewMemoryBountyStore()
	b := openBounty("B-1", "")
	require.True(t, bounties.Add(b))

	r := New(bounties, hclog.NewNullLogger())
	sub := submission()
	r.SubmissionLinked(sub, finding("CVE-2024-0001"))

	require.NoError(t, r.MarkFailed(b.ID, "platform rejected the claim"))
	got, _ := bounties.Get(b.ID)
	assert.Equal(t, model.BountyFailed, got.Status)
	assert.Equal(t, "platform rejected the claim", got.FailureReason)

	// Terminal bounties stay terminal.
	r.SubmissionMerged(sub, finding("CVE-2024-0001"))
	got, _ = bounties.Get(b.ID)
	assert.Equal(t, model.BountyFailed, got.Status)
}

func TestExpireOverdue(t *testing.T) {
	bounties := store.NewMemoryBountyStore()
	deadline := time.Now().Add(-time.Hour)
	overdue := openBounty("B-1", "")
	overdue.Deadline = &deadline
	future := time.Now().Add(time.Hour)
	live := openBounty("B-2", "")
	live.Deadline = &future
	require.True(t, bounties.Add(overdue))
	require.True(t, bounties.Add(live))

	r := New(bounties, hclog.NewNullLogger())
	r.ExpireOverdue(time.Now())

	got, _ := bounties.Get(overdue.ID)
	assert.Equal(t, model.BountyExpired, got.Status)
	got, _ = bounties.Get(live.ID)
	assert.Equal(t, model.BountyOpen, got.Status)
}

type fakePlatform struct {
	name    string
	feed    []model.Bounty
	paidIDs map[string]bool
}

func (p *fakePlatform) Name() string { return p.name }

func (p *fakePlatform) FetchBounties(_ context.Context) ([]model.Bounty, error) {
	return p.feed, nil
}

func (p *fakePlatform) PayoutConfirmed(_ context.Context, issueID string) (bool, error) {
	return p.paidIDs[issueID], nil
}

func newTestGateway() *resilience.Gateway {
	return resilience.New(map[string]config.Service{
		"bounty:algora": {RatePerSecond: 1000, Burst: 1000, FailureThreshold: 100, Cooldown: time.Second, CallTimeout: time.Second},
	}, hclog.NewNullLogger())
}

func TestPollerDedupsAndFiltersByAmount(t *testing.T) {
	big := openBounty("B-1", "")
	small := openBounty("B-2", "")
	small.Amount = 5

	platform := &fakePlatform{name: "algora", feed: []model.Bounty{big, small}}
	bounties := store.NewMemoryBountyStore()
	r := New(bounties, hclog.NewNullLogger())
	p := NewPoller([]Platform{platform}, bounties, r, newTestGateway(), 50, hclog.NewNullLogger())

	p.Poll(context.Background())
	p.Poll(context.Background())

	tracked := bounties.List()
	require.Len(t, tracked, 1, "below-minimum bounties are ignored and refetches are absorbed")
	assert.Equal(t, "B-1", tracked[0].IssueID)
}

func TestPollerConfirmsPayouts(t *testing.T) {
	b := openBounty("B-1", "")
	platform := &fakePlatform{name: "algora", feed: []model.Bounty{b}, paidIDs: map[string]bool{"B-1": true}}

	bounties := store.NewMemoryBountyStore()
	r := New(bounties, hclog.NewNullLogger())
	p := NewPoller([]Platform{platform}, bounties, r, newTestGateway(), 0, hclog.NewNullLogger())

	p.Poll(context.Background())

	sub := submission()
	f := finding("CVE-2024-0001")
	r.SubmissionLinked(sub, f)
	r.SubmissionMerged(sub, f)

	p.Poll(context.Background())

	tracked := bounties.List()
	require.Len(t, tracked, 1)
	assert.Equal(t, model.BountyCompleted, tracked[0].Status)
}
