package view

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/stats"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

func newFixture(t *testing.T) (*View, *store.Stores, *stats.Collector) {
	t.Helper()

	stores := store.NewMemoryStores()
	require.NoError(t, stores.Repositories.Add(model.Repository{
		URL: "https://github.com/acme/widget", Host: "github.com",
		Namespace: "acme", Name: "widget", Language: "go", Active: true,
	}))
	require.NoError(t, stores.Repositories.Add(model.Repository{
		URL: "https://github.com/acme/legacy", Host: "github.com",
		Namespace: "acme", Name: "legacy", Language: "java", Active: false,
	}))

	cat := catalog.New()
	cat.Swap([]model.Vulnerability{
		{ID: "CVE-2024-0001", Severity: model.SeverityCritical, Ecosystems: []string{"go"}, PublishedAt: time.Now()},
		{ID: "CVE-2024-0002", Severity: model.SeverityHigh, Ecosystems: []string{"java"}, PublishedAt: time.Now()},
		{ID: "CVE-2024-0003", Severity: model.SeverityLow, Ecosystems: []string{"javascript"}, PublishedAt: time.Now()},
	})

	collector := stats.NewCollector()
	return New(stores, cat, collector, config.DefaultPipeline()), stores, collector
}

func addFinding(t *testing.T, stores *store.Stores, status model.FindingStatus, fixConf *float64) model.Finding {
	t.Helper()
	f := model.NewFinding("https://github.com/acme/widget", uuid.NewString()[:8], "CVE-2024-0001")
	f.Status = status
	f.FixConfidence = fixConf
	stored, created := stores.Findings.CreateIfAbsent(f)
	require.True(t, created)
	return stored
}

func ptr(f float64) *float64 { return &f }

func TestCounts(t *testing.T) {
	v, _, collector := newFixture(t)
	collector.RecordCommits(4)

	counts := v.Counts()
	assert.Equal(t, 1, counts.RepositoriesWatched, "inactive repositories are not watched")
	assert.Equal(t, 3, counts.VulnerabilitiesTracked)
	assert.Equal(t, 4, counts.CommitsProcessedToday)
}

func TestNeedingReview(t *testing.T) {
	v, stores, _ := newFixture(t)
	inReview := addFinding(t, stores, model.StatusHumanReview, ptr(0.4))
	addFinding(t, stores, model.StatusDetected, nil)

	got := v.NeedingReview()
	require.Len(t, got, 1)
	assert.Equal(t, inReview.ID, got[0].ID)
	assert.Equal(t, model.StatusHumanReview, got[0].Status)
}

func TestLowConfidenceFixes(t *testing.T) {
	v, stores, _ := newFixture(t)
	low := addFinding(t, stores, model.StatusFixConfirmed, ptr(0.5))
	addFinding(t, stores, model.StatusFixConfirmed, ptr(0.9))
	addFinding(t, stores, model.StatusRejected, ptr(0.1))
	addFinding(t, stores, model.StatusVerified, nil)

	got := v.LowConfidenceFixes()
	require.Len(t, got, 1, "above-threshold, rejected, and unscored findings are excluded")
	assert.Equal(t, low.ID, got[0].ID)
}

func TestClaimedBounties(t *testing.T) {
	v, stores, _ := newFixture(t)
	for i, status := range []model.BountyStatus{
		model.BountyOpen, model.BountyInProgress, model.BountyClaimed,
		model.BountyCompleted, model.BountyFailed,
	} {
		stores.Bounties.Add(model.Bounty{
			ID: uuid.New(), IssueID: uuid.NewString(), Platform: "algora",
			RepositoryURL: "https://github.com/acme/widget",
			Status:        status, CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	got := v.ClaimedBounties()
	require.Len(t, got, 2)
	assert.Equal(t, model.BountyClaimed, got[0].Status)
	assert.Equal(t, model.BountyCompleted, got[1].Status)
}

func TestSubmissionHistoryJoinsFinding(t *testing.T) {
	v, stores, _ := newFixture(t)
	f := addFinding(t, stores, model.StatusPRCreated, ptr(0.85))
	presence := 0.92
	f.PresenceConfidence = &presence
	require.NoError(t, stores.Findings.Update(f))

	require.NoError(t, stores.Submissions.Add(model.Submission{
		ID: uuid.New(), HostID: "17", FindingID: f.ID,
		RepositoryURL: f.RepositoryURL, Status: model.SubmissionOpen, CreatedAt: time.Now(),
	}))

	got := v.SubmissionHistory()
	require.Len(t, got, 1)
	assert.Equal(t, "CVE-2024-0001", got[0].VulnerabilityID)
	assert.Equal(t, 0.92, *got[0].PresenceConfidence)
	assert.Equal(t, 0.85, *got[0].FixConfidence)
}

func TestCatalogEntriesFilteredToWatchedLanguages(t *testing.T) {
	v, _, _ := newFixture(t)

	got := v.CatalogEntries()
	require.Len(t, got, 1, "only entries for active repositories' languages appear")
	assert.Equal(t, "CVE-2024-0001", got[0].ID)
}

func TestTerminalFindingCarriesCompletionTimestamp(t *testing.T) {
	v, stores, _ := newFixture(t)
	f := addFinding(t, stores, model.StatusHumanReview, ptr(0.4))
	f.Status = model.StatusRejected
	require.NoError(t, stores.Findings.Update(f))

	assert.Empty(t, v.LowConfidenceFixes(), "rejected findings drop out of the review queues")

	// The rejected finding is terminal, so its view carries a completion time.
	stored, ok := stores.Findings.Get(f.ID)
	require.True(t, ok)
	fv := toFindingView(stored)
	require.NotNil(t, fv.CompletedAt)
}
