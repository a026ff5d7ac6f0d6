package lifecycle

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwatch/patchwatch/internal/analysis"
	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

type scriptedBackend struct {
	presence    float64
	presenceErr error
	fixConf     float64
	genErr      error

	detectCalls int
	genCalls    int
	verifyCalls int
}

func (b *scriptedBackend) DetectPresence(_ context.Context, _ analysis.DetectInput) (analysis.Assessment, error) {
	b.detectCalls++
	if b.presenceErr != nil {
		return analysis.Assessment{}, b.presenceErr
	}
	return analysis.Assessment{Confidence: b.presence, Evidence: "scripted"}, nil
}

func (b *scriptedBackend) GenerateFix(_ context.Context, _ analysis.DetectInput, _ analysis.Patch) (analysis.Patch, error) {
	b.genCalls++
	if b.genErr != nil {
		return analysis.Patch{}, b.genErr
	}
	return analysis.Patch{Diff: "-bad\n+good\n", Notes: "scripted"}, nil
}

func (b *scriptedBackend) VerifyFix(_ context.Context, _ analysis.DetectInput, _ analysis.Patch) (analysis.Assessment, error) {
	b.verifyCalls++
	return analysis.Assessment{Confidence: b.fixConf, Evidence: "scripted"}, nil
}

type fakeSubmitter struct {
	err     error
	created []model.Submission
	status  model.SubmissionStatus
}

func (s *fakeSubmitter) Submit(_ context.Context, f model.Finding) (model.Submission, error) {
	if s.err != nil {
		return model.Submission{}, s.err
	}
	sub := model.Submission{
		ID:            uuid.New(),
		HostID:        "42",
		FindingID:     f.ID,
		RepositoryURL: f.RepositoryURL,
		Status:        model.SubmissionOpen,
		CreatedAt:     time.Now().UTC(),
	}
	s.created = append(s.created, sub)
	return sub, nil
}

func (s *fakeSubmitter) CheckStatus(_ context.Context, _ model.Submission) (model.SubmissionStatus, error) {
	if s.status == "" {
		return model.SubmissionOpen, nil
	}
	return s.status, nil
}

type recordingNotifier struct {
	linked []uuid.UUID
	merged []uuid.UUID
}

func (n *recordingNotifier) SubmissionLinked(sub model.Submission, _ model.Finding) {
	n.linked = append(n.linked, sub.ID)
}

func (n *recordingNotifier) SubmissionMerged(sub model.Submission, _ model.Finding) {
	n.merged = append(n.merged, sub.ID)
}

type engineFixture struct {
	engine    *Engine
	stores    *store.Stores
	backend   *scriptedBackend
	submitter *fakeSubmitter
	notifier  *recordingNotifier
}

func newFixture(t *testing.T, backend *scriptedBackend, pipeline config.Pipeline) *engineFixture {
	t.Helper()

	stores := store.NewMemoryStores()
	require.NoError(t, stores.Repositories.Add(model.Repository{
		URL: "https://github.com/acme/widget", Host: "github.com",
		Namespace: "acme", Name: "widget", Language: "go", Active: true,
	}))

	cat := catalog.New()
	cat.Swap([]model.Vulnerability{{
		ID: "CVE-2024-0001", Severity: model.SeverityCritical,
		Ecosystems: []string{"go"}, PublishedAt: time.Now(),
	}})

	// Generous limits so the gateway never throttles the test run.
	gateway := resilience.New(map[string]config.Service{
		inferenceService: {RatePerSecond: 1000, Burst: 1000, FailureThreshold: 100, Cooldown: time.Second, CallTimeout: time.Second},
	}, hclog.NewNullLogger())

	submitter := &fakeSubmitter{}
	notifier := &recordingNotifier{}
	engine := New(stores, cat, backend, gateway, submitter, notifier, nil, pipeline, hclog.NewNullLogger())

	return &engineFixture{engine: engine, stores: stores, backend: backend, submitter: submitter, notifier: notifier}
}

func (fx *engineFixture) detect(t *testing.T) model.Finding {
	t.Helper()
	f := model.NewFinding("https://github.com/acme/widget", "abc123", "CVE-2024-0001")
	f.CommitDiff = "+vulnerable line\n"
	stored, created := fx.stores.Findings.CreateIfAbsent(f)
	require.True(t, created)
	return stored
}

func (fx *engineFixture) get(t *testing.T, id uuid.UUID) model.Finding {
	t.Helper()
	f, ok := fx.stores.Findings.Get(id)
	require.True(t, ok)
	return f
}

func TestHappyPathThroughMergeAndBountyNotification(t *testing.T) {
	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.85}, config.DefaultPipeline())
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	require.Equal(t, model.StatusPRCreated, got.Status)
	require.NotNil(t, got.SubmissionID)
	assert.Equal(t, 0.92, *got.PresenceConfidence)
	assert.Equal(t, 0.85, *got.FixConfidence)
	assert.False(t, got.RequiresHumanReview, "0.85 is at or above the auto-approve threshold")
	assert.Len(t, fx.notifier.linked, 1)

	require.NoError(t, fx.engine.HandleSubmissionUpdate(context.Background(), *got.SubmissionID, model.SubmissionMerged))

	got = fx.get(t, f.ID)
	assert.Equal(t, model.StatusPRMerged, got.Status)
	assert.Len(t, fx.notifier.merged, 1)

	sub, ok := fx.stores.Submissions.Get(*got.SubmissionID)
	require.True(t, ok)
	assert.Equal(t, model.SubmissionMerged, sub.Status)
	assert.NotNil(t, sub.CompletedAt)
}

func TestLowPresenceRejectsWithoutVerification(t *testing.T) {
	fx := newFixture(t, &scriptedBackend{presence: 0.2}, config.DefaultPipeline())
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Zero(t, fx.backend.genCalls, "a rejected finding never reaches fix generation")
	assert.Empty(t, fx.submitter.created)
}

func TestLowFixConfidenceGoesToHumanReview(t *testing.T) {
	minFix := 0.3
	pipeline := config.DefaultPipeline()
	pipeline.MinFixConfidence = &minFix

	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.40}, pipeline)
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	require.Equal(t, model.StatusHumanReview, got.Status)
	assert.True(t, got.RequiresHumanReview)
	assert.Empty(t, fx.submitter.created, "nothing is submitted before review")

	require.NoError(t, fx.engine.ApplyReview(context.Background(), f.ID, false))

	got = fx.get(t, f.ID)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Empty(t, fx.submitter.created)
}

func TestReviewApprovalLeadsToSubmission(t *testing.T) {
	minFix := 0.3
	pipeline := config.DefaultPipeline()
	pipeline.MinFixConfidence = &minFix

	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.40}, pipeline)
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)
	require.NoError(t, fx.engine.ApplyReview(context.Background(), f.ID, true))
	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	assert.Equal(t, model.StatusPRCreated, got.Status)
	assert.Len(t, fx.submitter.created, 1)
}

func TestReviewRedeliveryIsIdempotent(t *testing.T) {
	minFix := 0.3
	pipeline := config.DefaultPipeline()
	pipeline.MinFixConfidence = &minFix

	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.40}, pipeline)
	f := fx.detect(t)
	fx.engine.Process(context.Background(), f.ID)

	require.NoError(t, fx.engine.ApplyReview(context.Background(), f.ID, false))
	require.NoError(t, fx.engine.ApplyReview(context.Background(), f.ID, false), "redelivered decision is a no-op")

	err := fx.engine.ApplyReview(context.Background(), f.ID, true)
	require.Error(t, err, "a contradicting decision is a conflict")
	assert.True(t, errors.IsConflict(err))
}

func TestBoundedRegenerationThenRejected(t *testing.T) {
	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.2}, config.DefaultPipeline())
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, config.DefaultPipeline().MaxFixAttempts, got.FixAttempts)
	assert.Equal(t, config.DefaultPipeline().MaxFixAttempts, fx.backend.genCalls)
}

func TestFixConfidenceAtThresholdRegenerates(t *testing.T) {
	pipeline := config.DefaultPipeline()
	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: pipeline.MinFix()}, pipeline)
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	assert.Equal(t, model.StatusRejected, got.Status, "a score exactly at the threshold does not confirm the fix")
	assert.Equal(t, pipeline.MaxFixAttempts, fx.backend.genCalls)
}

func TestAnalysisFailureHoldsFinding(t *testing.T) {
	backend := &scriptedBackend{presenceErr: errors.NewAnalysisFailure("presence", stderrors.New("backend down"))}
	fx := newFixture(t, backend, config.DefaultPipeline())
	f := fx.detect(t)

	fx.engine.Process(context.Background(), f.ID)

	got := fx.get(t, f.ID)
	assert.Equal(t, model.StatusDetected, got.Status, "an analysis failure holds, never advances or rejects")
	assert.Nil(t, got.PresenceConfidence)

	// The backend recovers; the resweep path picks the finding up again.
	backend.presenceErr = nil
	backend.presence = 0.92
	backend.fixConf = 0.9
	fx.engine.Process(context.Background(), f.ID)
	assert.Equal(t, model.StatusPRCreated, fx.get(t, f.ID).Status)
}

func TestMergeRedeliveryIsIdempotent(t *testing.T) {
	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.9}, config.DefaultPipeline())
	f := fx.detect(t)
	fx.engine.Process(context.Background(), f.ID)

	subID := *fx.get(t, f.ID).SubmissionID
	require.NoError(t, fx.engine.HandleSubmissionUpdate(context.Background(), subID, model.SubmissionMerged))
	require.NoError(t, fx.engine.HandleSubmissionUpdate(context.Background(), subID, model.SubmissionMerged))

	assert.Len(t, fx.notifier.merged, 1, "redelivered merge notifies the reconciler once")
}

func TestClosedWithoutMergeHoldsFinding(t *testing.T) {
	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.9}, config.DefaultPipeline())
	f := fx.detect(t)
	fx.engine.Process(context.Background(), f.ID)

	subID := *fx.get(t, f.ID).SubmissionID
	require.NoError(t, fx.engine.HandleSubmissionUpdate(context.Background(), subID, model.SubmissionClosed))

	got := fx.get(t, f.ID)
	assert.Equal(t, model.StatusPRCreated, got.Status, "a close without merge waits for an operator")
	assert.Empty(t, fx.notifier.merged)
}

func TestPollSubmissionsDrivesMerge(t *testing.T) {
	fx := newFixture(t, &scriptedBackend{presence: 0.92, fixConf: 0.9}, config.DefaultPipeline())
	f := fx.detect(t)
	fx.engine.Process(context.Background(), f.ID)

	fx.submitter.status = model.SubmissionMerged
	fx.engine.PollSubmissions(context.Background())

	assert.Equal(t, model.StatusPRMerged, fx.get(t, f.ID).Status)
}
