package lifecycle

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/analysis"
	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

// inferenceService is the gateway key shielding the analysis backend.
const inferenceService = "inference"

const (
	queueCapacity   = 1024
	maxStageRetries = 3
	baseRetryDelay  = 2 * time.Second
	resweepInterval = 30 * time.Second
)

// Submitter opens a change request for a confirmed finding and reports the
// merge status of submissions already opened. Implementations route their
// network calls through the resilience gateway themselves.
type Submitter interface {
	Submit(ctx context.Context, f model.Finding) (model.Submission, error)
	CheckStatus(ctx context.Context, sub model.Submission) (model.SubmissionStatus, error)
}

// BountyNotifier receives the submission events the bounty reconciler acts on.
type BountyNotifier interface {
	SubmissionLinked(sub model.Submission, f model.Finding)
	SubmissionMerged(sub model.Submission, f model.Finding)
}

// Archiver persists an evidence record for a finding that reached a terminal
// status. Archiving is best effort and never blocks a transition.
type Archiver interface {
	Archive(ctx context.Context, f model.Finding)
}

// Engine owns every finding transition. Transitions for one finding are
// serialized through a per-finding lock; different findings advance
// concurrently across the worker pool.
type Engine struct {
	findings    store.FindingStore
	submissions store.SubmissionStore
	repos       store.RepositoryStore
	catalog     *catalog.Catalog
	backend     analysis.Backend
	gateway     *resilience.Gateway
	submitter   Submitter
	bounty      BountyNotifier
	archiver    Archiver
	pipeline    config.Pipeline
	locks       *keyedMutex
	queue       chan uuid.UUID
	logger      hclog.Logger
}

// New creates an Engine. bounty and archiver may be nil.
func New(stores *store.Stores, cat *catalog.Catalog, backend analysis.Backend, gateway *resilience.Gateway,
	submitter Submitter, bounty BountyNotifier, archiver Archiver, pipeline config.Pipeline, logger hclog.Logger) *Engine {
	return &Engine{
		findings:    stores.Findings,
		submissions: stores.Submissions,
		repos:       stores.Repositories,
		catalog:     cat,
		backend:     backend,
		gateway:     gateway,
		submitter:   submitter,
		bounty:      bounty,
		archiver:    archiver,
		pipeline:    pipeline,
		locks:       newKeyedMutex(),
		queue:       make(chan uuid.UUID, queueCapacity),
		logger:      logger,
	}
}

// Enqueue schedules a finding for processing. A full queue drops the id; the
// resweep loop picks the finding up again.
func (e *Engine) Enqueue(id uuid.UUID) {
	select {
	case e.queue <- id:
	default:
		e.logger.Warn("lifecycle queue full, deferring to resweep", "finding", id)
	}
}

// Run processes findings with the configured worker count until the context
// is cancelled. A periodic resweep re-enqueues every actionable finding so
// held findings (analysis failures, open breakers, drops) are retried.
func (e *Engine) Run(ctx context.Context) {
	workers := e.pipeline.Workers
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-e.queue:
					e.Process(ctx, id)
				}
			}
		}()
	}

	ticker := time.NewTicker(resweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.resweep()
		}
	}
}

func (e *Engine) resweep() {
	actionable := e.findings.ListByStatus(
		model.StatusDetected, model.StatusVerified, model.StatusFixGenerated,
		model.StatusFixConfirmed, model.StatusConfirmed,
	)
	for _, f := range actionable {
		e.Enqueue(f.ID)
	}
}

// Process drives one finding as far as it can go, one locked stage at a
// time. It stops at terminal statuses, at statuses waiting on an external
// signal, and on errors; transient errors are retried with capped backoff,
// with the lock released between attempts.
func (e *Engine) Process(ctx context.Context, id uuid.UUID) {
	retries := 0
	for ctx.Err() == nil {
		advanced, err := e.step(ctx, id)
		switch {
		case err == nil && advanced:
			retries = 0
			continue
		case err == nil:
			return
		case errors.IsRetryable(err) && retries < maxStageRetries:
			retries++
			delay := backoff(retries)
			e.logger.Debug("transient stage failure, backing off",
				"finding", id, "attempt", retries, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		default:
			// Open breakers, analysis failures and exhausted retries hold
			// the finding at its stage; the resweep loop returns to it.
			e.logger.Warn("finding held at current stage", "finding", id, "error", err)
			return
		}
	}
}

func backoff(attempt int) time.Duration {
	d := baseRetryDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

// step performs at most one stage transition under the finding's lock.
func (e *Engine) step(ctx context.Context, id uuid.UUID) (bool, error) {
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	f, ok := e.findings.Get(id)
	if !ok {
		return false, nil
	}

	switch f.Status {
	case model.StatusDetected:
		return e.stageDetect(ctx, f)
	case model.StatusVerified:
		return e.stageGenerate(ctx, f)
	case model.StatusFixGenerated:
		return e.stageVerify(ctx, f)
	case model.StatusFixConfirmed:
		return e.stageGate(ctx, f)
	case model.StatusConfirmed:
		return e.stageSubmit(ctx, f)
	default:
		// HUMAN_REVIEW and PR_CREATED wait on external signals; terminal
		// statuses are done.
		return false, nil
	}
}

func (e *Engine) detectInput(f model.Finding) (analysis.DetectInput, bool) {
	vuln, ok := e.catalog.Get(f.VulnerabilityID)
	if !ok {
		e.logger.Warn("catalog entry gone, holding finding", "finding", f.ID, "vulnerability", f.VulnerabilityID)
		return analysis.DetectInput{}, false
	}
	repo, _ := e.repos.Get(f.RepositoryURL)
	return analysis.DetectInput{
		Repository:    repo,
		CommitID:      f.CommitID,
		Diff:          f.CommitDiff,
		Files:         f.AffectedFiles,
		Vulnerability: vuln,
	}, true
}

func (e *Engine) stageDetect(ctx context.Context, f model.Finding) (bool, error) {
	in, ok := e.detectInput(f)
	if !ok {
		return false, nil
	}

	assessment, err := resilience.Call(ctx, e.gateway, inferenceService, func(callCtx context.Context) (analysis.Assessment, error) {
		return e.backend.DetectPresence(callCtx, in)
	})
	if err != nil {
		return false, err
	}

	conf := model.ClampConfidence(assessment.Confidence)
	f.PresenceConfidence = &conf
	f.VerificationNotes = assessment.Evidence
	if len(assessment.AffectedFiles) > 0 {
		f.AffectedFiles = assessment.AffectedFiles
	}

	if conf < e.pipeline.MinPresence() {
		e.logger.Info("presence below threshold, rejecting",
			"finding", f.ID, "confidence", conf, "threshold", e.pipeline.MinPresence())
		return true, e.transition(ctx, f, model.StatusRejected)
	}

	e.logger.Info("presence verified", "finding", f.ID, "confidence", conf)
	return true, e.transition(ctx, f, model.StatusVerified)
}

func (e *Engine) stageGenerate(ctx context.Context, f model.Finding) (bool, error) {
	in, ok := e.detectInput(f)
	if !ok {
		return false, nil
	}

	patch, err := resilience.Call(ctx, e.gateway, inferenceService, func(callCtx context.Context) (analysis.Patch, error) {
		return e.backend.GenerateFix(callCtx, in, analysis.Patch{Diff: f.Patch})
	})
	if err != nil {
		return false, err
	}

	f.Patch = patch.Diff
	f.VerificationNotes = patch.Notes
	f.FixAttempts++
	return true, e.transition(ctx, f, model.StatusFixGenerated)
}

func (e *Engine) stageVerify(ctx context.Context, f model.Finding) (bool, error) {
	in, ok := e.detectInput(f)
	if !ok {
		return false, nil
	}

	assessment, err := resilience.Call(ctx, e.gateway, inferenceService, func(callCtx context.Context) (analysis.Assessment, error) {
		return e.backend.VerifyFix(callCtx, in, analysis.Patch{Diff: f.Patch})
	})
	if err != nil {
		return false, err
	}

	conf := model.ClampConfidence(assessment.Confidence)
	f.FixConfidence = &conf
	f.VerificationNotes = assessment.Evidence

	// The fix must strictly exceed the threshold; a score exactly at it still
	// triggers regeneration.
	if conf > e.pipeline.MinFix() {
		e.logger.Info("fix verified", "finding", f.ID, "confidence", conf, "attempts", f.FixAttempts)
		return true, e.transition(ctx, f, model.StatusFixConfirmed)
	}

	if f.FixAttempts >= e.pipeline.MaxFixAttempts {
		e.logger.Info("fix attempts exhausted, rejecting",
			"finding", f.ID, "confidence", conf, "attempts", f.FixAttempts)
		return true, e.transition(ctx, f, model.StatusRejected)
	}

	// Regenerate in place; the status stays FIX_GENERATED so the next step
	// verifies the new candidate.
	patch, err := resilience.Call(ctx, e.gateway, inferenceService, func(callCtx context.Context) (analysis.Patch, error) {
		return e.backend.GenerateFix(callCtx, in, analysis.Patch{Diff: f.Patch})
	})
	if err != nil {
		return false, err
	}

	f.Patch = patch.Diff
	f.FixAttempts++
	f.UpdatedAt = time.Now().UTC()
	if err := e.findings.Update(f); err != nil {
		return false, err
	}
	e.logger.Debug("fix regenerated", "finding", f.ID, "attempt", f.FixAttempts)
	return true, nil
}

func (e *Engine) stageGate(ctx context.Context, f model.Finding) (bool, error) {
	conf := 0.0
	if f.FixConfidence != nil {
		conf = *f.FixConfidence
	}

	if conf >= e.pipeline.AutoApprove() {
		f.RequiresHumanReview = false
		return true, e.transition(ctx, f, model.StatusConfirmed)
	}

	f.RequiresHumanReview = true
	e.logger.Info("fix queued for human review", "finding", f.ID, "confidence", conf)
	return true, e.transition(ctx, f, model.StatusHumanReview)
}

func (e *Engine) stageSubmit(ctx context.Context, f model.Finding) (bool, error) {
	sub, err := e.submitter.Submit(ctx, f)
	if err != nil {
		return false, err
	}

	if err := e.submissions.Add(sub); err != nil {
		return false, err
	}
	f.SubmissionID = &sub.ID
	if err := e.transition(ctx, f, model.StatusPRCreated); err != nil {
		return false, err
	}

	if e.bounty != nil {
		e.bounty.SubmissionLinked(sub, f)
	}
	e.logger.Info("remediation submitted", "finding", f.ID, "submission", sub.ID, "host_id", sub.HostID)
	return true, nil
}

// transition commits a status change atomically; an illegal transition is a
// bug surfaced as a conflict, never a silent skip.
func (e *Engine) transition(ctx context.Context, f model.Finding, next model.FindingStatus) error {
	if !f.Status.CanTransitionTo(next) {
		return errors.NewConflictError("finding transition", string(f.Status)+" -> "+string(next))
	}

	f.Status = next
	f.UpdatedAt = time.Now().UTC()
	if err := e.findings.Update(f); err != nil {
		return err
	}

	if next.Terminal() && e.archiver != nil {
		e.archiver.Archive(ctx, f)
	}
	return nil
}

// ApplyReview delivers an external reviewer decision. Redelivery of a
// decision already applied is a no-op; a decision contradicting the current
// status is a conflict.
func (e *Engine) ApplyReview(ctx context.Context, id uuid.UUID, approved bool) error {
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	f, ok := e.findings.Get(id)
	if !ok {
		return errors.NewValidationError("finding", "unknown identifier")
	}

	if f.Status != model.StatusHumanReview {
		switch {
		case approved && (f.Status == model.StatusConfirmed || f.Status == model.StatusPRCreated || f.Status == model.StatusPRMerged):
			return nil
		case !approved && f.Status == model.StatusRejected:
			return nil
		default:
			return errors.NewConflictError("review decision", string(f.Status))
		}
	}

	next := model.StatusRejected
	if approved {
		next = model.StatusConfirmed
	}
	if err := e.transition(ctx, f, next); err != nil {
		return err
	}

	e.logger.Info("review decision applied", "finding", id, "approved", approved)
	if approved {
		e.Enqueue(id)
	}
	return nil
}

// HandleSubmissionUpdate is the single funnel for merge-state changes, fed
// by both polling and webhook delivery. Redelivered updates are no-ops.
func (e *Engine) HandleSubmissionUpdate(ctx context.Context, subID uuid.UUID, status model.SubmissionStatus) error {
	sub, ok := e.submissions.Get(subID)
	if !ok {
		return errors.NewValidationError("submission", "unknown identifier")
	}
	if sub.Status == status {
		return nil
	}

	sub.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		sub.CompletedAt = &now
	}
	if err := e.submissions.Update(sub); err != nil {
		return err
	}

	switch status {
	case model.SubmissionMerged:
		return e.onSubmissionMerged(ctx, sub)
	case model.SubmissionClosed:
		// A close without merge needs an operator decision; the finding
		// stays at PR_CREATED rather than being guessed into a terminal.
		e.logger.Warn("submission closed without merge", "submission", sub.ID, "finding", sub.FindingID)
		return nil
	default:
		return nil
	}
}

func (e *Engine) onSubmissionMerged(ctx context.Context, sub model.Submission) error {
	e.locks.Lock(sub.FindingID)
	defer e.locks.Unlock(sub.FindingID)

	f, ok := e.findings.Get(sub.FindingID)
	if !ok {
		return errors.NewValidationError("finding", "unknown identifier")
	}
	if f.Status == model.StatusPRMerged {
		return nil
	}

	if err := e.transition(ctx, f, model.StatusPRMerged); err != nil {
		return err
	}
	e.logger.Info("remediation merged", "finding", f.ID, "submission", sub.ID)

	if e.bounty != nil {
		e.bounty.SubmissionMerged(sub, f)
	}
	return nil
}

// PollSubmissions checks the merge state of every open submission. It is the
// fallback path when the host delivers no webhooks.
func (e *Engine) PollSubmissions(ctx context.Context) {
	for _, sub := range e.submissions.ListOpen() {
		status, err := e.submitter.CheckStatus(ctx, sub)
		if err != nil {
			e.logger.Debug("submission status check failed", "submission", sub.ID, "error", err)
			continue
		}
		if status == sub.Status {
			continue
		}
		if err := e.HandleSubmissionUpdate(ctx, sub.ID, status); err != nil {
			e.logger.Warn("submission update failed", "submission", sub.ID, "error", err)
		}
	}
}

// RunSubmissionPoller polls on the given interval until cancelled.
func (e *Engine) RunSubmissionPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.PollSubmissions(ctx)
		}
	}
}
