package analysis

import (
	"context"

	"github.com/patchwatch/patchwatch/internal/model"
)

// DetectInput is what a presence check gets to work with.
type DetectInput struct {
	Repository    model.Repository
	CommitID      string
	Diff          string
	Files         []string
	Vulnerability model.Vulnerability
}

// Assessment is the outcome of a presence check. Confidence is clamped to
// [0,1] by callers before it is stored.
type Assessment struct {
	Confidence    float64
	Evidence      string
	AffectedFiles []string
}

// Patch is a proposed remediation. An empty Diff is a legal low-confidence
// candidate, not a failure.
type Patch struct {
	Diff  string
	Notes string
}

// PresenceDetector scores how confidently a vulnerability is present in a
// commit. A backend that cannot produce a result returns an AnalysisFailure
// so the finding is held at its stage, not advanced.
type PresenceDetector interface {
	DetectPresence(ctx context.Context, in DetectInput) (Assessment, error)
}

// FixGenerator proposes a patch for a confirmed-present vulnerability.
type FixGenerator interface {
	GenerateFix(ctx context.Context, in DetectInput, previous Patch) (Patch, error)
}

// FixVerifier scores a patch by re-running presence detection against the
// patched code.
type FixVerifier interface {
	VerifyFix(ctx context.Context, in DetectInput, patch Patch) (Assessment, error)
}

// Backend bundles the three stages one analysis implementation provides.
type Backend interface {
	PresenceDetector
	FixGenerator
	FixVerifier
}
