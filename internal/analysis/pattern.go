package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Presence scores of the pattern backend. The backend is deterministic, so
// the scores are fixed points rather than a spectrum.
const (
	patternConfidenceAddedLine = 0.9
	patternConfidenceContext   = 0.55
	patternConfidenceAbsent    = 0.05

	patternFixConfidenceClean    = 0.9
	patternFixConfidencePartial  = 0.45
	patternFixConfidenceNoPatch  = 0.2
	patternFixConfidenceNoSignal = 0.65
)

// PatternBackend matches catalog patterns against commit diffs. It is the
// default analysis backend and the fallback when no inference provider is
// configured.
type PatternBackend struct {
	logger hclog.Logger
}

// NewPatternBackend creates the pattern-matching backend.
func NewPatternBackend(logger hclog.Logger) *PatternBackend {
	return &PatternBackend{logger: logger}
}

// DetectPresence scores a commit against the vulnerability's known pattern.
// A pattern in an added line is a strong signal; a pattern only in diff
// context means the vulnerable code predates the commit.
func (b *PatternBackend) DetectPresence(_ context.Context, in DetectInput) (Assessment, error) {
	pattern := in.Vulnerability.VulnerablePattern
	if pattern == "" {
		return Assessment{
			Confidence: patternConfidenceAbsent,
			Evidence:   "catalog entry carries no detectable pattern",
		}, nil
	}

	added := addedLines(in.Diff)
	for _, line := range added {
		if strings.Contains(line, pattern) {
			return Assessment{
				Confidence:    patternConfidenceAddedLine,
				Evidence:      fmt.Sprintf("pattern %q introduced by commit: %s", pattern, strings.TrimSpace(line)),
				AffectedFiles: in.Files,
			}, nil
		}
	}

	if strings.Contains(in.Diff, pattern) {
		return Assessment{
			Confidence:    patternConfidenceContext,
			Evidence:      fmt.Sprintf("pattern %q present near the change but not introduced by it", pattern),
			AffectedFiles: in.Files,
		}, nil
	}

	return Assessment{
		Confidence: patternConfidenceAbsent,
		Evidence:   fmt.Sprintf("pattern %q not found in commit diff", pattern),
	}, nil
}

// GenerateFix rewrites every added vulnerable line with the catalog's fixed
// pattern. Without a fixed pattern there is nothing to propose; the empty
// patch is a legal low-confidence candidate.
func (b *PatternBackend) GenerateFix(_ context.Context, in DetectInput, _ Patch) (Patch, error) {
	pattern := in.Vulnerability.VulnerablePattern
	replacement := in.Vulnerability.FixedPattern
	if pattern == "" || replacement == "" {
		return Patch{Notes: "no replacement pattern available"}, nil
	}

	var sb strings.Builder
	for _, line := range addedLines(in.Diff) {
		if !strings.Contains(line, pattern) {
			continue
		}
		fixed := strings.ReplaceAll(line, pattern, replacement)
		sb.WriteString("-" + line + "\n")
		sb.WriteString("+" + fixed + "\n")
	}

	if sb.Len() == 0 {
		return Patch{Notes: "vulnerable pattern no longer present in diff"}, nil
	}
	return Patch{
		Diff:  sb.String(),
		Notes: fmt.Sprintf("replaced %q with %q", pattern, replacement),
	}, nil
}

// VerifyFix re-runs presence detection against the patched lines. A patch
// whose added lines reintroduce the vulnerable pattern scores low.
func (b *PatternBackend) VerifyFix(_ context.Context, in DetectInput, patch Patch) (Assessment, error) {
	if patch.Diff == "" {
		return Assessment{
			Confidence: patternFixConfidenceNoPatch,
			Evidence:   "empty patch leaves the vulnerable code in place",
		}, nil
	}

	pattern := in.Vulnerability.VulnerablePattern
	if pattern == "" {
		return Assessment{
			Confidence: patternFixConfidenceNoSignal,
			Evidence:   "no pattern to verify against; accepting patch at reduced confidence",
		}, nil
	}

	for _, line := range addedLines(patch.Diff) {
		if strings.Contains(line, pattern) {
			return Assessment{
				Confidence: patternFixConfidencePartial,
				Evidence:   fmt.Sprintf("patch still contains %q", pattern),
			}, nil
		}
	}

	return Assessment{
		Confidence:    patternFixConfidenceClean,
		Evidence:      fmt.Sprintf("patched lines no longer contain %q", pattern),
		AffectedFiles: in.Files,
	}, nil
}

// addedLines extracts the lines a diff introduces, stripped of the leading
// marker. "+++" headers are not additions.
func addedLines(diff string) []string {
	var out []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			out = append(out, strings.TrimPrefix(line, "+"))
		}
	}
	return out
}
