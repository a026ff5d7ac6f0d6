package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

func newTestArchiver(t *testing.T) (*Archiver, string) {
	t.Helper()

	dir := t.TempDir()
	cat := catalog.New()
	cat.Swap([]model.Vulnerability{{
		ID: "CVE-2024-0001", Summary: "SQL injection via string-built queries",
		Severity: model.SeverityCritical, Score: 9.8,
		Ecosystems: []string{"go"}, PublishedAt: time.Now(),
	}})

	a, err := New(config.Artifacts{Dir: dir}, cat, hclog.NewNullLogger())
	require.NoError(t, err)
	return a, dir
}

func mergedFinding() model.Finding {
	f := model.NewFinding("https://github.com/acme/widget", "abc123", "CVE-2024-0001")
	f.Status = model.StatusPRMerged
	f.AffectedFiles = []string{"db/query.go"}
	f.Patch = "-bad\n+good\n"
	f.VerificationNotes = "patched lines are clean"
	presence, fix := 0.92, 0.85
	f.PresenceConfidence = &presence
	f.FixConfidence = &fix
	return f
}

func TestArchiveWritesSarifReport(t *testing.T) {
	a, dir := newTestArchiver(t)
	f := mergedFinding()

	a.Archive(context.Background(), f)

	path := filepath.Join(dir, f.ID.String()+".sarif")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var report sarif.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Len(t, report.Runs, 1)

	run := report.Runs[0]
	assert.Equal(t, "patchwatch", run.Tool.Driver.Name)
	require.Len(t, run.Results, 1)

	result := run.Results[0]
	require.NotNil(t, result.RuleID)
	assert.Equal(t, "CVE-2024-0001", *result.RuleID)
	require.NotNil(t, result.Level)
	assert.Equal(t, "error", *result.Level)
	require.NotNil(t, result.Message.Text)
	assert.Contains(t, *result.Message.Text, "abc123")
	require.Len(t, result.Locations, 1)
}

func TestArchiveRejectedFindingIsNote(t *testing.T) {
	a, dir := newTestArchiver(t)
	f := mergedFinding()
	f.Status = model.StatusRejected

	a.Archive(context.Background(), f)

	raw, err := os.ReadFile(filepath.Join(dir, f.ID.String()+".sarif"))
	require.NoError(t, err)

	var report sarif.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	require.NotNil(t, report.Runs[0].Results[0].Level)
	assert.Equal(t, "note", *report.Runs[0].Results[0].Level)
}
