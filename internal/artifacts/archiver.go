package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/files"
)

const toolName = "patchwatch"

// Archiver writes a SARIF evidence report for every finding that reaches a
// terminal status, keeping the audit trail outside the in-memory stores. An
// optional S3 bucket mirrors the local archive.
type Archiver struct {
	dir      string
	catalog  *catalog.Catalog
	uploader *s3manager.Uploader
	bucket   string
	logger   hclog.Logger
}

// New creates an Archiver rooted at cfg.Dir. With a bucket configured,
// reports are also uploaded to S3.
func New(cfg config.Artifacts, cat *catalog.Catalog, logger hclog.Logger) (*Archiver, error) {
	dir, err := files.ExpandPath(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving artifacts dir: %w", err)
	}
	if err := files.CreateFolderIfNotExists(dir); err != nil {
		return nil, fmt.Errorf("creating artifacts dir: %w", err)
	}

	a := &Archiver{dir: dir, catalog: cat, logger: logger}
	if cfg.S3.Bucket != "" {
		sess := session.Must(session.NewSession(&aws.Config{
			Region: aws.String(cfg.S3.Region),
		}))
		a.uploader = s3manager.NewUploader(sess)
		a.bucket = cfg.S3.Bucket
	}
	return a, nil
}

// Archive persists the finding's evidence report. Archiving is best effort;
// failures are logged and never block a lifecycle transition.
func (a *Archiver) Archive(ctx context.Context, f model.Finding) {
	path := filepath.Join(a.dir, fmt.Sprintf("%s.sarif", f.ID))

	report, err := a.buildReport(f)
	if err != nil {
		a.logger.Warn("evidence report build failed", "finding", f.ID, "error", err)
		return
	}
	if err := report.WriteFile(path); err != nil {
		a.logger.Warn("evidence report write failed", "finding", f.ID, "path", path, "error", err)
		return
	}
	a.logger.Debug("evidence report written", "finding", f.ID, "path", path)

	if a.uploader != nil {
		a.upload(ctx, f, path)
	}
}

func (a *Archiver) buildReport(f model.Finding) (*sarif.Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, err
	}

	run := sarif.NewRunWithInformationURI(toolName, f.RepositoryURL)

	rule := run.AddRule(f.VulnerabilityID)
	if vuln, ok := a.catalog.Get(f.VulnerabilityID); ok {
		rule.WithDescription(vuln.Summary)
		rule.WithProperties(sarif.Properties{
			"severity": string(vuln.Severity),
			"score":    vuln.Score,
		})
	}

	message := fmt.Sprintf("finding %s on commit %s ended in %s", f.ID, f.CommitID, f.Status)
	if f.VerificationNotes != "" {
		message += ": " + f.VerificationNotes
	}

	result := run.CreateResultForRule(f.VulnerabilityID).
		WithLevel(resultLevel(f.Status)).
		WithMessage(sarif.NewTextMessage(message))
	for _, file := range f.AffectedFiles {
		result.AddLocation(
			sarif.NewLocationWithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewSimpleArtifactLocation(file)),
			),
		)
	}

	properties := sarif.Properties{
		"commit":       f.CommitID,
		"status":       string(f.Status),
		"fix_attempts": f.FixAttempts,
	}
	if f.PresenceConfidence != nil {
		properties["presence_confidence"] = *f.PresenceConfidence
	}
	if f.FixConfidence != nil {
		properties["fix_confidence"] = *f.FixConfidence
	}
	if f.Patch != "" {
		properties["patch"] = f.Patch
	}
	result.Properties = properties

	report.AddRun(run)
	return report, nil
}

func resultLevel(status model.FindingStatus) string {
	if status == model.StatusRejected {
		return "note"
	}
	return "error"
}

func (a *Archiver) upload(ctx context.Context, f model.Finding, path string) {
	file, err := os.Open(path)
	if err != nil {
		a.logger.Warn("evidence report open failed", "path", path, "error", err)
		return
	}
	defer file.Close()

	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(filepath.Base(path)),
		Body:   file,
	})
	if err != nil {
		a.logger.Warn("evidence report upload failed", "finding", f.ID, "bucket", a.bucket, "error", err)
		return
	}
	a.logger.Debug("evidence report uploaded", "finding", f.ID, "bucket", a.bucket)
}
