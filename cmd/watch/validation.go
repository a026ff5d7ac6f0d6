package watch

import (
	"fmt"
	"time"

	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/files"
)

// Fallback settings for config the file leaves out.
const (
	defaultCatalogSyncInterval = 6 * time.Hour
	defaultBountyPollInterval  = 5 * time.Minute
	defaultArtifactsDir        = "~/.patchwatch/artifacts"
)

// validateWatchConfig checks the settings the daemon needs and fills the
// optional ones with their defaults.
func validateWatchConfig(cfg *config.Config, options *RunOptionsWatch) error {
	if cfg == nil {
		return fmt.Errorf("configuration is not initialized")
	}
	if cfg.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be configured")
	}
	if options.WatchlistFile == "" {
		return fmt.Errorf("the 'watchlist' flag must not be empty")
	}

	mirrorDir, err := files.ExpandPath(options.MirrorDir)
	if err != nil {
		return fmt.Errorf("resolving mirror dir: %w", err)
	}
	if err := files.CreateFolderIfNotExists(mirrorDir); err != nil {
		return err
	}
	options.MirrorDir = mirrorDir

	defaults := config.DefaultPipeline()
	if cfg.Pipeline.IngestInterval == 0 {
		cfg.Pipeline.IngestInterval = defaults.IngestInterval
	}
	if cfg.Pipeline.SubmissionPollInterval == 0 {
		cfg.Pipeline.SubmissionPollInterval = defaults.SubmissionPollInterval
	}
	if cfg.Pipeline.IngestJobs == 0 {
		cfg.Pipeline.IngestJobs = defaults.IngestJobs
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = defaults.Workers
	}
	if cfg.Catalog.SyncInterval == 0 {
		cfg.Catalog.SyncInterval = defaultCatalogSyncInterval
	}
	if cfg.Bounty.PollInterval == 0 {
		cfg.Bounty.PollInterval = defaultBountyPollInterval
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = defaultArtifactsDir
	}
	return nil
}
