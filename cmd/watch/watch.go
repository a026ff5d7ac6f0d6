package watch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/patchwatch/patchwatch/internal/analysis"
	"github.com/patchwatch/patchwatch/internal/artifacts"
	"github.com/patchwatch/patchwatch/internal/bounty"
	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/correlate"
	"github.com/patchwatch/patchwatch/internal/host"
	"github.com/patchwatch/patchwatch/internal/ingest"
	"github.com/patchwatch/patchwatch/internal/lifecycle"
	"github.com/patchwatch/patchwatch/internal/registry"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/internal/stats"
	"github.com/patchwatch/patchwatch/internal/store"
	"github.com/patchwatch/patchwatch/internal/submit"
	"github.com/patchwatch/patchwatch/internal/view"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/httpclient"
	"github.com/patchwatch/patchwatch/pkg/shared/logger"
)

// RunOptionsWatch holds the arguments for the watch command.
type RunOptionsWatch struct {
	WatchlistFile string
	MirrorDir     string
}

var (
	AppConfig    *config.Config
	watchOptions RunOptionsWatch

	exampleWatchUsage = `  # Watch the repositories listed in repositories.yml
  patchwatch watch

  # Watch a different list with a dedicated config
  patchwatch watch --config prod.yml --watchlist prod-repos.yml`
)

// WatchCmd runs the full pipeline until interrupted.
var WatchCmd = &cobra.Command{
	Use:                   "watch [--watchlist/-w PATH] [--mirror-dir PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleWatchUsage,
	Short:                 "Watch repositories and drive findings from detection to merged remediation",
	RunE:                  runWatchCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	// Host and platform tokens may live in a local .env during development.
	_ = godotenv.Load()

	if err := validateWatchConfig(AppConfig, &watchOptions); err != nil {
		return err
	}

	log := logger.NewLogger(AppConfig, "watch")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := store.NewMemoryStores()
	gateway := resilience.New(AppConfig.Services, log)
	cat := catalog.New()
	collector := stats.NewCollector()

	reg := registry.New(stores.Repositories, log)
	entries, err := registry.LoadFile(watchOptions.WatchlistFile)
	if err != nil {
		return err
	}
	if err := reg.Seed(entries); err != nil {
		return err
	}
	if len(reg.Active()) == 0 {
		log.Warn("watchlist is empty, add repositories with 'patchwatch repo add'")
	}

	sources, hosts := buildHosts(ctx, log)

	backend, closeBackend, err := buildBackend(ctx, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	archiver, err := artifacts.New(AppConfig.Artifacts, cat, log)
	if err != nil {
		return err
	}

	syncer := catalog.NewSyncer(httpclient.NewRestyClient(log, AppConfig),
		AppConfig.Catalog.BaseURL, AppConfig.Catalog.APIKey, gateway, cat, log)
	if err := syncer.Sync(ctx); err != nil {
		// The daemon can start on an empty catalog; the sync loop retries.
		log.Error("initial catalog sync failed", "error", err)
	}

	submitter := submit.New(hosts, stores.Repositories, cat, gateway, log)
	reconciler := bounty.New(stores.Bounties, log)
	engine := lifecycle.New(stores, cat, backend, gateway, submitter, reconciler, archiver, AppConfig.Pipeline, log)
	correlator := correlate.New(cat, stores.Findings, engine, log)
	ingestor := ingest.New(stores.Repositories, sources, gateway, correlator, collector,
		AppConfig.Pipeline.IngestJobs, log)
	poller := bounty.NewPoller(buildPlatforms(log), stores.Bounties, reconciler, gateway,
		AppConfig.Bounty.MinimumAmount, log)

	go engine.Run(ctx)
	go ingestor.Run(ctx, AppConfig.Pipeline.IngestInterval)
	go engine.RunSubmissionPoller(ctx, AppConfig.Pipeline.SubmissionPollInterval)
	go syncer.Run(ctx, AppConfig.Catalog.SyncInterval)
	go poller.Run(ctx, AppConfig.Bounty.PollInterval)
	go reportLoop(ctx, view.New(stores, cat, collector, AppConfig.Pipeline), log)

	log.Info("patchwatch started",
		"repos", len(reg.Active()), "catalog_entries", cat.Count(),
		"workers", AppConfig.Pipeline.Workers, "ingest_interval", AppConfig.Pipeline.IngestInterval)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// buildHosts assembles the commit sources and change hosts from the
// configured credentials. Hosts without an API client fall back to the local
// git mirror for commit listing.
func buildHosts(ctx context.Context, log hclog.Logger) (map[string]host.CommitSource, map[string]host.ChangeHost) {
	sources := make(map[string]host.CommitSource)
	hosts := make(map[string]host.ChangeHost)

	githubToken := AppConfig.Hosts.GitHub.Token
	if githubToken == "" {
		githubToken = os.Getenv("GITHUB_TOKEN")
	}
	github := host.NewGithubClient(ctx, githubToken, log.Named("github"))
	sources["github.com"] = github
	hosts["github.com"] = github

	gitlabToken := AppConfig.Hosts.GitLab.Token
	if gitlabToken == "" {
		gitlabToken = os.Getenv("GITLAB_TOKEN")
	}
	if gitlabToken != "" || AppConfig.Hosts.GitLab.BaseURL != "" {
		gitlab, err := host.NewGitlabClient(AppConfig.Hosts.GitLab.BaseURL, gitlabToken, log.Named("gitlab"))
		if err != nil {
			log.Error("gitlab client unavailable", "error", err)
		} else {
			name := gitlabHostname(AppConfig.Hosts.GitLab.BaseURL)
			sources[name] = gitlab
			hosts[name] = gitlab
		}
	}

	// Every other host gets commit listing from a local mirror; change
	// requests still need an API client.
	mirror := host.NewGitMirror(watchOptions.MirrorDir, log.Named("mirror"))
	for _, repo := range allWatchedHosts() {
		if _, ok := sources[repo]; !ok {
			sources[repo] = mirror
		}
	}

	return sources, hosts
}

func allWatchedHosts() []string {
	entries, err := registry.LoadFile(watchOptions.WatchlistFile)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, entry := range entries {
		if parsed, err := url.Parse(entry.URL); err == nil && !seen[parsed.Hostname()] {
			seen[parsed.Hostname()] = true
			out = append(out, parsed.Hostname())
		}
	}
	return out
}

func gitlabHostname(baseURL string) string {
	if baseURL == "" {
		return "gitlab.com"
	}
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	return "gitlab.com"
}

// buildBackend selects the analysis backend from the inference settings; the
// pattern matcher is the default.
func buildBackend(ctx context.Context, log hclog.Logger) (analysis.Backend, func(), error) {
	if AppConfig.Inference.Provider != "gemini" {
		return analysis.NewPatternBackend(log.Named("pattern")), func() {}, nil
	}

	keyEnv := AppConfig.Inference.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "GEMINI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, nil, fmt.Errorf("inference provider 'gemini' needs an API key in $%s", keyEnv)
	}

	backend, err := analysis.NewGeminiBackend(ctx, apiKey, AppConfig.Inference.Model, log.Named("gemini"))
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.Close, nil
}

func buildPlatforms(log hclog.Logger) []bounty.Platform {
	var platforms []bounty.Platform
	if AppConfig.Bounty.Algora.Enabled {
		platforms = append(platforms, bounty.NewAlgoraClient(
			httpclient.NewRestyClient(log, AppConfig),
			AppConfig.Bounty.Algora.BaseURL, AppConfig.Bounty.Algora.Token))
	}
	if AppConfig.Bounty.Polar.Enabled {
		platforms = append(platforms, bounty.NewPolarClient(
			httpclient.NewRestyClient(log, AppConfig),
			AppConfig.Bounty.Polar.BaseURL, AppConfig.Bounty.Polar.Token))
	}
	return platforms
}

// reportLoop logs the dashboard aggregates periodically; it is the daemon's
// stand-in for an attached presentation layer.
func reportLoop(ctx context.Context, v *view.View, log hclog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts := v.Counts()
			log.Info("pipeline report",
				"repositories_watched", counts.RepositoriesWatched,
				"vulnerabilities_tracked", counts.VulnerabilitiesTracked,
				"commits_processed_today", counts.CommitsProcessedToday,
				"needing_review", len(v.NeedingReview()),
				"claimed_bounties", len(v.ClaimedBounties()))
		}
	}
}

func init() {
	WatchCmd.Flags().StringVarP(&watchOptions.WatchlistFile, "watchlist", "w", "repositories.yml", "path to the watchlist file")
	WatchCmd.Flags().StringVar(&watchOptions.MirrorDir, "mirror-dir", "~/.patchwatch/mirrors", "directory for local repository mirrors")
}
