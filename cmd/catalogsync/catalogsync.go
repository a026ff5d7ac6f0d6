package catalogsync

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchwatch/patchwatch/internal/catalog"
	"github.com/patchwatch/patchwatch/internal/resilience"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/httpclient"
	"github.com/patchwatch/patchwatch/pkg/shared/logger"
)

var (
	AppConfig *config.Config

	exampleCatalogUsage = `  # Fetch the vulnerability feed once and report the entry count
  patchwatch catalog sync

  # Fetch the feed and print every entry in severity order
  patchwatch catalog list`
)

// CatalogCmd groups the vulnerability catalog commands.
var CatalogCmd = &cobra.Command{
	Use:                   "catalog [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleCatalogUsage,
	Short:                 "Inspect the vulnerability catalog feed",
}

var catalogSyncCmd = &cobra.Command{
	Use:                   "sync",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Fetch the vulnerability feed once",
	RunE:                  runCatalogSyncCommand,
}

var catalogListCmd = &cobra.Command{
	Use:                   "list",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Fetch the feed and print the entries",
	RunE:                  runCatalogListCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func syncOnce(ctx context.Context) (*catalog.Catalog, error) {
	if err := validateCatalogConfig(AppConfig); err != nil {
		return nil, err
	}

	log := logger.NewLogger(AppConfig, "catalog")
	gateway := resilience.New(AppConfig.Services, log)
	cat := catalog.New()
	httpc := httpclient.NewRestyClient(log, AppConfig)
	syncer := catalog.NewSyncer(httpc, AppConfig.Catalog.BaseURL, AppConfig.Catalog.APIKey, gateway, cat, log)

	if err := syncer.Sync(ctx); err != nil {
		return nil, err
	}
	return cat, nil
}

func runCatalogSyncCommand(cmd *cobra.Command, args []string) error {
	cat, err := syncOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("catalog synced: %d entries\n", cat.Count())
	return nil
}

func runCatalogListCommand(cmd *cobra.Command, args []string) error {
	cat, err := syncOnce(cmd.Context())
	if err != nil {
		return err
	}

	for _, vuln := range cat.Snapshot() {
		fmt.Printf("%s\t%s\t%.1f\t%s\n", vuln.ID, vuln.Severity, vuln.Score, vuln.Summary)
	}
	return nil
}

func init() {
	CatalogCmd.AddCommand(catalogSyncCmd)
	CatalogCmd.AddCommand(catalogListCmd)
}
