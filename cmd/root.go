package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patchwatch/patchwatch/cmd/catalogsync"
	"github.com/patchwatch/patchwatch/cmd/repo"
	"github.com/patchwatch/patchwatch/cmd/version"
	"github.com/patchwatch/patchwatch/cmd/watch"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "patchwatch [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Patchwatch watches repositories for vulnerable commits and drives their remediation.",
		Long: `Patchwatch correlates newly pushed commits against a vulnerability catalog,
verifies whether a vulnerability is really present, generates and verifies a fix,
and submits the remediation as a change request. Merged remediations are matched
to open bounties on the configured platforms.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yml)")
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(repo.RepoCmd)
	rootCmd.AddCommand(watch.WatchCmd)
	rootCmd.AddCommand(catalogsync.CatalogCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		return 1
	}
	return 0
}

func initConfig() {
	var err error

	if cfgFile == "" {
		cfgFile = "config.yml"
	}
	AppConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %q: %v\n", cfgFile, err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	repo.Init(AppConfig)
	watch.Init(AppConfig)
	catalogsync.Init(AppConfig)
}
