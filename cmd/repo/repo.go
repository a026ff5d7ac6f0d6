package repo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patchwatch/patchwatch/internal/registry"
	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/vcsurl"
)

// RunOptionsRepo holds the arguments for the repo subcommands.
type RunOptionsRepo struct {
	WatchlistFile string
	Language      string
}

var (
	AppConfig   *config.Config
	repoOptions RunOptionsRepo

	exampleRepoUsage = `  # Add a repository to the watchlist
  patchwatch repo add --language go https://github.com/acme/widget

  # List the watched repositories
  patchwatch repo list`
)

// RepoCmd groups the watchlist management commands.
var RepoCmd = &cobra.Command{
	Use:                   "repo [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleRepoUsage,
	Short:                 "Manage the repository watchlist",
}

var repoAddCmd = &cobra.Command{
	Use:                   "add --language/-l LANGUAGE [--watchlist/-w PATH] URL",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Add a repository to the watchlist",
	RunE:                  runRepoAddCommand,
}

var repoListCmd = &cobra.Command{
	Use:                   "list [--watchlist/-w PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "List the watched repositories",
	RunE:                  runRepoListCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func runRepoAddCommand(cmd *cobra.Command, args []string) error {
	if err := validateRepoAddArgs(&repoOptions, args); err != nil {
		return err
	}

	parsed, err := vcsurl.ParseRepositoryURL(args[0])
	if err != nil {
		return fmt.Errorf("invalid repository URL: %w", err)
	}

	entries, err := registry.LoadFile(repoOptions.WatchlistFile)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.URL == parsed.HTTPUrl {
			// Duplicate registration is a signal, not an error.
			fmt.Printf("already watching %s\n", parsed.HTTPUrl)
			return nil
		}
	}

	entries = append(entries, registry.FileEntry{URL: parsed.HTTPUrl, Language: repoOptions.Language})
	if err := registry.SaveFile(repoOptions.WatchlistFile, entries); err != nil {
		return err
	}

	fmt.Printf("watching %s (%s)\n", parsed.HTTPUrl, repoOptions.Language)
	return nil
}

func runRepoListCommand(cmd *cobra.Command, args []string) error {
	entries, err := registry.LoadFile(repoOptions.WatchlistFile)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no repositories watched")
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%s\t%s\n", entry.URL, entry.Language)
	}
	return nil
}

func init() {
	RepoCmd.PersistentFlags().StringVarP(&repoOptions.WatchlistFile, "watchlist", "w", "repositories.yml", "path to the watchlist file")
	repoAddCmd.Flags().StringVarP(&repoOptions.Language, "language", "l", "", "primary language of the repository")

	RepoCmd.AddCommand(repoAddCmd)
	RepoCmd.AddCommand(repoListCmd)
}
