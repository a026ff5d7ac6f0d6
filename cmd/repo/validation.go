package repo

import "fmt"

// validateRepoAddArgs validates the arguments provided to the repo add command.
func validateRepoAddArgs(options *RunOptionsRepo, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one repository URL is required")
	}
	if options.Language == "" {
		return fmt.Errorf("the 'language' flag must be specified")
	}
	if options.WatchlistFile == "" {
		return fmt.Errorf("the 'watchlist' flag must not be empty")
	}
	return nil
}
