package registry

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/patchwatch/patchwatch/pkg/shared/errors"
	"github.com/patchwatch/patchwatch/pkg/shared/files"
)

// FileEntry is one repository in the watchlist file.
type FileEntry struct {
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
}

type watchlist struct {
	Repositories []FileEntry `yaml:"repositories"`
}

// LoadFile reads the watchlist. A missing file is an empty watchlist.
func LoadFile(path string) ([]FileEntry, error) {
	expanded, err := files.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return nil, nil
	}

	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("reading watchlist %q: %w", path, err)
	}

	var list watchlist
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parsing watchlist %q: %w", path, err)
	}
	return list.Repositories, nil
}

// SaveFile writes the watchlist.
func SaveFile(path string, entries []FileEntry) error {
	expanded, err := files.ExpandPath(path)
	if err != nil {
		return err
	}

	raw, err := yaml.Marshal(watchlist{Repositories: entries})
	if err != nil {
		return fmt.Errorf("encoding watchlist: %w", err)
	}
	if err := os.WriteFile(expanded, raw, 0644); err != nil {
		return fmt.Errorf("writing watchlist %q: %w", path, err)
	}
	return nil
}

// Seed registers every watchlist entry, absorbing duplicates.
func (r *Registry) Seed(entries []FileEntry) error {
	for _, entry := range entries {
		if _, err := r.Register(entry.URL, entry.Language); err != nil {
			if errors.IsConflict(err) {
				continue
			}
			return fmt.Errorf("registering %q: %w", entry.URL, err)
		}
	}
	return nil
}
