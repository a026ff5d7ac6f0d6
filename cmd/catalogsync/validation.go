package catalogsync

import (
	"fmt"

	"github.com/patchwatch/patchwatch/pkg/shared/config"
)

// validateCatalogConfig checks the settings the catalog commands need.
func validateCatalogConfig(cfg *config.Config) error {
	if cfg == nil || cfg.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be configured")
	}
	return nil
}
