package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/internal/resilience"
)

// ServiceKey is the resilience gateway dependency key for the catalog feed.
const ServiceKey = "catalog"

// catalogEntry is the wire shape of one record in the vulnerability feed.
type catalogEntry struct {
	ID                string   `json:"cve_id"`
	Summary           string   `json:"summary"`
	Severity          string   `json:"severity"`
	Score             float64  `json:"score"`
	Ecosystems        []string `json:"ecosystems"`
	VulnerablePattern string   `json:"vulnerable_pattern"`
	FixedPattern      string   `json:"fixed_pattern"`
	Published         string   `json:"published"`
}

type catalogPage struct {
	Entries []catalogEntry `json:"vulnerabilities"`
	Total   int            `json:"total"`
}

// Syncer refreshes the catalog wholesale from the vulnerability feed.
type Syncer struct {
	httpc   *resty.Client
	gateway *resilience.Gateway
	catalog *Catalog
	logger  hclog.Logger
}

// NewSyncer builds a catalog syncer on an existing resty client.
func NewSyncer(httpc *resty.Client, baseURL, apiKey string, gateway *resilience.Gateway, catalog *Catalog, logger hclog.Logger) *Syncer {
	client := httpc.SetBaseURL(baseURL)
	if apiKey != "" {
		client.SetHeader("apiKey", apiKey)
	}
	return &Syncer{
		httpc:   client,
		gateway: gateway,
		catalog: catalog,
		logger:  logger,
	}
}

// Sync fetches the full feed through the gateway and swaps the catalog.
// On any failure the previous snapshot stays in place.
func (s *Syncer) Sync(ctx context.Context) error {
	page, err := resilience.Call(ctx, s.gateway, ServiceKey, s.fetchAll)
	if err != nil {
		return fmt.Errorf("catalog sync failed: %w", err)
	}

	entries := make([]model.Vulnerability, 0, len(page.Entries))
	for _, e := range page.Entries {
		entries = append(entries, toVulnerability(e))
	}

	s.catalog.Swap(entries)
	s.logger.Info("catalog refreshed", "entries", len(entries))
	return nil
}

// Run refreshes the catalog on the given interval until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("scheduled catalog sync failed", "error", err)
			}
		}
	}
}

func (s *Syncer) fetchAll(ctx context.Context) (catalogPage, error) {
	var page catalogPage
	resp, err := s.httpc.R().
		SetContext(ctx).
		SetResult(&page).
		Get("/vulnerabilities")
	if err != nil {
		return page, err
	}
	if resp.StatusCode() != http.StatusOK {
		return page, fmt.Errorf("%d on fetching vulnerabilities", resp.StatusCode())
	}
	return page, nil
}

func toVulnerability(e catalogEntry) model.Vulnerability {
	published, err := time.Parse(time.RFC3339, e.Published)
	if err != nil {
		published = time.Time{}
	}
	return model.Vulnerability{
		ID:                e.ID,
		Summary:           e.Summary,
		Severity:          model.ParseSeverity(e.Severity),
		Score:             e.Score,
		Ecosystems:        e.Ecosystems,
		VulnerablePattern: e.VulnerablePattern,
		FixedPattern:      e.FixedPattern,
		PublishedAt:       published,
	}
}
