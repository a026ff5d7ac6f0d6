package catalog

import (
	"sort"
	"sync/atomic"

	"github.com/patchwatch/patchwatch/internal/model"
)

// Catalog is the read-mostly vulnerability catalog. Sync replaces the whole
// entry set with an atomic swap; concurrent readers always see a complete
// snapshot, never a partially updated one.
type Catalog struct {
	snapshot atomic.Value // []model.Vulnerability
}

// New builds an empty catalog.
func New() *Catalog {
	c := &Catalog{}
	c.snapshot.Store([]model.Vulnerability{})
	return c
}

// Swap atomically replaces the catalog contents. Entries are sorted by
// severity tier, then recency, so readers get a stable order.
func (c *Catalog) Swap(entries []model.Vulnerability) {
	sorted := make([]model.Vulnerability, len(entries))
	copy(sorted, entries)
	SortBySeverity(sorted)
	c.snapshot.Store(sorted)
}

// Snapshot returns the current entry set. The returned slice must not be
// mutated by callers.
func (c *Catalog) Snapshot() []model.Vulnerability {
	return c.snapshot.Load().([]model.Vulnerability)
}

// ForLanguage returns the entries whose ecosystem tags intersect language.
func (c *Catalog) ForLanguage(language string) []model.Vulnerability {
	var out []model.Vulnerability
	for _, v := range c.Snapshot() {
		if v.AffectsLanguage(language) {
			out = append(out, v)
		}
	}
	return out
}

// Get returns the catalog entry with the given identifier.
func (c *Catalog) Get(id string) (model.Vulnerability, bool) {
	for _, v := range c.Snapshot() {
		if v.ID == id {
			return v, true
		}
	}
	return model.Vulnerability{}, false
}

// Count returns the number of tracked vulnerabilities.
func (c *Catalog) Count() int {
	return len(c.Snapshot())
}

// SortBySeverity orders entries by severity tier descending, then by
// publication time descending, then by identifier for determinism.
func SortBySeverity(entries []model.Vulnerability) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Severity.Rank() != entries[j].Severity.Rank() {
			return entries[i].Severity.Rank() > entries[j].Severity.Rank()
		}
		if !entries[i].PublishedAt.Equal(entries[j].PublishedAt) {
			return entries[i].PublishedAt.After(entries[j].PublishedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}
