package catalog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/patchwatch/patchwatch/internal/model"
)

func entry(id string, severity model.Severity, published time.Time, ecosystems ...string) model.Vulnerability {
	return model.Vulnerability{ID: id, Severity: severity, PublishedAt: published, Ecosystems: ecosystems}
}

func TestForLanguage(t *testing.T) {
	c := New()
	now := time.Now()
	c.Swap([]model.Vulnerability{
		entry("CVE-2024-0001", model.SeverityCritical, now, "go", "rust"),
		entry("CVE-2024-0002", model.SeverityHigh, now, "javascript"),
		entry("CVE-2024-0003", model.SeverityLow, now, "Go"),
	})

	matched := c.ForLanguage("go")
	assert.Len(t, matched, 2, "ecosystem matching is case-insensitive")
	assert.Equal(t, "CVE-2024-0001", matched[0].ID)
}

func TestSortBySeverityThenRecency(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	c := New()
	c.Swap([]model.Vulnerability{
		entry("CVE-2024-0010", model.SeverityLow, newer, "go"),
		entry("CVE-2024-0011", model.SeverityCritical, older, "go"),
		entry("CVE-2024-0012", model.SeverityCritical, newer, "go"),
		entry("CVE-2024-0013", model.SeverityHigh, newer, "go"),
	})

	got := c.Snapshot()
	ids := []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
	assert.Equal(t, []string{"CVE-2024-0012", "CVE-2024-0011", "CVE-2024-0013", "CVE-2024-0010"}, ids)
}

func TestConcurrentSwapAndRead(t *testing.T) {
	c := New()
	now := time.Now()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.Swap([]model.Vulnerability{
				entry("CVE-2024-0001", model.SeverityCritical, now, "go"),
				entry("CVE-2024-0002", model.SeverityHigh, now, "go"),
			})
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := c.Snapshot()
			// Readers see either the empty initial set or a complete swap,
			// never a half-written one.
			assert.True(t, len(snap) == 0 || len(snap) == 2)
		}
	}()

	wg.Wait()
}
