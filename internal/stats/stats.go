package stats

import (
	"sync"
	"time"
)

// Collector counts processed commits with a per-day bucket. It is the
// read-only side observer of the pipeline; nothing in the pipeline depends on
// its numbers.
type Collector struct {
	mu           sync.Mutex
	now          func() time.Time
	day          string
	commitsToday int
	commitsTotal int64
}

// NewCollector creates a Collector using wall-clock time.
func NewCollector() *Collector {
	return newCollector(time.Now)
}

func newCollector(now func() time.Time) *Collector {
	c := &Collector{now: now}
	c.day = c.today()
	return c
}

func (c *Collector) today() string {
	return c.now().UTC().Format("2006-01-02")
}

// rollover resets the daily bucket when the UTC day changes. Callers hold c.mu.
func (c *Collector) rollover() {
	if day := c.today(); day != c.day {
		c.day = day
		c.commitsToday = 0
	}
}

// RecordCommits counts n processed commits.
func (c *Collector) RecordCommits(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	c.commitsToday += n
	c.commitsTotal += int64(n)
}

// CommitsToday returns the commits processed in the current UTC day.
func (c *Collector) CommitsToday() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.commitsToday
}

// CommitsTotal returns the commits processed since startup.
func (c *Collector) CommitsTotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitsTotal
}
