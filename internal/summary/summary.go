// Package summary accumulates run statistics and renders the
// end-of-run report.
package summary

import (
	"fmt"
	"strings"
	"sync"
)

// Counters collects the outcomes of one archiver run. All methods are
// safe for concurrent use by the worker pool.
type Counters struct {
	mu sync.Mutex
	s  Snapshot
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Enumerated  int
	Skipped     int
	Fetched     int
	FetchFailed int

	BucketsArchived int
	BucketsPruned   int
	BucketsSkipped  int

	Deleted      int
	DeleteFailed int

	// RawBytes is the serialized size of everything fetched this
	// run; ArchiveBytes the compressed size of retained archives.
	RawBytes     int64
	ArchiveBytes int64
}

func (c *Counters) MessageEnumerated()     { c.add(func(s *Snapshot) { s.Enumerated++ }) }
func (c *Counters) MessageSkipped()        { c.add(func(s *Snapshot) { s.Skipped++ }) }
func (c *Counters) MessageFetched(n int64) { c.add(func(s *Snapshot) { s.Fetched++; s.RawBytes += n }) }
func (c *Counters) MessageFetchFailed()    { c.add(func(s *Snapshot) { s.FetchFailed++ }) }
func (c *Counters) MessageDeleted()        { c.add(func(s *Snapshot) { s.Deleted++ }) }
func (c *Counters) MessageDeleteFailed()   { c.add(func(s *Snapshot) { s.DeleteFailed++ }) }
func (c *Counters) BucketSkipped()         { c.add(func(s *Snapshot) { s.BucketsSkipped++ }) }
func (c *Counters) BucketPruned()          { c.add(func(s *Snapshot) { s.BucketsPruned++ }) }

func (c *Counters) BucketArchived(archiveBytes int64) {
	c.add(func(s *Snapshot) { s.BucketsArchived++; s.ArchiveBytes += archiveBytes })
}

func (c *Counters) add(f func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.s)
}

// Snapshot returns a copy of the current counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// FormatSize renders a byte count in a human-readable unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTP"[exp])
}

// Report renders the run summary. filters describes the applied
// message filters, basePath is where archives were written.
func (s Snapshot) Report(filters, basePath string, deleteRequested bool) string {
	if filters == "" {
		filters = "all messages"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Archive run complete.\n")
	fmt.Fprintf(&b, "  Filters:   %s\n", filters)
	fmt.Fprintf(&b, "  Messages:  %d enumerated, %d fetched, %d fetch failures, %d skipped (already archived)\n",
		s.Enumerated, s.Fetched, s.FetchFailed, s.Skipped)
	fmt.Fprintf(&b, "  Buckets:   %d archived, %d pruned, %d skipped\n",
		s.BucketsArchived, s.BucketsPruned, s.BucketsSkipped)
	fmt.Fprintf(&b, "  Size:      %s fetched, %s retained on disk (saved %s)\n",
		FormatSize(s.RawBytes), FormatSize(s.ArchiveBytes), FormatSize(max64(0, s.RawBytes-s.ArchiveBytes)))
	if deleteRequested {
		fmt.Fprintf(&b, "  Deletions: %d deleted, %d failed\n", s.Deleted, s.DeleteFailed)
	} else {
		fmt.Fprintf(&b, "  Deletions: not requested\n")
	}
	fmt.Fprintf(&b, "  Stored at: %s\n", basePath)
	return b.String()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
