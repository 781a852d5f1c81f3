package summary

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCountersConcurrent(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.MessageEnumerated()
			c.MessageFetched(10)
		}()
	}
	wg.Wait()
	c.BucketArchived(512)
	c.BucketPruned()

	got := c.Snapshot()
	want := Snapshot{
		Enumerated:      100,
		Fetched:         100,
		RawBytes:        1000,
		BucketsArchived: 1,
		BucketsPruned:   1,
		ArchiveBytes:    512,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.00 KB"},
		{500 * 1024, "500.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.n); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestReport(t *testing.T) {
	s := Snapshot{Enumerated: 3, Fetched: 2, FetchFailed: 1, BucketsArchived: 1}
	r := s.Report("label:receipts", "/tmp/archive", false)
	for _, want := range []string{"label:receipts", "3 enumerated", "2 fetched", "not requested", "/tmp/archive"} {
		if !strings.Contains(r, want) {
			t.Errorf("Report missing %q:\n%s", want, r)
		}
	}

	r = Snapshot{Deleted: 4}.Report("", "/tmp/archive", true)
	if !strings.Contains(r, "all messages") {
		t.Errorf("Report with no filters missing default description:\n%s", r)
	}
	if !strings.Contains(r, "4 deleted") {
		t.Errorf("Report missing deletion count:\n%s", r)
	}
}
