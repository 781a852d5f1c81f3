package scratch

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vikrantb/gmailarchiver/internal/bucket"
	"github.com/vikrantb/gmailarchiver/internal/message"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func body(id string, ts time.Time, raw string) *message.Body {
	return &message.Body{
		Ref: message.Ref{ID: id, Timestamp: ts, SizeEstimate: int64(len(raw))},
		Raw: []byte(raw),
	}
}

func TestAppendAndSeal(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base, discard())
	key := bucket.Key{Year: 2020, Month: time.January}
	ts := time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC)

	if err := s.Append(key, body("a", ts, "first message")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(key, body("b", ts.Add(time.Hour), "second message")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	res, err := s.Seal(key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if res.Messages != 2 {
		t.Errorf("Result.Messages = %d, want 2", res.Messages)
	}
	if want := int64(len("first message") + len("second message")); res.RawBytes != want {
		t.Errorf("Result.RawBytes = %d, want %d", res.RawBytes, want)
	}
	if want := key.ArchivePath(base); res.ArchivePath != want {
		t.Errorf("Result.ArchivePath = %q, want %q", res.ArchivePath, want)
	}

	// Scratch directory is gone, archive holds both messages.
	if _, err := os.Stat(key.ScratchDir(base)); !os.IsNotExist(err) {
		t.Errorf("scratch dir still present after seal (stat err = %v)", err)
	}
	zr, err := zip.OpenReader(res.ArchivePath)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Errorf("archive holds %d files, want 2", len(zr.File))
	}
}

func TestSealedBucketRejectsAppends(t *testing.T) {
	s := NewStore(t.TempDir(), discard())
	key := bucket.Key{Year: 2021, Month: time.June}
	ts := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append(key, body("a", ts, "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Seal(key); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(key, body("b", ts, "y")); err == nil {
		t.Error("Append after Seal succeeded, want error")
	}
	if _, err := s.Seal(key); err == nil {
		t.Error("second Seal succeeded, want error")
	}
}

func TestStaleScratchDiscarded(t *testing.T) {
	base := t.TempDir()
	key := bucket.Key{Year: 2020, Month: time.January}
	dir := key.ScratchDir(base)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "0_stale.eml")
	if err := os.WriteFile(stale, []byte("leftover"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(base, discard())
	ts := time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC)
	if err := s.Append(key, body("a", ts, "fresh")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale scratch file survived (stat err = %v)", err)
	}
}

func TestConcurrentAppendsToOneBucket(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base, discard())
	key := bucket.Key{Year: 2020, Month: time.March}
	ts := time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Append(key, body(fmt.Sprintf("m%d", i), ts, "payload"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	res, err := s.Seal(key)
	if err != nil {
		t.Fatal(err)
	}
	if res.Messages != n {
		t.Errorf("Result.Messages = %d, want %d", res.Messages, n)
	}
}

func TestKeysSorted(t *testing.T) {
	s := NewStore(t.TempDir(), discard())
	for _, ts := range []time.Time{
		time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.December, 1, 0, 0, 0, 0, time.UTC),
	} {
		if err := s.Append(bucket.KeyFor(ts), body(ts.String(), ts, "x")); err != nil {
			t.Fatal(err)
		}
	}
	keys := s.Keys()
	want := []bucket.Key{
		{Year: 2020, Month: time.January},
		{Year: 2020, Month: time.December},
		{Year: 2021, Month: time.June},
	}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}
