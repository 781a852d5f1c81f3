// Package bucket maps message timestamps to the year/month grouping
// unit used for archives, and names the on-disk locations belonging to
// each group.
package bucket

import (
	"fmt"
	"path/filepath"
	"time"
)

// Key is a year/month archive group. The zero Key is the "unknown"
// bucket, holding messages whose timestamp could not be determined.
type Key struct {
	Year  int
	Month time.Month
}

// Unknown is the bucket for messages without a usable timestamp.
var Unknown = Key{}

// KeyFor assigns a timestamp to its bucket. Zero times map to the
// unknown bucket rather than being dropped.
func KeyFor(t time.Time) Key {
	if t.IsZero() {
		return Unknown
	}
	return Key{Year: t.Year(), Month: t.Month()}
}

// String renders the key as "YYYY-MM", the form used in the progress
// ledger.
func (k Key) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	var year, month int
	if _, err := fmt.Sscanf(s, "%d-%d", &year, &month); err != nil {
		return Key{}, fmt.Errorf("malformed bucket key %q: %v", s, err)
	}
	if month < 0 || month > 12 {
		return Key{}, fmt.Errorf("malformed bucket key %q: month out of range", s)
	}
	return Key{Year: year, Month: time.Month(month)}, nil
}

// ScratchDir is the transient per-bucket directory where fetched
// messages accumulate before compaction.
func (k Key) ScratchDir(base string) string {
	return filepath.Join(base, fmt.Sprintf("%04d", k.Year), fmt.Sprintf("%02d", int(k.Month)))
}

// ArchivePath is the final compressed archive file for the bucket,
// `<base>/<YYYY>/<MM>.zip`.
func (k Key) ArchivePath(base string) string {
	return k.ScratchDir(base) + ".zip"
}
