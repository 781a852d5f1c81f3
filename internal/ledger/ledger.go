// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledger records which buckets have been fully archived. The
// ledger file is the sole authority consulted on resume: a bucket with
// a terminal entry is never fetched, compacted, or deleted again.
package ledger

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vikrantb/gmailarchiver/internal/bucket"
)

// Status is the terminal outcome recorded for a bucket.
type Status string

const (
	// StatusArchived means the bucket's archive was written and
	// retained.
	StatusArchived Status = "ARCHIVED"

	// StatusPruned means the bucket's archive fell below the size
	// floor and was discarded.
	StatusPruned Status = "PRUNED"
)

// FileName is the ledger's file name under the archive base path.
const FileName = "processed.log"

// Ledger is an append-only record of terminal buckets. Commits are
// serialized and synced to disk before they are acknowledged; all
// other components treat a successful Commit as the durability
// barrier.
type Ledger struct {
	log *slog.Logger

	mu      sync.Mutex
	f       *os.File
	entries map[bucket.Key]Status
}

// Open loads the ledger at path, creating it if absent. Malformed
// lines are an error: silently skipping a record could re-process a
// bucket that was already archived.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening ledger %q", path)
	}

	l := &Ledger{
		log:     logger.With("component", "ledger"),
		f:       f,
		entries: make(map[bucket.Key]Status),
	}
	if err := l.replay(path); err != nil {
		f.Close()
		return nil, err
	}
	l.log.Info("ledger loaded", "path", path, "buckets", len(l.entries))
	return l, nil
}

func (l *Ledger) replay(path string) error {
	scanner := bufio.NewScanner(l.f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return errors.Errorf("ledger %q line %d: malformed entry %q", path, line, text)
		}
		key, err := bucket.ParseKey(fields[0])
		if err != nil {
			return errors.Wrapf(err, "ledger %q line %d", path, line)
		}
		status := Status(fields[1])
		if status != StatusArchived && status != StatusPruned {
			return errors.Errorf("ledger %q line %d: unknown status %q", path, line, fields[1])
		}
		l.entries[key] = status
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "reading ledger %q", path)
	}
	return nil
}

// Status returns the recorded status for key and whether an entry
// exists.
func (l *Ledger) Status(key bucket.Key) (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.entries[key]
	return s, ok
}

// Commit appends a terminal entry for key and syncs it to disk. A
// second commit for the same key is rejected: terminal states never
// change.
func (l *Ledger) Commit(key bucket.Key, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prior, ok := l.entries[key]; ok {
		return errors.Errorf("bucket %s already committed as %s", key, prior)
	}

	record := fmt.Sprintf("%s %s %d\n", key, status, time.Now().Unix())
	if _, err := l.f.WriteString(record); err != nil {
		return errors.Wrapf(err, "appending ledger entry for bucket %s", key)
	}
	if err := l.f.Sync(); err != nil {
		return errors.Wrapf(err, "syncing ledger entry for bucket %s", key)
	}
	l.entries[key] = status
	l.log.Info("bucket committed", "bucket", key.String(), "status", string(status))
	return nil
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
