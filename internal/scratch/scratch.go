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

// Package scratch accumulates fetched messages per bucket and compacts
// each bucket into a single zip archive.
package scratch

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/vikrantb/gmailarchiver/internal/bucket"
	"github.com/vikrantb/gmailarchiver/internal/message"
)

// Store manages the scratch directories of all open buckets under one
// base path. Appends to a single bucket are serialized; different
// buckets are independent.
type Store struct {
	base string
	log  *slog.Logger

	mu      sync.Mutex
	buckets map[bucket.Key]*state
}

type state struct {
	mu     sync.Mutex
	sealed bool
	files  int
	bytes  int64
}

// NewStore returns a Store rooted at base.
func NewStore(base string, logger *slog.Logger) *Store {
	return &Store{
		base:    base,
		log:     logger.With("component", "scratch"),
		buckets: make(map[bucket.Key]*state),
	}
}

func (s *Store) state(key bucket.Key) (*state, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.buckets[key]; ok {
		return st, nil
	}

	// First message for this bucket. A leftover scratch directory
	// from an interrupted run holds an unknown subset of the
	// bucket; discard it and refetch everything.
	dir := key.ScratchDir(s.base)
	if _, err := os.Stat(dir); err == nil {
		s.log.Warn("discarding stale scratch directory", "bucket", key.String(), "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			return nil, errors.Wrapf(err, "removing stale scratch directory %q", dir)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating scratch directory %q", dir)
	}
	st := &state{}
	s.buckets[key] = st
	return st, nil
}

// Append writes one fetched message into key's scratch directory.
// Returns an error if the bucket has already been sealed.
func (s *Store) Append(key bucket.Key, body *message.Body) error {
	st, err := s.state(key)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sealed {
		return errors.Errorf("bucket %s is sealed, no appends accepted", key)
	}

	name := fmt.Sprintf("%d_%s.eml", body.Timestamp.Unix(), body.ID)
	path := filepath.Join(key.ScratchDir(s.base), name)
	if err := os.WriteFile(path, body.Raw, 0644); err != nil {
		return errors.Wrapf(err, "writing message %s to scratch", body.ID)
	}
	st.files++
	st.bytes += int64(len(body.Raw))
	return nil
}

// Keys returns the open (unsealed) buckets in deterministic order.
func (s *Store) Keys() []bucket.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]bucket.Key, 0, len(s.buckets))
	for k, st := range s.buckets {
		if !st.sealed {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		return keys[i].Month < keys[j].Month
	})
	return keys
}

// Result describes a sealed bucket's archive.
type Result struct {
	ArchivePath string
	Size        int64

	// Messages and RawBytes describe the scratch content that went
	// into the archive.
	Messages int
	RawBytes int64
}

// Seal compacts key's scratch directory into its zip archive, removes
// the scratch directory, and returns the archive's path and size. The
// bucket accepts no appends afterwards.
func (s *Store) Seal(key bucket.Key) (*Result, error) {
	st, err := s.state(key)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sealed {
		return nil, errors.Errorf("bucket %s already sealed", key)
	}
	st.sealed = true

	dir := key.ScratchDir(s.base)
	archive := key.ArchivePath(s.base)
	if err := compress(dir, archive); err != nil {
		// Leave the bucket unsealed on disk so the next run
		// retries it; the sealed flag only blocks this run.
		os.Remove(archive)
		return nil, errors.Wrapf(err, "compacting bucket %s", key)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Wrapf(err, "removing scratch directory %q", dir)
	}

	info, err := os.Stat(archive)
	if err != nil {
		return nil, errors.Wrapf(err, "measuring archive %q", archive)
	}
	s.log.Info("bucket compacted", "bucket", key.String(),
		"messages", st.files, "raw_bytes", st.bytes, "archive_bytes", info.Size())
	return &Result{
		ArchivePath: archive,
		Size:        info.Size(),
		Messages:    st.files,
		RawBytes:    st.bytes,
	}, nil
}

func compress(dir, archive string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	out, err := os.Create(archive)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addFile(zw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
