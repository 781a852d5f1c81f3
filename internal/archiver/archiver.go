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

// Package archiver runs the archival pipeline: enumerate matching
// messages, fetch them under bounded concurrency into per-bucket
// scratch stores, compact each drained bucket into a zip archive,
// prune archives under the size floor, commit terminal buckets to the
// progress ledger, and — only for buckets committed ARCHIVED — delete
// the originals when requested.
package archiver

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vikrantb/gmailarchiver/internal/bucket"
	"github.com/vikrantb/gmailarchiver/internal/config"
	"github.com/vikrantb/gmailarchiver/internal/ledger"
	"github.com/vikrantb/gmailarchiver/internal/message"
	"github.com/vikrantb/gmailarchiver/internal/persist"
	"github.com/vikrantb/gmailarchiver/internal/query"
	"github.com/vikrantb/gmailarchiver/internal/scratch"
	"github.com/vikrantb/gmailarchiver/internal/summary"
)

const refQueueDepth = 1000

// Archiver coordinates one archive run.
type Archiver struct {
	cfg      *config.Config
	mail     MailService
	catalog  Catalog
	ledger   *ledger.Ledger
	store    *scratch.Store
	log      *slog.Logger
	counters summary.Counters

	mu      sync.Mutex
	skipped map[bucket.Key]bool
}

// New wires an Archiver from its collaborators. The ledger and catalog
// must already be open.
func New(cfg *config.Config, mail MailService, catalog Catalog, led *ledger.Ledger, logger *slog.Logger) *Archiver {
	return &Archiver{
		cfg:     cfg,
		mail:    mail,
		catalog: catalog,
		ledger:  led,
		store:   scratch.NewStore(cfg.BasePath, logger),
		log:     logger.With("component", "archiver"),
		skipped: make(map[bucket.Key]bool),
	}
}

// Run executes the pipeline and returns the run statistics. The
// returned error is fatal-class only (cancellation, ledger or
// filesystem failure); per-message and per-bucket failures are counted
// and logged but never abort the run.
func (a *Archiver) Run(ctx context.Context) (summary.Snapshot, error) {
	q := query.Build(a.cfg.Filter)
	a.log.Info("starting archive run", "query", q, "workers", a.cfg.Workers, "delete", a.cfg.Delete)

	if err := a.fetchPhase(ctx, q); err != nil {
		return a.counters.Snapshot(), errors.Wrap(err, "fetch phase failed")
	}
	archived, err := a.compactPhase()
	if err != nil {
		return a.counters.Snapshot(), errors.Wrap(err, "compaction phase failed")
	}
	if a.cfg.Delete {
		if err := a.deletePhase(ctx, archived); err != nil {
			return a.counters.Snapshot(), errors.Wrap(err, "deletion phase failed")
		}
	}
	return a.counters.Snapshot(), nil
}

// fetchPhase streams enumeration into a bounded worker pool. It
// returns once the queue is drained and every in-flight fetch has
// settled.
func (a *Archiver) fetchPhase(ctx context.Context, q string) error {
	grp, ctx := errgroup.WithContext(ctx)
	refs := make(chan message.Ref, refQueueDepth)

	grp.Go(func() error {
		defer close(refs)
		return a.mail.List(ctx, q, func(ref message.Ref) error {
			a.counters.MessageEnumerated()
			if err := a.catalog.RecordEnumerated(ctx, ref, bucket.KeyFor(ref.Timestamp)); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case refs <- ref:
				return nil
			}
		})
	})

	for i := 0; i < a.cfg.Workers; i++ {
		grp.Go(func() error {
			for ref := range refs {
				if err := a.handle(ctx, ref); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return grp.Wait()
}

// handle processes one enumerated message. Only fatal-class errors are
// returned; a failed fetch is recorded and the message skipped.
func (a *Archiver) handle(ctx context.Context, ref message.Ref) error {
	key := bucket.KeyFor(ref.Timestamp)

	if status, done := a.ledger.Status(key); done {
		a.noteSkippedBucket(key, status)
		a.counters.MessageSkipped()
		return a.catalog.MarkStatus(ctx, ref.ID, persist.StatusSkipped)
	}

	body, err := a.mail.Fetch(ctx, ref.ID)
	if err != nil {
		if cause := errors.Cause(err); cause == context.Canceled || cause == context.DeadlineExceeded {
			return err
		}
		a.log.Warn("fetch failed, message will be absent from its archive",
			"id", ref.ID, "bucket", key.String(), "error", err)
		a.counters.MessageFetchFailed()
		return a.catalog.MarkStatus(ctx, ref.ID, persist.StatusFetchFailed)
	}

	if err := a.store.Append(key, body); err != nil {
		return err
	}
	a.counters.MessageFetched(int64(len(body.Raw)))
	return a.catalog.MarkStatus(ctx, ref.ID, persist.StatusFetched)
}

func (a *Archiver) noteSkippedBucket(key bucket.Key, status ledger.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.skipped[key] {
		a.skipped[key] = true
		a.counters.BucketSkipped()
		a.log.Info("bucket already archived, skipping", "bucket", key.String(), "status", string(status))
	}
}

// compactPhase seals every open bucket, applies the retention floor,
// and commits terminal states to the ledger. Returns the keys
// committed ARCHIVED this run. A compression failure leaves its bucket
// unsealed for the next run; ledger and filesystem failures are fatal.
func (a *Archiver) compactPhase() ([]bucket.Key, error) {
	var archived []bucket.Key
	for _, key := range a.store.Keys() {
		res, err := a.store.Seal(key)
		if err != nil {
			a.log.Error("compaction failed, bucket will be retried on the next run",
				"bucket", key.String(), "error", err)
			continue
		}

		if res.Size < a.cfg.MinArchiveSize {
			if err := os.Remove(res.ArchivePath); err != nil {
				return archived, errors.Wrapf(err, "removing undersized archive %q", res.ArchivePath)
			}
			if err := a.ledger.Commit(key, ledger.StatusPruned); err != nil {
				return archived, err
			}
			a.counters.BucketPruned()
			a.log.Info("archive under size floor, pruned",
				"bucket", key.String(), "bytes", res.Size, "floor", a.cfg.MinArchiveSize)
			continue
		}

		if err := a.ledger.Commit(key, ledger.StatusArchived); err != nil {
			return archived, err
		}
		a.counters.BucketArchived(res.Size)
		archived = append(archived, key)
	}
	return archived, nil
}

// deletePhase removes originals of messages fetched this run, only for
// buckets committed ARCHIVED. Pruned buckets keep their originals: a
// discarded archive means the local copy is gone, so deleting the
// source would lose the messages.
func (a *Archiver) deletePhase(ctx context.Context, archived []bucket.Key) error {
	for _, key := range archived {
		err := a.catalog.ListByStatus(ctx, key, persist.StatusFetched, func(id string) error {
			if err := a.mail.Delete(ctx, id); err != nil {
				if cause := errors.Cause(err); cause == context.Canceled || cause == context.DeadlineExceeded {
					return err
				}
				a.log.Warn("delete failed, original retained", "id", id, "error", err)
				a.counters.MessageDeleteFailed()
				return a.catalog.MarkStatus(ctx, id, persist.StatusDeleteFailed)
			}
			a.counters.MessageDeleted()
			return a.catalog.MarkStatus(ctx, id, persist.StatusDeleted)
		})
		if err != nil {
			return errors.Wrapf(err, "deleting originals for bucket %s", key)
		}
	}
	return nil
}
