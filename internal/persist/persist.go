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

// Package persist keeps the per-run message catalog: every enumerated
// message, its bucket, and what happened to it. The catalog feeds the
// deletion pass (only successfully fetched messages are deleted) and
// the end-of-run summary.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vikrantb/gmailarchiver/internal/bucket"
	"github.com/vikrantb/gmailarchiver/internal/message"
)

// Status records the outcome for one catalogued message.
type Status string

const (
	// StatusEnumerated: listed, not yet fetched.
	StatusEnumerated Status = "enumerated"
	// StatusSkipped: bucket already terminal in the ledger, no
	// fetch performed.
	StatusSkipped Status = "skipped"
	// StatusFetched: raw content downloaded and written to
	// scratch.
	StatusFetched Status = "fetched"
	// StatusFetchFailed: retries exhausted or content unreadable;
	// omitted from the archive.
	StatusFetchFailed Status = "fetch_failed"
	// StatusDeleted: original removed from the mailbox.
	StatusDeleted Status = "deleted"
	// StatusDeleteFailed: deletion retries exhausted; the original
	// remains.
	StatusDeleteFailed Status = "delete_failed"
)

var createTableSQL = []string{
	// The messages table holds one row per message the archiver has
	// seen.
	//
	// Field: message_id
	//
	//   GMail API: Users.messages resource "id" field.
	//
	// Field: bucket
	//
	//   The year-month bucket key ("YYYY-MM") derived from the
	//   message's internal date.
	//
	// Field: internal_date
	//
	//   Epoch milliseconds; 0 when the mailbox reported no usable
	//   date.
	//
	// Field: size_estimate
	//
	//   GMail API: Users.messages resource "sizeEstimate" field.
	//
	// Field: status
	//
	//   One of the Status constants. Re-enumerating a message
	//   resets it to "enumerated".
	`
CREATE TABLE IF NOT EXISTS messages (
message_id TEXT NOT NULL PRIMARY KEY,
bucket TEXT NOT NULL,
internal_date INTEGER NOT NULL,
size_estimate INTEGER NOT NULL,
status TEXT NOT NULL
);`,
	`
CREATE INDEX IF NOT EXISTS messages_by_bucket ON messages (bucket, status);`,
}

// DB is the message catalog.
type DB struct {
	db *sql.DB
}

func dsnFromPath(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Path: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	// The _busy_timeout is a SQLite extension that controls how
	// long SQLite will poll before giving up. The default of 5
	// seconds is too short under concurrent writers; go with 5
	// minutes.
	var busyTimeout = int(5*time.Minute) / int(time.Millisecond)

	dsn, err := dsnFromPath(path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busyTimeout)}})
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not form a DB DSN from the given path", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not open database at %q", path, dsn)
	}

	if err = initSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not initialize the database schema", path)
	}

	return &DB{db}, nil
}

// Close closes the catalog.
func (db *DB) Close() error {
	return db.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, q := range createTableSQL {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(err, "while executing %q", q)
		}
	}
	return nil
}

// RecordEnumerated upserts a listed message, resetting its status for
// this run.
func (db *DB) RecordEnumerated(ctx context.Context, ref message.Ref, key bucket.Key) error {
	const q = `INSERT INTO messages (message_id, bucket, internal_date, size_estimate, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (message_id)
DO UPDATE SET (bucket, internal_date, size_estimate, status) = ($2, $3, $4, $5)`
	var ms int64
	if !ref.Timestamp.IsZero() {
		ms = ref.Timestamp.UnixMilli()
	}
	_, err := db.db.ExecContext(ctx, q, ref.ID, key.String(), ms, ref.SizeEstimate, string(StatusEnumerated))
	if err != nil {
		return errors.Wrapf(err, "cataloguing message %v", ref.ID)
	}
	return nil
}

// MarkStatus updates one message's outcome.
func (db *DB) MarkStatus(ctx context.Context, id string, status Status) error {
	const q = `UPDATE messages SET status = $1 WHERE message_id = $2`
	res, err := db.db.ExecContext(ctx, q, string(status), id)
	if err != nil {
		return errors.Wrapf(err, "marking message %v %s", id, status)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Errorf("marking message %v %s: not catalogued", id, status)
	}
	return nil
}

// ListByStatus streams the IDs in one bucket with the given status, in
// stable order.
func (db *DB) ListByStatus(ctx context.Context, key bucket.Key, status Status, handler func(id string) error) error {
	const q = `SELECT message_id FROM messages
WHERE bucket = $1 AND status = $2 ORDER BY internal_date, message_id`
	rows, err := db.db.QueryContext(ctx, q, key.String(), string(status))
	if err != nil {
		return errors.Wrapf(err, "listing bucket %s messages with status %s", key, status)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Wrap(err, "db scan failed in ListByStatus")
		}
		if err := handler(id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountByStatus returns the number of catalogued messages per status.
func (db *DB) CountByStatus(ctx context.Context) (map[Status]int, error) {
	const q = `SELECT status, COUNT(*) FROM messages GROUP BY status`
	rows, err := db.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "counting catalogued messages")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "db scan failed in CountByStatus")
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}
