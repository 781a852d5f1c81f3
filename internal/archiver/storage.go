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

package archiver

// This file defines the collaborator interfaces the pipeline consumes.

import (
	"context"

	"github.com/vikrantb/gmailarchiver/internal/bucket"
	"github.com/vikrantb/gmailarchiver/internal/message"
	"github.com/vikrantb/gmailarchiver/internal/persist"
)

// MessageLister enumerates all messages matching a search query.
type MessageLister interface {
	List(ctx context.Context, query string, handler func(message.Ref) error) error
}

// MessageFetcher retrieves full message content.
type MessageFetcher interface {
	Fetch(ctx context.Context, id string) (*message.Body, error)
}

// MessageDeleter removes a message from the remote mailbox.
type MessageDeleter interface {
	Delete(ctx context.Context, id string) error
}

// MailService provides all remote mailbox operations the pipeline
// needs.
type MailService interface {
	MessageLister
	MessageFetcher
	MessageDeleter
}

// Catalog records per-message outcomes for the deletion pass and the
// run summary.
type Catalog interface {
	RecordEnumerated(ctx context.Context, ref message.Ref, key bucket.Key) error
	MarkStatus(ctx context.Context, id string, status persist.Status) error
	ListByStatus(ctx context.Context, key bucket.Key, status persist.Status, handler func(id string) error) error
}
