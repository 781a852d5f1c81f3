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

// Package gmail adapts the GMail API to the archiver: enumeration,
// raw-content fetch, and deletion, all behind a shared rate limiter
// and the run's retry policy.
package gmail

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	gmail_api "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vikrantb/gmailarchiver/internal/message"
	"github.com/vikrantb/gmailarchiver/internal/retry"
)

const (
	// Scope is the OAuth scope required; full mailbox access is
	// needed because the archiver can delete messages.
	Scope = gmail_api.MailGoogleComScope

	// See https://developers.google.com/gmail/api/v1/reference/quota
	quotaUnitsPerMessagesGet    = 5
	quotaUnitsPerMessagesList   = 1
	quotaUnitsPerMessagesDelete = 10

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond

	listPageSize = 500
)

var (
	// ErrMessageNotFound reports a message that exists in a listing
	// but cannot be fetched; callers skip it.
	ErrMessageNotFound = errors.New("gmail message not found")
)

// Service provides rate-limited access to messages stored in Google's
// GMail system.
type Service struct {
	service *gmail_api.Service
	limiter *rate.Limiter
	retry   retry.Policy
	log     *slog.Logger
}

// New wraps an authenticated HTTP client.
func New(ctx context.Context, client *http.Client, policy retry.Policy, logger *slog.Logger) (*Service, error) {
	s, err := gmail_api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "initializing gmail service")
	}
	return &Service{
		service: s,
		limiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
		retry:   policy,
		log:     logger.With("component", "gmail"),
	}, nil
}

// classify maps GMail API failures onto the retry taxonomy: rate
// limiting and server unavailability are transient, auth failures and
// missing messages are not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch cause := errors.Cause(err).(type) {
	case *googleapi.Error:
		switch cause.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable:
			return retry.Transient(err)
		case http.StatusNotFound:
			return ErrMessageNotFound
		}
	}
	return err
}

// List enumerates all messages matching q and calls handler with a Ref
// for each. Enumeration restarts from the beginning on every run; no
// cursor survives the process. A message whose metadata cannot be
// fetched is logged and skipped, never fatal for the run.
func (s *Service) List(ctx context.Context, q string, handler func(message.Ref) error) error {
	msgs := gmail_api.NewUsersMessagesService(s.service)
	total := 0
	pageToken := ""
	for {
		var page *gmail_api.ListMessagesResponse
		err := s.retry.Do(ctx, func() error {
			if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesList); err != nil {
				return err
			}
			var err error
			page, err = msgs.List("me").Q(q).MaxResults(listPageSize).
				PageToken(pageToken).Context(ctx).Do()
			return classify(err)
		})
		if err != nil {
			return errors.Wrap(err, "unable to list messages")
		}

		total += len(page.Messages)
		s.log.Info("listed page of messages", "count", len(page.Messages), "total", total)
		for _, m := range page.Messages {
			ref, err := s.stat(ctx, m.Id)
			if err != nil {
				if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded {
					return err
				}
				s.log.Warn("skipping unreadable message", "id", m.Id, "error", err)
				continue
			}
			if err := handler(ref); err != nil {
				return err
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	s.log.Info("done listing messages", "total", total)
	return nil
}

// stat fetches a message's metadata to learn its internal date and
// size.
func (s *Service) stat(ctx context.Context, id string) (message.Ref, error) {
	var msg *gmail_api.Message
	err := s.retry.Do(ctx, func() error {
		if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesGet); err != nil {
			return err
		}
		var err error
		msg, err = gmail_api.NewUsersMessagesService(s.service).Get("me", id).
			Context(ctx).Format("minimal").Do()
		return classify(err)
	})
	if err != nil {
		return message.Ref{}, errors.Wrapf(err, "getting metadata for message %v", id)
	}
	return message.Ref{
		ID:           msg.Id,
		Timestamp:    internalDate(msg.InternalDate),
		SizeEstimate: msg.SizeEstimate,
	}, nil
}

// Fetch retrieves the full raw content of one message.
func (s *Service) Fetch(ctx context.Context, id string) (*message.Body, error) {
	var msg *gmail_api.Message
	err := s.retry.Do(ctx, func() error {
		if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesGet); err != nil {
			return err
		}
		var err error
		msg, err = gmail_api.NewUsersMessagesService(s.service).Get("me", id).
			Context(ctx).Format("raw").Do()
		return classify(err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting message %v from gmail", id)
	}
	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding message %v from gmail", id)
	}
	return &message.Body{
		Ref: message.Ref{
			ID:           msg.Id,
			Timestamp:    internalDate(msg.InternalDate),
			SizeEstimate: msg.SizeEstimate,
		},
		Raw: raw,
	}, nil
}

// Delete permanently removes one message from the mailbox.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.retry.Do(ctx, func() error {
		if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesDelete); err != nil {
			return err
		}
		return classify(gmail_api.NewUsersMessagesService(s.service).
			Delete("me", id).Context(ctx).Do())
	})
	if err != nil {
		return errors.Wrapf(err, "deleting message %v from gmail", id)
	}
	return nil
}

// internalDate converts GMail's epoch-millisecond internal date.
// Zero stays the zero time so undatable messages reach the unknown
// bucket.
func internalDate(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
