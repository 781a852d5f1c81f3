package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vikrantb/gmailarchiver/internal/query"
)

func defaults() Options {
	return Options{
		BasePath:       "gmail-archive",
		Workers:        10,
		MaxRetries:     5,
		MinArchiveSize: 512000,
		Credentials:    "credentials.json",
		Token:          "token.json",
		LogLevel:       "info",
	}
}

func TestResolveDefaults(t *testing.T) {
	opts := defaults()
	cfg, err := opts.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := &Config{
		BasePath:       "gmail-archive",
		Workers:        10,
		MaxRetries:     5,
		MinArchiveSize: 512000,
		Credentials:    "credentials.json",
		Token:          "token.json",
		LogLevel:       slog.LevelInfo,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDates(t *testing.T) {
	opts := defaults()
	opts.StartDate = "01-15-2020"
	opts.EndDate = "06-30-2021"
	opts.Label = "INBOX"
	opts.Query = "has:attachment"

	cfg, err := opts.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := query.Filter{
		Query: "has:attachment",
		Label: "INBOX",
		Start: time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, time.June, 30, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, cfg.Filter); diff != "" {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRejectsBadOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero workers", func(o *Options) { o.Workers = 0 }},
		{"zero retries", func(o *Options) { o.MaxRetries = 0 }},
		{"negative size floor", func(o *Options) { o.MinArchiveSize = -1 }},
		{"bad start date", func(o *Options) { o.StartDate = "2020-01-15" }},
		{"bad end date", func(o *Options) { o.EndDate = "junk" }},
		{"inverted range", func(o *Options) { o.StartDate = "06-01-2021"; o.EndDate = "01-01-2020" }},
		{"bad log level", func(o *Options) { o.LogLevel = "chatty" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := defaults()
			tc.mutate(&opts)
			if _, err := opts.Resolve(); err == nil {
				t.Error("Resolve succeeded, want error")
			}
		})
	}
}
