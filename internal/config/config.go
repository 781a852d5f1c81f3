// Package config resolves the run configuration once, before the
// pipeline starts. Defaults come from the environment (and an optional
// .env file); the command line overrides them. The pipeline only ever
// sees the resolved, validated Config.
package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/vikrantb/gmailarchiver/internal/query"
)

// DateFormat is the accepted form for start/end date options.
const DateFormat = "01-02-2006" // mm-dd-yyyy

// Options is the raw, overridable configuration surface. Flag values
// are applied on top of the environment before Resolve.
type Options struct {
	BasePath       string `env:"GMAILARCHIVER_BASE_PATH" envDefault:"gmail-archive"`
	StartDate      string `env:"GMAILARCHIVER_START_DATE"`
	EndDate        string `env:"GMAILARCHIVER_END_DATE"`
	Label          string `env:"GMAILARCHIVER_LABEL"`
	Query          string `env:"GMAILARCHIVER_QUERY"`
	Delete         bool   `env:"GMAILARCHIVER_DELETE" envDefault:"false"`
	Workers        int    `env:"GMAILARCHIVER_WORKERS" envDefault:"10"`
	MaxRetries     int    `env:"GMAILARCHIVER_MAX_RETRIES" envDefault:"5"`
	MinArchiveSize int64  `env:"GMAILARCHIVER_MIN_ARCHIVE_SIZE" envDefault:"512000"`
	Credentials    string `env:"GMAILARCHIVER_CREDENTIALS" envDefault:"credentials.json"`
	Token          string `env:"GMAILARCHIVER_TOKEN" envDefault:"token.json"`
	LogLevel       string `env:"GMAILARCHIVER_LOG_LEVEL" envDefault:"info"`
}

// Load reads Options from the environment, consulting a .env file for
// local development.
func Load() (*Options, error) {
	_ = godotenv.Load()

	opts := &Options{}
	if err := env.Parse(opts); err != nil {
		return nil, errors.Wrap(err, "parsing environment configuration")
	}
	return opts, nil
}

// Config is the immutable resolved configuration threaded through all
// components.
type Config struct {
	BasePath       string
	Filter         query.Filter
	Delete         bool
	Workers        int
	MaxRetries     int
	MinArchiveSize int64
	Credentials    string
	Token          string
	LogLevel       slog.Level
}

// Resolve validates the options and produces the final Config.
func (o *Options) Resolve() (*Config, error) {
	if o.Workers < 1 {
		return nil, errors.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.MaxRetries < 1 {
		return nil, errors.Errorf("max retries must be at least 1, got %d", o.MaxRetries)
	}
	if o.MinArchiveSize < 0 {
		return nil, errors.Errorf("min archive size must not be negative, got %d", o.MinArchiveSize)
	}

	var start, end time.Time
	var err error
	if o.StartDate != "" {
		if start, err = time.Parse(DateFormat, o.StartDate); err != nil {
			return nil, errors.Wrapf(err, "invalid start date %q (want mm-dd-yyyy)", o.StartDate)
		}
	}
	if o.EndDate != "" {
		if end, err = time.Parse(DateFormat, o.EndDate); err != nil {
			return nil, errors.Wrapf(err, "invalid end date %q (want mm-dd-yyyy)", o.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, errors.Errorf("end date %s is before start date %s", o.EndDate, o.StartDate)
	}

	level, err := parseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}

	return &Config{
		BasePath: o.BasePath,
		Filter: query.Filter{
			Query: o.Query,
			Label: o.Label,
			Start: start,
			End:   end,
		},
		Delete:         o.Delete,
		Workers:        o.Workers,
		MaxRetries:     o.MaxRetries,
		MinArchiveSize: o.MinArchiveSize,
		Credentials:    o.Credentials,
		Token:          o.Token,
		LogLevel:       level,
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Errorf("unknown log level %q", s)
	}
	return level, nil
}
