// The gmailarchiver command archives GMail messages into local
// year/month zip archives, with crash-safe resume and optional
// deletion of the originals after a successful archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vikrantb/gmailarchiver/internal/archiver"
	"github.com/vikrantb/gmailarchiver/internal/config"
	"github.com/vikrantb/gmailarchiver/internal/gmail"
	"github.com/vikrantb/gmailarchiver/internal/gmailhttp"
	"github.com/vikrantb/gmailarchiver/internal/ledger"
	"github.com/vikrantb/gmailarchiver/internal/persist"
	"github.com/vikrantb/gmailarchiver/internal/query"
	"github.com/vikrantb/gmailarchiver/internal/retry"
	"github.com/vikrantb/gmailarchiver/internal/tracehttp"

	_ "github.com/mattn/go-sqlite3"
)

var flagTrace = flag.Bool("T", false, "request debug tracing")

// bindFlags overlays the command line on top of the environment
// defaults.
func bindFlags(opts *config.Options) {
	flag.StringVar(&opts.BasePath, "base-path", opts.BasePath, "base path for archives")
	flag.StringVar(&opts.StartDate, "start-date", opts.StartDate, "start date in mm-dd-yyyy format")
	flag.StringVar(&opts.EndDate, "end-date", opts.EndDate, "end date in mm-dd-yyyy format")
	flag.StringVar(&opts.Label, "label", opts.Label, "GMail label to filter messages")
	flag.StringVar(&opts.Query, "query", opts.Query, "custom GMail search query (e.g. 'is:starred')")
	flag.BoolVar(&opts.Delete, "delete", opts.Delete, "delete messages after archiving")
	flag.IntVar(&opts.Workers, "workers", opts.Workers, "number of concurrent fetch workers")
	flag.IntVar(&opts.MaxRetries, "max-retries", opts.MaxRetries, "retry ceiling per remote call")
	flag.Int64Var(&opts.MinArchiveSize, "min-archive-size", opts.MinArchiveSize, "archives smaller than this many bytes are pruned")
	flag.StringVar(&opts.Credentials, "credentials", opts.Credentials, "OAuth client secret file")
	flag.StringVar(&opts.Token, "token", opts.Token, "OAuth token cache file")
}

func run(logger *slog.Logger, cfg *config.Config) error {
	ctx := context.Background()

	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return errors.Wrapf(err, "creating archive directory %q", cfg.BasePath)
	}

	led, err := ledger.Open(filepath.Join(cfg.BasePath, ledger.FileName), logger)
	if err != nil {
		return errors.Wrap(err, "unable to initialize progress ledger")
	}
	defer led.Close()

	catalog, err := persist.Open(ctx, filepath.Join(cfg.BasePath, "catalog.db"))
	if err != nil {
		return errors.Wrap(err, "unable to initialize message catalog")
	}
	defer catalog.Close()

	client, err := gmailhttp.New(ctx, cfg.Credentials, cfg.Token)
	if err != nil {
		return errors.Wrap(err, "unable to initialize GMail HTTP client")
	}

	mail, err := gmail.New(ctx, client, retry.NewPolicy(cfg.MaxRetries), logger)
	if err != nil {
		return errors.Wrap(err, "unable to initialize GMail")
	}

	snap, err := archiver.New(cfg, mail, catalog, led, logger).Run(ctx)
	if err != nil {
		return errors.Wrap(err, "archive run failed")
	}
	fmt.Print(snap.Report(query.Build(cfg.Filter), cfg.BasePath, cfg.Delete))
	return nil
}

func main() {
	opts, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	bindFlags(opts)
	flag.Parse()

	cfg, err := opts.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if *flagTrace {
		tracehttp.WrapDefaultTransport(logger)
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}
