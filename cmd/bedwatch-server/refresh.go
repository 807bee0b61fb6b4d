package main

import (
	"context"
	"errors"
	"io/fs"

	"bedwatch-backend/internal/bedreport"
	"bedwatch-backend/internal/components/chrono"
	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/internal/refresh"
	"bedwatch-backend/internal/snapshot"
	"bedwatch-backend/lib/restyutil"
)

const (
	report_seed_store   = "server.seed-store"
	report_open_archive = "server.open-archive"
)

// InitSinks seeds the store from the persisted document and opens the sinks every commit
// is written to. The returned func closes them.
func InitSinks(ctx context.Context, cfg Config, store *snapshot.Store, tel telemetry.API) ([]refresh.Sink, func()) {
	file := snapshot.NewFileSink(cfg.OutputFile)
	seeded, err := file.Seed(store)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		tel.ReportDebug("no persisted document to seed from", "path", file.Path())
	case err != nil:
		tel.ReportWarning(report_seed_store, err, telemetry.KV{Key: "path", Value: file.Path()})
	default:
		tel.ReportDebug(
			"seeded store from persisted document",
			"path", file.Path(),
			"hospitals", seeded.Len(),
			"captured_at", seeded.CapturedAt().Format(snapshot.TimeFormat),
		)
	}

	sinks := []refresh.Sink{file}
	closer := func() {}

	if cfg.Archive.Dsn != "" {
		archive, err := snapshot.OpenArchive(ctx, cfg.Archive.Driver, cfg.Archive.Dsn)
		if err != nil {
			// the archive is history only, serving continues without it
			tel.ReportBroken(report_open_archive, err, telemetry.KV{Key: "driver", Value: cfg.Archive.Driver})
		} else {
			sinks = append(sinks, archive)
			closer = func() {
				archive.Close()
			}
		}
	}

	return sinks, closer
}

func InitRefresher(
	cfg Config,
	store *snapshot.Store,
	sinks []refresh.Sink,
	dump restyutil.Output,
	tel telemetry.API,
) *refresh.Refresher {
	fetcherOpts := cfg.Source.FetcherOptions()
	fetcherOpts.Dump = dump
	fetcher := bedreport.NewHttpFetcher(fetcherOpts, tel)
	scraper := bedreport.NewScraper(
		cfg.Source.Url,
		fetcher,
		bedreport.NewScrollPanelStrategy(tel),
		tel,
	)

	opts := refresh.Options{
		CycleTimeout: cfg.CycleTimeout(),
		Sinks:        sinks,
	}
	if cfg.Alert.Enabled() {
		opts.Alerter = refresh.NewEmailAlerter(cfg.Alert)
	}

	return refresh.NewRefresher(scraper, store, chrono.NewStandardTime(), tel, opts)
}
