package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bedwatch-backend/internal/bedreport"
	"bedwatch-backend/internal/components/assert"
	"bedwatch-backend/internal/components/chrono"
	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/internal/snapshot"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bedwatch/refresh")

const (
	report_refresh_cycle   = "refresh.cycle"
	report_refresh_persist = "refresh.persist"
	report_refresh_alert   = "refresh.alert"

	report_refresh_records          = "refresh.records"
	report_refresh_warnings         = "refresh.warnings"
	report_refresh_numeric_defaults = "refresh.numeric-defaults"
	report_refresh_bed_mismatches   = "refresh.bed-mismatches"
)

const (
	defaultCycleTimeout = time.Minute * 2
	alertTimeout        = time.Second * 30
)

// ErrBusy is returned when a refresh is requested while another one is running.
// It is an outcome, not a failure.
var ErrBusy = errors.New("refresh already in progress")

// Source produces the records of one cycle, bedreport.Scraper is the implementation.
// Scrape must return soon after ctx is done: the refresher stops waiting at the cycle
// timeout and releases the guard, so a source still running would overlap the next cycle.
//
// note: fault injection point
type Source interface {
	Scrape(ctx context.Context) (bedreport.Report, error)
	Url() string
}

// Sink receives every committed snapshot, a failing sink never undoes the commit.
type Sink interface {
	Persist(ctx context.Context, snap snapshot.Snapshot) error
}

type FailureKind string

const (
	FailureFetch      FailureKind = "fetch"
	FailureExtraction FailureKind = "extraction"
	FailureTimeout    FailureKind = "timeout"
	FailureCommit     FailureKind = "commit"
)

// CycleError is a cycle level failure, the store keeps serving whatever it served before.
type CycleError struct {
	Kind  FailureKind
	Cause error
	// Serving is true when a previously committed snapshot is still being served.
	Serving bool
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Cause)
}

func (e *CycleError) Unwrap() error {
	return e.Cause
}

type Summary struct {
	CapturedAt      time.Time
	Records         int
	Warnings        int
	NumericDefaults int
	Mismatches      int
	Snapshot        snapshot.Snapshot
}

type Options struct {
	// CycleTimeout bounds a whole cycle, the guard is released when it elapses even if the
	// source does not return.
	CycleTimeout time.Duration
	Sinks        []Sink
	Alerter      Alerter
}

// Refresher runs guarded refresh cycles: scrape, build a snapshot, commit it, persist it.
type Refresher struct {
	guard        *Guard
	source       Source
	store        *snapshot.Store
	sinks        []Sink
	alerter      Alerter
	time         chrono.TimeAPI
	tel          telemetry.API
	cycleTimeout time.Duration
}

func NewRefresher(
	source Source,
	store *snapshot.Store,
	time chrono.TimeAPI,
	tel telemetry.API,
	opts Options,
) *Refresher {
	assert.NotNil(source, "source")
	assert.NotNil(store, "store")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = defaultCycleTimeout
	}

	return &Refresher{
		guard:        NewGuard(),
		source:       source,
		store:        store,
		sinks:        opts.Sinks,
		alerter:      opts.Alerter,
		time:         time,
		tel:          telemetry.NewScopedAPI("refresh", tel),
		cycleTimeout: opts.CycleTimeout,
	}
}

// Refreshing reports whether a cycle is in flight.
func (r *Refresher) Refreshing() bool {
	return r.guard.State() == Refreshing
}

// Refresh runs one cycle. It returns ErrBusy without doing any work when another cycle is
// running, and a *CycleError when the cycle fails.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	if !r.guard.TryAcquire() {
		r.tel.ReportDebug("refresh rejected, a cycle is already running")
		return Summary{}, ErrBusy
	}
	defer r.guard.Release()

	ctx, span := tracer.Start(ctx, "Refresher:Refresh")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cycleTimeout)
	defer cancel()

	report, err := r.scrape(ctx)
	if err != nil {
		cycleErr := r.fail(ctx, err)
		span.RecordError(cycleErr)
		span.SetStatus(codes.Error, string(cycleErr.Kind))
		return Summary{}, cycleErr
	}

	snap := snapshot.New(r.store.NextCaptureTime(r.time.Now()), report.Records)
	err = r.store.Commit(snap)
	if err != nil {
		_, serving := r.store.Current()
		cycleErr := &CycleError{Kind: FailureCommit, Cause: err, Serving: serving}
		r.tel.ReportBroken(report_refresh_cycle, cycleErr)
		span.SetStatus(codes.Error, string(cycleErr.Kind))
		return Summary{}, cycleErr
	}

	for _, sink := range r.sinks {
		err := sink.Persist(ctx, snap)
		if err != nil {
			r.tel.ReportBroken(report_refresh_persist, err, fmt.Sprintf("%T", sink))
		}
	}

	summary := Summary{
		CapturedAt:      snap.CapturedAt(),
		Records:         snap.Len(),
		Warnings:        len(report.Warnings),
		NumericDefaults: report.NumericDefaults,
		Mismatches:      report.Mismatches,
		Snapshot:        snap,
	}

	r.tel.ReportCount(report_refresh_records, int64(summary.Records))
	r.tel.ReportCount(report_refresh_warnings, int64(summary.Warnings))
	r.tel.ReportCount(report_refresh_numeric_defaults, int64(summary.NumericDefaults))
	r.tel.ReportCount(report_refresh_bed_mismatches, int64(summary.Mismatches))
	if summary.NumericDefaults > 0 {
		// a defaulted count is indistinguishable from a real 0 for readers
		r.tel.ReportWarning(
			report_refresh_numeric_defaults,
			fmt.Errorf("%d bed count(s) could not be parsed and were served as 0", summary.NumericDefaults),
		)
	}

	span.SetAttributes(
		attribute.Int("refresh.records", summary.Records),
		attribute.Int("refresh.warnings", summary.Warnings),
	)
	return summary, nil
}

// scrape returns as soon as ctx is done, even if the source keeps running. The abandoned
// source sees the same ctx and is expected to stop on its own.
func (r *Refresher) scrape(ctx context.Context) (bedreport.Report, error) {
	type result struct {
		report bedreport.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := r.source.Scrape(ctx)
		done <- result{report: report, err: err}
	}()

	select {
	case res := <-done:
		return res.report, res.err
	case <-ctx.Done():
		return bedreport.Report{}, ctx.Err()
	}
}

func (r *Refresher) fail(ctx context.Context, err error) *CycleError {
	current, serving := r.store.Current()

	var fetchErr *bedreport.FetchError
	var extractErr *bedreport.ExtractionError

	cycleErr := &CycleError{Cause: err, Serving: serving}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		cycleErr.Kind = FailureTimeout
	case errors.As(err, &fetchErr):
		cycleErr.Kind = FailureFetch
	case errors.As(err, &extractErr):
		cycleErr.Kind = FailureExtraction
	default:
		cycleErr.Kind = FailureFetch
	}

	r.tel.ReportBroken(report_refresh_cycle, cycleErr, telemetry.KV{Key: "serving", Value: serving})

	if cycleErr.Kind == FailureExtraction && r.alerter != nil {
		lastScraped := ""
		if serving {
			lastScraped = current.CapturedAt().Format(snapshot.TimeFormat)
		}
		body := formatAlertBody(r.source.Url(), err, serving, lastScraped)
		go func() {
			alertCtx, cancel := context.WithTimeout(context.Background(), alertTimeout)
			defer cancel()
			err := r.alerter.Alert(alertCtx, "Bed report extraction failed", body)
			if err != nil {
				r.tel.ReportBroken(report_refresh_alert, err)
			}
		}()
	}

	return cycleErr
}

// Schedule runs a refresh on every tick of the cron spec, ticks that land on a running
// cycle are skipped.
func (r *Refresher) Schedule(cron chrono.CronAPI, spec string) error {
	return cron.Cron(spec, func() {
		_, err := r.Refresh(context.Background())
		if errors.Is(err, ErrBusy) {
			r.tel.ReportDebug("scheduled refresh skipped, a cycle is already running")
		}
	})
}
