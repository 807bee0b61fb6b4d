package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bedwatch-backend/internal/bedreport"
	"bedwatch-backend/internal/components/chrono"
	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/internal/snapshot"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

func testReport(names ...string) bedreport.Report {
	report := bedreport.Report{}
	for i, name := range names {
		report.Records = append(report.Records, bedreport.HospitalRecord{
			SrNo:          "x",
			Name:          name,
			City:          "Pune",
			TotalBeds:     10,
			OccupiedBeds:  5,
			AvailableBeds: 5,
			SourceRow:     i + 1,
		})
	}
	return report
}

type fakeSource struct {
	mutex  sync.Mutex
	report bedreport.Report
	err    error
	// block, when set, is waited on before returning, ignoring ctx
	block   chan struct{}
	started chan struct{}
	calls   atomic.Int64
}

func (s *fakeSource) set(report bedreport.Report, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.report = report
	s.err = err
}

func (s *fakeSource) Scrape(ctx context.Context) (bedreport.Report, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.report, s.err
}

func (s *fakeSource) Url() string {
	return "https://example.test/report"
}

type recordingSink struct {
	mutex sync.Mutex
	err   error
	snaps []snapshot.Snapshot
}

func (s *recordingSink) Persist(_ context.Context, snap snapshot.Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

type fakeAlerter struct {
	alerts chan string
}

func (a fakeAlerter) Alert(_ context.Context, subject, body string) error {
	a.alerts <- subject + "\n" + body
	return nil
}

type fixture struct {
	source  *fakeSource
	store   *snapshot.Store
	sink    *recordingSink
	alerter fakeAlerter
	clock   *chrono.ManualTime
	tel     *telemetry.RecordingAPI
	r       *Refresher
}

func setup(t testing.TB, timeout time.Duration) fixture {
	f := fixture{
		source:  &fakeSource{},
		store:   snapshot.NewStore(),
		sink:    &recordingSink{},
		alerter: fakeAlerter{alerts: make(chan string, 4)},
		clock:   chrono.NewManualTime(t0),
		tel:     telemetry.NewRecordingAPI(nil),
	}
	f.r = NewRefresher(f.source, f.store, f.clock, f.tel, Options{
		CycleTimeout: timeout,
		Sinks:        []Sink{f.sink},
		Alerter:      f.alerter,
	})
	return f
}

func TestRefreshCommits(t *testing.T) {
	f := setup(t, time.Second*5)
	report := testReport("City Hospital", "Ruby Hall Clinic")
	report.Warnings = []bedreport.RowError{{Row: 3, Reason: "too few columns"}}
	f.source.set(report, nil)

	summary, err := f.r.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Records)
	require.Equal(t, 1, summary.Warnings)
	require.True(t, summary.CapturedAt.Equal(t0))

	current, ok := f.store.Current()
	require.True(t, ok)
	require.Equal(t, 2, current.Len())
	require.True(t, current.CapturedAt().Equal(t0))

	require.Len(t, f.sink.snaps, 1)
	require.False(t, f.r.Refreshing())

	n, ok := f.tel.LastCount(report_refresh_records)
	require.True(t, ok)
	require.EqualValues(t, 2, n)
	n, _ = f.tel.LastCount(report_refresh_warnings)
	require.EqualValues(t, 1, n)
}

func TestRefreshCapturedAtIncreases(t *testing.T) {
	f := setup(t, time.Second*5)
	f.source.set(testReport("City Hospital"), nil)

	first, err := f.r.Refresh(context.Background())
	require.NoError(t, err)

	// the clock has not moved
	second, err := f.r.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, second.CapturedAt.After(first.CapturedAt))

	f.clock.Advance(time.Minute)
	third, err := f.r.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, third.CapturedAt.Equal(t0.Add(time.Minute)))
}

func TestRefreshBusy(t *testing.T) {
	f := setup(t, time.Second*5)
	f.source.set(testReport("City Hospital"), nil)
	f.source.block = make(chan struct{})
	f.source.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.r.Refresh(context.Background())
		done <- err
	}()
	<-f.source.started
	require.True(t, f.r.Refreshing())

	_, err := f.r.Refresh(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(f.source.block)
	require.NoError(t, <-done)
	require.EqualValues(t, 1, f.source.calls.Load())
	require.False(t, f.r.Refreshing())
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	f := setup(t, time.Second*5)
	f.source.set(testReport("City Hospital", "Ruby Hall Clinic"), nil)
	_, err := f.r.Refresh(context.Background())
	require.NoError(t, err)
	before, _ := f.store.Current()

	testCases := []struct {
		err  error
		kind FailureKind
	}{
		{err: &bedreport.FetchError{Url: "x", Status: 503, Attempts: 3}, kind: FailureFetch},
		{err: &bedreport.ExtractionError{Reason: "no rows found"}, kind: FailureExtraction},
	}
	for _, test := range testCases {
		f.clock.Advance(time.Minute)
		f.source.set(bedreport.Report{}, test.err)

		_, err := f.r.Refresh(context.Background())
		var cycleErr *CycleError
		require.True(t, errors.As(err, &cycleErr))
		require.Equal(t, test.kind, cycleErr.Kind)
		require.True(t, cycleErr.Serving)
		require.ErrorIs(t, err, test.err)

		after, ok := f.store.Current()
		require.True(t, ok)
		require.True(t, before.CapturedAt().Equal(after.CapturedAt()))
		require.Equal(t, before.Len(), after.Len())
	}

	require.Len(t, f.sink.snaps, 1)
	require.Len(t, f.tel.Reports(telemetry.KindBroken, report_refresh_cycle), 2)

	select {
	case alert := <-f.alerter.alerts:
		require.Contains(t, alert, "extraction failed")
		require.Contains(t, alert, "no rows found")
		require.Contains(t, alert, "still serving")
	case <-time.After(time.Second * 5):
		t.Fatal("expected an alert for the extraction failure")
	}
	require.Len(t, f.alerter.alerts, 0, "fetch failures do not alert")
}

func TestRefreshFailureWithoutSnapshot(t *testing.T) {
	f := setup(t, time.Second*5)
	f.source.set(bedreport.Report{}, &bedreport.FetchError{Url: "x", Attempts: 1, Cause: errors.New("connection reset")})

	_, err := f.r.Refresh(context.Background())
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	require.False(t, cycleErr.Serving)

	_, ok := f.store.Current()
	require.False(t, ok)
}

func TestRefreshTimeoutReleasesGuard(t *testing.T) {
	f := setup(t, time.Millisecond*50)
	f.source.set(testReport("City Hospital"), nil)
	f.source.block = make(chan struct{})
	defer close(f.source.block)

	start := time.Now()
	_, err := f.r.Refresh(context.Background())
	require.Less(t, time.Since(start), time.Second*5)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	require.Equal(t, FailureTimeout, cycleErr.Kind)
	require.False(t, f.r.Refreshing())

	_, ok := f.store.Current()
	require.False(t, ok)
}

func TestRefreshSinkFailureKeepsCommit(t *testing.T) {
	f := setup(t, time.Second*5)
	f.sink.err = errors.New("disk full")
	f.source.set(testReport("City Hospital"), nil)

	_, err := f.r.Refresh(context.Background())
	require.NoError(t, err)

	_, ok := f.store.Current()
	require.True(t, ok)
	require.Len(t, f.tel.Reports(telemetry.KindBroken, report_refresh_persist), 1)
}

func TestRefreshNumericDefaultsWarn(t *testing.T) {
	f := setup(t, time.Second*5)
	report := testReport("City Hospital")
	report.NumericDefaults = 2
	f.source.set(report, nil)

	summary, err := f.r.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.NumericDefaults)
	require.Len(t, f.tel.Reports(telemetry.KindWarning, report_refresh_numeric_defaults), 1)
}

type immediateCron struct {
	specs []string
	jobs  []func()
}

func (c *immediateCron) Cron(spec string, callback func()) error {
	c.specs = append(c.specs, spec)
	c.jobs = append(c.jobs, callback)
	return nil
}

func TestSchedule(t *testing.T) {
	f := setup(t, time.Second*5)
	f.source.set(testReport("City Hospital"), nil)

	cron := &immediateCron{}
	require.NoError(t, f.r.Schedule(cron, "*/15 * * * *"))
	require.Equal(t, []string{"*/15 * * * *"}, cron.specs)

	cron.jobs[0]()
	_, ok := f.store.Current()
	require.True(t, ok)
	require.EqualValues(t, 1, f.source.calls.Load())
}

// lateFetcher hands back a document only after the cycle has been abandoned.
type lateFetcher struct {
	returned chan struct{}
}

func (f lateFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	<-ctx.Done()
	defer close(f.returned)
	return []byte(`<div style="overflow: auto"><table>
<tr><th>#</th><th>Name</th><th>City</th><th>Total</th><th>Occupied</th><th>Available</th></tr>
<tr><td>1</td><td>City Hospital</td><td>Pune</td><td>50</td><td>40</td><td>10</td></tr>
</table></div>`), nil
}

type countingStrategy struct {
	inner bedreport.Strategy
	calls atomic.Int64
}

func (s *countingStrategy) Extract(ctx context.Context, document []byte) (bedreport.Extraction, error) {
	s.calls.Add(1)
	return s.inner.Extract(ctx, document)
}

func TestRefreshTimeoutAbandonsPipeline(t *testing.T) {
	tel := telemetry.NewRecordingAPI(nil)
	fetcher := lateFetcher{returned: make(chan struct{})}
	strategy := &countingStrategy{inner: bedreport.NewScrollPanelStrategy(tel)}
	store := snapshot.NewStore()

	r := NewRefresher(
		bedreport.NewScraper("https://example.test/report", fetcher, strategy, tel),
		store,
		chrono.NewManualTime(t0),
		tel,
		Options{CycleTimeout: time.Millisecond * 50},
	)

	_, err := r.Refresh(context.Background())
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	require.Equal(t, FailureTimeout, cycleErr.Kind)
	require.False(t, r.Refreshing())

	select {
	case <-fetcher.returned:
	case <-time.After(time.Second * 5):
		t.Fatal("fetcher never observed the timeout")
	}
	// give the abandoned scrape time to (not) continue
	time.Sleep(time.Millisecond * 50)

	require.EqualValues(t, 0, strategy.calls.Load())
	_, ok := store.Current()
	require.False(t, ok)
}
