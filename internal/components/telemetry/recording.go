package telemetry

import (
	"strings"
	"sync"
)

type ReportKind int

const (
	KindBroken ReportKind = iota
	KindWarning
	KindDebug
	KindCount
)

type Report struct {
	Kind   ReportKind
	Id     string
	Params []any
	Count  int64
}

// RecordingAPI keeps every report in memory so tests can assert on them.
// It forwards to an inner API when one is given.
type RecordingAPI struct {
	inner API

	mutex   sync.Mutex
	reports []Report
}

func NewRecordingAPI(inner API) *RecordingAPI {
	return &RecordingAPI{inner: inner}
}

func (r *RecordingAPI) record(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record(Report{Kind: KindBroken, Id: id, Params: params})
	if r.inner != nil {
		r.inner.ReportBroken(id, params...)
	}
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record(Report{Kind: KindWarning, Id: id, Params: params})
	if r.inner != nil {
		r.inner.ReportWarning(id, params...)
	}
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record(Report{Kind: KindDebug, Id: msg, Params: params})
	if r.inner != nil {
		r.inner.ReportDebug(msg, params...)
	}
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.record(Report{Kind: KindCount, Id: id, Count: count})
	if r.inner != nil {
		r.inner.ReportCount(id, count)
	}
}

// Reports returns the reports of a given kind whose id ends with `suffix`, so that
// scoped ids can be matched without caring about the namespace.
func (r *RecordingAPI) Reports(kind ReportKind, suffix string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, report := range r.reports {
		if report.Kind == kind && strings.HasSuffix(report.Id, suffix) {
			out = append(out, report)
		}
	}
	return out
}

// LastCount returns the most recent count reported under an id ending with `suffix`.
func (r *RecordingAPI) LastCount(suffix string) (int64, bool) {
	counts := r.Reports(KindCount, suffix)
	if len(counts) == 0 {
		return 0, false
	}
	return counts[len(counts)-1].Count, true
}
