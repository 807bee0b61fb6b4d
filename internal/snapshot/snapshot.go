package snapshot

import (
	"time"

	"bedwatch-backend/internal/bedreport"
)

// Snapshot is an immutable, timestamped set of hospital records.
// The zero value is the "no data yet" snapshot.
type Snapshot struct {
	capturedAt time.Time
	records    []bedreport.HospitalRecord
}

// New copies records into a new snapshot. capturedAt is kept in UTC at millisecond
// precision so that it survives serialization unchanged.
func New(capturedAt time.Time, records []bedreport.HospitalRecord) Snapshot {
	copied := make([]bedreport.HospitalRecord, len(records))
	copy(copied, records)
	return Snapshot{
		capturedAt: capturedAt.UTC().Truncate(time.Millisecond),
		records:    copied,
	}
}

func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Records returns a copy of the records in source order.
func (s Snapshot) Records() []bedreport.HospitalRecord {
	copied := make([]bedreport.HospitalRecord, len(s.records))
	copy(copied, s.records)
	return copied
}

// Each calls fn for every record without copying the record slice.
func (s Snapshot) Each(fn func(i int, record bedreport.HospitalRecord)) {
	for i, r := range s.records {
		fn(i, r)
	}
}

func (s Snapshot) Len() int {
	return len(s.records)
}

func (s Snapshot) IsZero() bool {
	return s.capturedAt.IsZero() && len(s.records) == 0
}
