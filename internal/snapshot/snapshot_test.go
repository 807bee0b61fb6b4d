package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bedwatch-backend/internal/bedreport"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testRecords = []bedreport.HospitalRecord{
	{SrNo: "1", Name: "City Hospital", City: "Pune", TotalBeds: 50, OccupiedBeds: 40, AvailableBeds: 10, LastUpdated: "2024-01-01", SourceRow: 1},
	{SrNo: "2", Name: "Sassoon General Hospital", City: "Pune", TotalBeds: 1200, OccupiedBeds: 1150, AvailableBeds: 50, LastUpdated: "2024-01-01 10:30", SourceRow: 2},
	{SrNo: "3", Name: "Jehangir Hospital", City: "Pune", TotalBeds: 0, OccupiedBeds: 12, AvailableBeds: 8, LastUpdated: "", SourceRow: 4, BedMismatch: true},
	{SrNo: "4", Name: "Ruby Hall Clinic", City: "Nashik", TotalBeds: 20, OccupiedBeds: 20, AvailableBeds: 0, LastUpdated: "2024-01-02", SourceRow: 5},
}

var t0 = time.Date(2024, 1, 1, 6, 0, 0, 123456789, time.UTC)

func TestSnapshotIsImmutable(t *testing.T) {
	records := append([]bedreport.HospitalRecord{}, testRecords...)
	snap := New(t0, records)

	records[0].Name = "mutated"
	require.Equal(t, "City Hospital", snap.Records()[0].Name)

	out := snap.Records()
	out[1].AvailableBeds = 999
	require.Equal(t, 50, snap.Records()[1].AvailableBeds)

	require.Equal(t, t0.Truncate(time.Millisecond), snap.CapturedAt())
	require.True(t, Snapshot{}.IsZero())
	require.False(t, snap.IsZero())
}

func TestStoreCommit(t *testing.T) {
	store := NewStore()

	_, ok := store.Current()
	require.False(t, ok)

	require.ErrorIs(t, store.Commit(New(t0, nil)), ErrEmptySnapshot)
	_, ok = store.Current()
	require.False(t, ok)

	first := New(t0, testRecords)
	require.NoError(t, store.Commit(first))

	current, ok := store.Current()
	require.True(t, ok)
	require.Equal(t, first.CapturedAt(), current.CapturedAt())
	require.Equal(t, len(testRecords), current.Len())

	require.ErrorIs(t, store.Commit(New(t0, testRecords[:1])), ErrStaleSnapshot)
	require.ErrorIs(t, store.Commit(New(t0.Add(-time.Hour), testRecords[:1])), ErrStaleSnapshot)

	current, _ = store.Current()
	require.Equal(t, len(testRecords), current.Len())

	second := New(t0.Add(time.Minute), testRecords[:2])
	require.NoError(t, store.Commit(second))
	current, _ = store.Current()
	require.Equal(t, 2, current.Len())
}

func TestStoreNextCaptureTime(t *testing.T) {
	store := NewStore()
	require.Equal(t, t0.Truncate(time.Millisecond), store.NextCaptureTime(t0))

	require.NoError(t, store.Commit(New(t0, testRecords)))
	committed := t0.Truncate(time.Millisecond)

	require.Equal(t, committed.Add(time.Millisecond), store.NextCaptureTime(t0))
	require.Equal(t, committed.Add(time.Millisecond), store.NextCaptureTime(t0.Add(-time.Hour)))
	require.Equal(t, committed.Add(time.Second), store.NextCaptureTime(committed.Add(time.Second)))
}

// readers racing commits must always see a timestamp that matches its record set
func TestStoreConcurrentReads(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Commit(New(t0, testRecords[:1])))

	const commits = 200
	stop := make(chan struct{})
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, ok := store.Current()
				if !ok {
					t.Error("store lost its snapshot")
					return
				}
				// snapshot n carries (n % len(testRecords)) + 1 records and is captured at t0 + n ms
				n := snap.CapturedAt().Sub(t0.Truncate(time.Millisecond)).Milliseconds()
				if int(n)%len(testRecords)+1 != snap.Len() {
					t.Errorf("torn snapshot: n=%d len=%d", n, snap.Len())
					return
				}
			}
		}()
	}

	for n := 1; n <= commits; n++ {
		records := testRecords[:n%len(testRecords)+1]
		err := store.Commit(New(t0.Truncate(time.Millisecond).Add(time.Duration(n)*time.Millisecond), records))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestDocumentRoundTrip(t *testing.T) {
	snap := New(t0, testRecords)

	data, err := Marshal(snap)
	require.NoError(t, err)
	require.Contains(t, string(data), `"lastScraped": "2024-01-01T06:00:00.123Z"`)
	require.Contains(t, string(data), `"status": "limited"`)

	reloaded, err := Unmarshal(data)
	require.NoError(t, err)
	require.True(t, snap.CapturedAt().Equal(reloaded.CapturedAt()))
	if diff := cmp.Diff(snap.Records(), reloaded.Records()); diff != "" {
		t.Fatalf("records changed after round trip (-want +got):\n%s", diff)
	}
}

func TestDocumentValidation(t *testing.T) {
	_, err := Unmarshal([]byte(`{"lastScraped": "yesterday", "hospitals": [{"name": "a"}]}`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`{"lastScraped": "2024-01-01T00:00:00.000Z", "hospitals": []}`))
	require.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = Unmarshal([]byte(`not json`))
	require.Error(t, err)

	// documents written before the extra fields existed still load
	snap, err := Unmarshal([]byte(`{
		"lastScraped": "2024-03-05T10:00:00.000Z",
		"hospitals": [{"name": "City Hospital", "city": "Pune", "availableBeds": 4, "lastUpdated": "x"}]
	}`))
	require.NoError(t, err)
	require.Equal(t, 4, snap.Records()[0].AvailableBeds)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "hospital_data.json")
	sink := NewFileSink(path)

	first := New(t0, testRecords)
	require.NoError(t, sink.Persist(context.Background(), first))

	second := New(t0.Add(time.Hour), testRecords[:2])
	require.NoError(t, sink.Persist(context.Background(), second))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.True(t, second.CapturedAt().Equal(loaded.CapturedAt()))
	require.Equal(t, 2, loaded.Len())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files should not be left behind")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileSinkSeed(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "hospital_data.json"))
	store := NewStore()

	_, err := sink.Seed(store)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, ok := store.Current()
	require.False(t, ok)

	require.NoError(t, sink.Persist(context.Background(), New(t0, testRecords)))

	seeded, err := sink.Seed(store)
	require.NoError(t, err)
	current, ok := store.Current()
	require.True(t, ok)
	require.True(t, seeded.CapturedAt().Equal(current.CapturedAt()))
	require.Equal(t, len(testRecords), current.Len())
}
