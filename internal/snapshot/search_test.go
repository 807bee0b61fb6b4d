package snapshot

import (
	"testing"

	"bedwatch-backend/internal/bedreport"

	"github.com/stretchr/testify/require"
)

func names(records []bedreport.HospitalRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestSearch(t *testing.T) {
	snap := New(t0, testRecords)

	require.Len(t, Search(snap, ""), len(testRecords))
	require.Equal(t, []string{"Ruby Hall Clinic"}, names(Search(snap, "nashik")))
	require.Equal(t, []string{"Ruby Hall Clinic"}, names(Search(snap, "rubby")))
	require.Equal(t, []string{"Sassoon General Hospital"}, names(Search(snap, "sasoon pune")))
	require.Equal(t, []string{"City Hospital", "Sassoon General Hospital", "Jehangir Hospital"}, names(Search(snap, "hospital")))
	require.Empty(t, Search(snap, "mumbai"))
}
