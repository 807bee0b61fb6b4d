package bedreport

import (
	"context"
	"embed"
	"errors"
	"testing"

	"bedwatch-backend/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/*.html
var fixtures embed.FS

func fixture(t testing.TB, name string) []byte {
	contents, err := fixtures.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatal(err)
	}
	return contents
}

func TestScrollPanelStrategy(t *testing.T) {
	strategy := NewScrollPanelStrategy(telemetry.NewRecordingAPI(nil))

	extraction, err := strategy.Extract(context.Background(), fixture(t, "report.html"))
	require.NoError(t, err)
	require.Empty(t, extraction.Dropped)

	expected := []RawRow{
		{Position: 1, Cells: []string{"1", "City Hospital", "Pune", "50", "40", "10", "2024-01-01"}},
		{Position: 2, Cells: []string{"2", "Sassoon General Hospital", "Pune", "1,200", "1,150", "50", "2024-01-01 10:30"}},
		{Position: 3, Cells: []string{"3", "Ruby Hall Clinic", "Nashik", "20", "20", "0", "2024-01-02"}},
	}
	if diff := cmp.Diff(expected, extraction.Rows); diff != "" {
		t.Fatalf("unexpected rows (-want +got):\n%s", diff)
	}
}

func TestScrollPanelStrategyShortRow(t *testing.T) {
	tel := telemetry.NewRecordingAPI(nil)
	strategy := NewScrollPanelStrategy(tel)

	extraction, err := strategy.Extract(context.Background(), fixture(t, "short_row.html"))
	require.NoError(t, err)

	require.Len(t, extraction.Rows, 2)
	require.Equal(t, 1, extraction.Rows[0].Position)
	require.Equal(t, 3, extraction.Rows[1].Position)

	require.Equal(t, []RowError{{Row: 2, Reason: "too few columns"}}, extraction.Dropped)
	require.Len(t, tel.Reports(telemetry.KindWarning, report_extractor_row), 1)
}

func TestScrollPanelStrategyNestedTables(t *testing.T) {
	strategy := NewScrollPanelStrategy(telemetry.NewRecordingAPI(nil))

	extraction, err := strategy.Extract(context.Background(), fixture(t, "messy.html"))
	require.NoError(t, err)
	require.Len(t, extraction.Rows, 4)
	require.Empty(t, extraction.Dropped)

	last := extraction.Rows[3]
	require.Equal(t, 4, last.Position)
	require.Equal(t, "Thane", last.Cells[colCity])
}

func TestScrollPanelStrategyNoRows(t *testing.T) {
	testCases := []struct {
		name     string
		document []byte
	}{
		{name: "no scroll panel", document: fixture(t, "no_table.html")},
		{name: "header only", document: fixture(t, "header_only.html")},
		{name: "empty document", document: []byte{}},
		{
			name: "all rows too short",
			document: []byte(`<div style="overflow: auto"><table>
				<tr><td>h</td></tr>
				<tr><td>1</td><td>x</td></tr>
			</table></div>`),
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			tel := telemetry.NewRecordingAPI(nil)
			strategy := NewScrollPanelStrategy(tel)

			_, err := strategy.Extract(context.Background(), test.document)
			require.Error(t, err)

			var extractErr *ExtractionError
			require.True(t, errors.As(err, &extractErr))
			require.Equal(t, "no rows found", extractErr.Reason)
			require.Len(t, tel.Reports(telemetry.KindBroken, report_extractor_extract), 1)
		})
	}
}
