package commands

import (
	"io"
	"strconv"

	"bedwatch-backend/internal/bedreport"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func renderRecords(out io.Writer, records []bedreport.HospitalRecord) {
	t := newTable(out)
	t.AppendHeader(table.Row{"#", "Hospital", "City", "Total", "Occupied", "Available", "Status", "Last Updated"})
	for _, r := range records {
		available := strconv.Itoa(r.AvailableBeds)
		if r.BedMismatch {
			available += " (!)"
		}
		t.AppendRow(table.Row{
			r.SrNo,
			r.Name,
			r.City,
			r.TotalBeds,
			r.OccupiedBeds,
			available,
			r.Availability(),
			r.LastUpdated,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "hospitals", len(records)})
	t.Render()
}

func renderWarnings(out io.Writer, warnings []bedreport.RowError) {
	if len(warnings) == 0 {
		return
	}
	t := newTable(out)
	t.AppendHeader(table.Row{"Row", "Warning"})
	for _, w := range warnings {
		t.AppendRow(table.Row{w.Row, w.Reason})
	}
	t.Render()
}
