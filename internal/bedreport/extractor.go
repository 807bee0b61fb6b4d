package bedreport

import (
	"bytes"
	"context"

	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bedwatch/bedreport")

const (
	report_extractor_extract = "extractor.extract"
	report_extractor_row     = "extractor.row"
)

// MinColumns is the least amount of cells a data row needs to be mapped.
const MinColumns = 6

// RawRow is the cleaned text of every cell in a data row.
type RawRow struct {
	// Position is the index of the row in the source table, the header is 0.
	Position int
	Cells    []string
}

type Extraction struct {
	Rows []RawRow
	// Dropped holds the rows that were skipped for having too few cells.
	Dropped []RowError
}

// Strategy locates the report table in a document and yields its data rows.
// Swapping the strategy is the only change needed when the upstream layout moves.
//
// note: fault injection point
type Strategy interface {
	Extract(ctx context.Context, document []byte) (Extraction, error)
}

// ScrollPanelStrategy takes the first table nested inside a scrollable panel
// (a div with an inline `overflow: auto` or `overflow: scroll` style), skips the
// header row and keeps rows with at least MinColumns cells.
type ScrollPanelStrategy struct {
	MinColumns int
	tel        telemetry.API
}

func NewScrollPanelStrategy(tel telemetry.API) ScrollPanelStrategy {
	return ScrollPanelStrategy{
		MinColumns: MinColumns,
		tel:        telemetry.NewScopedAPI("bedreport", tel),
	}
}

var scrollableStyles = [][2]string{
	{"overflow", "auto"},
	{"overflow", "scroll"},
	{"overflow-y", "auto"},
	{"overflow-y", "scroll"},
}

func isScrollPanel(_ int, div *goquery.Selection) bool {
	style := div.AttrOr("style", "")
	for _, s := range scrollableStyles {
		if htmlutil.StyleDeclares(style, s[0], s[1]) {
			return true
		}
	}
	return false
}

// ownRows returns the rows belonging to the table itself, not to tables nested in its cells.
func ownRows(table *goquery.Selection) *goquery.Selection {
	tableNode := table.Get(0)
	return table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		closest := tr.Closest("table")
		return closest.Length() > 0 && closest.Get(0) == tableNode
	})
}

func (s ScrollPanelStrategy) Extract(ctx context.Context, document []byte) (Extraction, error) {
	_, span := tracer.Start(ctx, "ScrollPanelStrategy:Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		extractErr := &ExtractionError{Reason: "parse html", Cause: err}
		span.RecordError(extractErr)
		span.SetStatus(codes.Error, "failed to parse html")
		s.tel.ReportBroken(report_extractor_extract, extractErr)
		return Extraction{}, extractErr
	}

	table := doc.Find("div[style]").
		FilterFunction(isScrollPanel).
		Find("table").
		First()
	if table.Length() == 0 {
		extractErr := errNoRows("no table inside a scrollable panel")
		span.SetStatus(codes.Error, extractErr.Error())
		s.tel.ReportBroken(report_extractor_extract, extractErr, len(document))
		return Extraction{}, extractErr
	}

	rows := ownRows(table)
	if rows.Length() <= 1 {
		extractErr := errNoRows("table has no data rows beyond the header")
		span.SetStatus(codes.Error, extractErr.Error())
		s.tel.ReportBroken(report_extractor_extract, extractErr, rows.Length())
		return Extraction{}, extractErr
	}

	minColumns := s.MinColumns
	if minColumns <= 0 {
		minColumns = MinColumns
	}

	var out Extraction
	rows.Slice(1, rows.Length()).Each(func(i int, tr *goquery.Selection) {
		position := i + 1

		cells := tr.ChildrenFiltered("td")
		if cells.Length() < minColumns {
			rowErr := RowError{Row: position, Reason: "too few columns"}
			out.Dropped = append(out.Dropped, rowErr)
			s.tel.ReportWarning(report_extractor_row, rowErr, cells.Length())
			return
		}

		row := RawRow{
			Position: position,
			Cells:    make([]string, cells.Length()),
		}
		cells.Each(func(j int, td *goquery.Selection) {
			row.Cells[j] = htmlutil.SelectionText(td)
		})
		out.Rows = append(out.Rows, row)
	})

	span.SetAttributes(
		attribute.Int("bedreport.rows", len(out.Rows)),
		attribute.Int("bedreport.dropped", len(out.Dropped)),
	)

	if len(out.Rows) == 0 {
		extractErr := errNoRows("every data row had too few columns")
		span.SetStatus(codes.Error, extractErr.Error())
		s.tel.ReportBroken(report_extractor_extract, extractErr, len(out.Dropped))
		return out, extractErr
	}

	return out, nil
}
