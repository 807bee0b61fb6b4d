package bedreport

import (
	"fmt"
	"strconv"
	"strings"

	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/lib/htmlutil"
)

const (
	report_normalizer_row             = "normalizer.row"
	report_normalizer_numeric_default = "normalizer.numeric-default"
	report_normalizer_bed_mismatch    = "normalizer.bed-mismatch"
)

// positional column layout of the report table
const (
	colSrNo = iota
	colName
	colCity
	colTotalBeds
	colOccupiedBeds
	colAvailableBeds
	colLastUpdated
)

type Normalized struct {
	Records []HospitalRecord
	// Warnings holds every row level problem: dropped rows, numeric fields that could
	// not be parsed and counts read with trailing text ignored.
	Warnings []RowError
	// NumericDefaults counts numeric cells that were unparsable and defaulted to 0,
	// a 0 in a record is only a real 0 if this count does not include it.
	NumericDefaults int
	Mismatches      int
}

type Normalizer struct {
	tel telemetry.API
}

func NewNormalizer(tel telemetry.API) Normalizer {
	return Normalizer{tel: telemetry.NewScopedAPI("bedreport", tel)}
}

type countParse int

const (
	// countExact is a cell holding only the count.
	countExact countParse = iota
	// countTruncated is a count followed by text that was ignored, `10 (ICU)` or `12.0`.
	countTruncated
	// countDefaulted is a cell without a leading count, it reads as 0.
	countDefaulted
)

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func leadingDigits(text string) string {
	i := 0
	for i < len(text) && isDigit(text[i]) {
		i++
	}
	return text[:i]
}

// thousandsGroup reports whether text starts with `,ddd` not followed by another digit.
func thousandsGroup(text string) bool {
	if len(text) < 4 || text[0] != ',' {
		return false
	}
	if !isDigit(text[1]) || !isDigit(text[2]) || !isDigit(text[3]) {
		return false
	}
	return len(text) == 4 || !isDigit(text[4])
}

// parseCount reads the leading non-negative count of a cell. Well-formed thousands
// separators (`1,024`) belong to the count, anything after the count is ignored.
func parseCount(text string) (int, countParse) {
	text = strings.TrimSpace(text)
	digits := leadingDigits(text)
	if digits == "" {
		return 0, countDefaulted
	}

	rest := text[len(digits):]
	if len(digits) <= 3 {
		for thousandsGroup(rest) {
			digits += rest[1:4]
			rest = rest[4:]
		}
	}

	value, err := strconv.Atoi(digits)
	if err != nil {
		return 0, countDefaulted
	}
	if rest != "" {
		return value, countTruncated
	}
	return value, countExact
}

func cell(cells []string, idx int) string {
	if idx >= len(cells) {
		return ""
	}
	return htmlutil.CleanText(cells[idx])
}

// Normalize turns raw rows into records, preserving their order. Rows without a hospital
// name are dropped. A result without any record is an ExtractionError.
func (n Normalizer) Normalize(rows []RawRow) (Normalized, error) {
	var out Normalized

	for _, row := range rows {
		if len(row.Cells) < MinColumns {
			rowErr := RowError{Row: row.Position, Reason: "too few columns"}
			out.Warnings = append(out.Warnings, rowErr)
			n.tel.ReportWarning(report_normalizer_row, rowErr, len(row.Cells))
			continue
		}

		name := cell(row.Cells, colName)
		if name == "" {
			rowErr := RowError{Row: row.Position, Reason: "empty hospital name"}
			out.Warnings = append(out.Warnings, rowErr)
			n.tel.ReportWarning(report_normalizer_row, rowErr)
			continue
		}

		record := HospitalRecord{
			SrNo:        cell(row.Cells, colSrNo),
			Name:        name,
			City:        cell(row.Cells, colCity),
			LastUpdated: cell(row.Cells, colLastUpdated),
			SourceRow:   row.Position,
		}

		counts := []struct {
			field string
			col   int
			dst   *int
		}{
			{field: "totalBeds", col: colTotalBeds, dst: &record.TotalBeds},
			{field: "occupiedBeds", col: colOccupiedBeds, dst: &record.OccupiedBeds},
			{field: "availableBeds", col: colAvailableBeds, dst: &record.AvailableBeds},
		}
		for _, c := range counts {
			text := cell(row.Cells, c.col)
			value, parsed := parseCount(text)
			switch parsed {
			case countDefaulted:
				rowErr := RowError{
					Row:    row.Position,
					Reason: fmt.Sprintf("unparsable %s %q defaulted to 0", c.field, text),
				}
				out.Warnings = append(out.Warnings, rowErr)
				out.NumericDefaults++
				n.tel.ReportWarning(report_normalizer_numeric_default, rowErr, name)
			case countTruncated:
				rowErr := RowError{
					Row:    row.Position,
					Reason: fmt.Sprintf("%s %q read as %d, trailing text ignored", c.field, text, value),
				}
				out.Warnings = append(out.Warnings, rowErr)
				n.tel.ReportWarning(report_normalizer_numeric_default, rowErr, name)
			}
			*c.dst = value
		}

		if record.TotalBeds-record.OccupiedBeds != record.AvailableBeds {
			record.BedMismatch = true
			out.Mismatches++
			n.tel.ReportWarning(
				report_normalizer_bed_mismatch,
				RowError{Row: row.Position, Reason: "total - occupied != available"},
				name,
				telemetry.KV{Key: "total", Value: record.TotalBeds},
				telemetry.KV{Key: "occupied", Value: record.OccupiedBeds},
				telemetry.KV{Key: "available", Value: record.AvailableBeds},
			)
		}

		out.Records = append(out.Records, record)
	}

	if len(out.Records) == 0 {
		return out, errNoRows(fmt.Sprintf("all %d row(s) were dropped during normalization", len(rows)))
	}
	return out, nil
}
