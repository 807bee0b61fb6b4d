package bedreport

import (
	"context"

	"bedwatch-backend/internal/components/assert"
	"bedwatch-backend/internal/components/telemetry"
)

// Report is the result of one successful fetch -> extract -> normalize pass.
type Report struct {
	Records []HospitalRecord
	// Warnings holds every row level problem, both from extraction and normalization.
	Warnings        []RowError
	NumericDefaults int
	Mismatches      int
}

// Scraper runs the ingestion pipeline against a single upstream url.
type Scraper struct {
	url        string
	fetcher    Fetcher
	strategy   Strategy
	normalizer Normalizer
	tel        telemetry.API
}

func NewScraper(url string, fetcher Fetcher, strategy Strategy, tel telemetry.API) Scraper {
	assert.NotEmptyStr(url, "url")
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(strategy, "strategy")
	assert.NotNil(tel, "tel")

	return Scraper{
		url:        url,
		fetcher:    fetcher,
		strategy:   strategy,
		normalizer: NewNormalizer(tel),
		tel:        telemetry.NewScopedAPI("bedreport", tel),
	}
}

func (s Scraper) Url() string {
	return s.url
}

// Scrape returns a *FetchError or an *ExtractionError when the cycle cannot produce records,
// row level problems only show up in Report.Warnings. It stops between stages once ctx is
// done and returns ctx.Err().
func (s Scraper) Scrape(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "Scraper:Scrape")
	defer span.End()

	document, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	extraction, err := s.strategy.Extract(ctx, document)
	if err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	normalized, err := s.normalizer.Normalize(extraction.Rows)
	if err != nil {
		s.tel.ReportBroken(report_normalizer_row, err)
		return Report{}, err
	}

	warnings := make([]RowError, 0, len(extraction.Dropped)+len(normalized.Warnings))
	warnings = append(warnings, extraction.Dropped...)
	warnings = append(warnings, normalized.Warnings...)

	s.tel.ReportDebug(
		"scraped report",
		telemetry.KV{Key: "records", Value: len(normalized.Records)},
		telemetry.KV{Key: "warnings", Value: len(warnings)},
	)

	return Report{
		Records:         normalized.Records,
		Warnings:        warnings,
		NumericDefaults: normalized.NumericDefaults,
		Mismatches:      normalized.Mismatches,
	}, nil
}
