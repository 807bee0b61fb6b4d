package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"bedwatch-backend/internal/bedreport"
	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/internal/snapshot"
	"bedwatch-backend/lib/restyutil"
	"bedwatch-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	scrapeUrl        string
	scrapeOut        string
	scrapeTimeout    time.Duration
	scrapeRetries    int
	scrapeCloudflare bool
	scrapeDump       string
)

func init() {
	scrapeCmd.Flags().StringVar(&scrapeUrl, "url", bedreport.DefaultUrl, "The bed report to scrape.")
	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "", "Write the scraped snapshot document to this path.")
	scrapeCmd.Flags().DurationVar(&scrapeTimeout, "timeout", time.Second*30, "Timeout of a single fetch attempt.")
	scrapeCmd.Flags().IntVar(&scrapeRetries, "retries", 3, "Fetch attempts after the first one.")
	scrapeCmd.Flags().BoolVar(&scrapeCloudflare, "cloudflare", false, "Use the cloudflare bypass transport.")
	scrapeCmd.Flags().StringVar(&scrapeDump, "dump", "", "Write every upstream exchange to this directory.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--out <path/to/hospital_data.json>]",
	Short: "Scrapes the bed report once and prints the normalized records.",
	Run: func(cmd *cobra.Command, args []string) {
		tel := telemetry.SlogAPI{}
		opts := bedreport.FetcherOptions{
			Timeout:          scrapeTimeout,
			Retries:          scrapeRetries,
			CloudflareBypass: scrapeCloudflare,
		}
		if scrapeDump != "" {
			out, err := restyutil.NewDirOutput(scrapeDump)
			if err != nil {
				serviceutil.Fatal("failed to create dump directory", err)
			}
			opts.Dump = out
		}
		fetcher := bedreport.NewHttpFetcher(opts, tel)
		scraper := bedreport.NewScraper(scrapeUrl, fetcher, bedreport.NewScrollPanelStrategy(tel), tel)

		t1 := time.Now()
		report, err := scraper.Scrape(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to scrape", err)
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds())

		renderRecords(os.Stdout, report.Records)
		renderWarnings(os.Stdout, report.Warnings)
		if report.NumericDefaults > 0 || report.Mismatches > 0 {
			fmt.Fprintf(
				os.Stdout,
				"%d bed count(s) defaulted to 0, %d bed mismatch(es)\n",
				report.NumericDefaults, report.Mismatches,
			)
		}

		if scrapeOut == "" {
			return
		}
		snap := snapshot.New(time.Now(), report.Records)
		err = snapshot.NewFileSink(scrapeOut).Persist(cmd.Context(), snap)
		if err != nil {
			serviceutil.Fatal("failed to write snapshot", err)
		}
		slog.Info("wrote snapshot", "path", scrapeOut, "hospitals", snap.Len())
	},
}
