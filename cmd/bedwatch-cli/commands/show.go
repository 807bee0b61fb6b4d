package commands

import (
	"fmt"
	"os"

	"bedwatch-backend/internal/snapshot"
	"bedwatch-backend/lib/serviceutil"
	"bedwatch-backend/lib/timezone"

	"github.com/spf13/cobra"
)

var showQuery string

func init() {
	showCmd.Flags().StringVarP(&showQuery, "query", "q", "", "Only show hospitals matching this name or city.")
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <path/to/hospital_data.json> [-q <query>]",
	Short: "Prints a persisted snapshot document.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		snap, err := snapshot.LoadFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to load snapshot", err)
		}

		fmt.Fprintf(
			os.Stdout, "last scraped: %s (%s)\n",
			snap.CapturedAt().Format(snapshot.TimeFormat),
			timezone.Format(snap.CapturedAt()),
		)
		renderRecords(os.Stdout, snapshot.Search(snap, showQuery))
	},
}
