package commands

import (
	"fmt"
	"os"
	"strconv"

	"bedwatch-backend/internal/snapshot"
	"bedwatch-backend/lib/serviceutil"
	"bedwatch-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	archiveDriver string
	archiveDsn    string
	archiveLimit  int
)

func init() {
	archiveCmd.PersistentFlags().StringVar(&archiveDriver, "driver", snapshot.DriverSqlite, "The archive database driver (sqlite, libsql, pgx).")
	archiveCmd.PersistentFlags().StringVar(&archiveDsn, "dsn", "archive.db", "The archive database dsn.")
	archiveListCmd.Flags().IntVarP(&archiveLimit, "limit", "n", 20, "The amount of snapshots to list.")

	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	rootCmd.AddCommand(archiveCmd)
}

func openArchive(cmd *cobra.Command) *snapshot.Archive {
	archive, err := snapshot.OpenArchive(cmd.Context(), archiveDriver, archiveDsn)
	if err != nil {
		serviceutil.Fatal("failed to open archive", err)
	}
	return archive
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspects the snapshot archive.",
}

var archiveListCmd = &cobra.Command{
	Use:   "list [-n <limit>]",
	Short: "Lists the most recent archived snapshots.",
	Run: func(cmd *cobra.Command, args []string) {
		archive := openArchive(cmd)
		defer archive.Close()

		entries, err := archive.List(cmd.Context(), archiveLimit)
		if err != nil {
			serviceutil.Fatal("failed to list archive", err)
		}

		t := newTable(os.Stdout)
		t.AppendHeader(table.Row{"Id", "Captured At", "Local", "Hospitals"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.Id,
				e.CapturedAt.Format(snapshot.TimeFormat),
				timezone.Format(e.CapturedAt),
				e.RecordCount,
			})
		}
		t.Render()
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Prints an archived snapshot.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			serviceutil.Fatal("invalid snapshot id", err)
		}

		archive := openArchive(cmd)
		defer archive.Close()

		snap, err := archive.Load(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to load snapshot", err)
		}
		fmt.Fprintf(
			os.Stdout, "captured at: %s (%s)\n",
			snap.CapturedAt().Format(snapshot.TimeFormat),
			timezone.Format(snap.CapturedAt()),
		)
		renderRecords(os.Stdout, snap.Records())
	},
}
