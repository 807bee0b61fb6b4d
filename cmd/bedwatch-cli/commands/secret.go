package commands

import (
	"fmt"
	"os"

	"bedwatch-backend/lib/serviceutil"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

var secretLength int

func init() {
	genSecretCmd.Flags().IntVarP(&secretLength, "length", "n", 40, "The length of the secret.")
	rootCmd.AddCommand(genSecretCmd)
}

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret [-n <length>]",
	Short: "Generates a random trigger secret for the server config.",
	Run: func(cmd *cobra.Command, args []string) {
		if secretLength < 16 {
			serviceutil.Fatal("secret too short", fmt.Errorf("length must be at least 16, got %d", secretLength))
		}
		secret, err := random.String(secretLength)
		if err != nil {
			serviceutil.Fatal("failed to generate secret", err)
		}
		fmt.Fprintln(os.Stdout, secret)
	},
}
