package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medvault/cmd/medvault-cli/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query node status",
	Example: `  medvault status
  medvault status --output json`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		status, err := api.NewClient().GetStatus()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if output == "json" {
			fmt.Println(status.ToJSON())
		} else {
			fmt.Printf("Status: %s\nUptime: %ds\nRecords: %d\nOutbox Depth: %d\nVersion: %s (API %s)\n",
				status.Status, status.Uptime, status.RecordCount, status.OutboxDepth, status.Version, status.APIVersion)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "plain", "Output format: plain|json")
}
