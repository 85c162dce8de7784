package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medvault/cmd/medvault-cli/api"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query node health summary",
	Run: func(cmd *cobra.Command, args []string) {
		health, err := api.NewClient().GetNodeHealth()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Node Health: %s\n", health.Status)
		fmt.Printf("Uptime: %ds\n", health.Metrics.UptimeSeconds)
		fmt.Printf("Records: %d\n", health.Metrics.RecordCount)
		fmt.Printf("Outbox Depth: %d\n", health.Metrics.OutboxDepth)
		fmt.Printf("Degraded: %v\n", health.Metrics.Degraded)
		fmt.Printf("CPU Load: %.2f%%\n", health.Metrics.CPULoadPercent)
		fmt.Printf("Memory Usage: %.2f MB\n", health.Metrics.MemoryMB)
		fmt.Printf("Disk Free: %.2f MB\n", health.Metrics.DiskFreeMB)
	},
}

var livenessCmd = &cobra.Command{
	Use:   "liveness",
	Short: "Check node liveness",
	Run: func(cmd *cobra.Command, args []string) {
		alive, err := api.NewClient().GetLiveness()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Liveness: %v\n", alive)
	},
}

var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Check node readiness",
	Run: func(cmd *cobra.Command, args []string) {
		ready, err := api.NewClient().GetReadiness()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Readiness: %v\n", ready)
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(livenessCmd)
	rootCmd.AddCommand(readinessCmd)
}
