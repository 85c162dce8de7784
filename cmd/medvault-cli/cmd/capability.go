package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medvault/cmd/medvault-cli/api"
)

var grantCmd = &cobra.Command{
	Use:   "grant <patientId> <doctorId>",
	Short: "Grant a doctor access to a patient's records",
	Long:  "Grants access on the capability ledger. Only the patient's own token can grant access to their records.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := api.NewClient().Grant(args[0], args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if status == "queued" {
			fmt.Println("Grant queued: the ledger is unreachable, the node will retry.")
		} else {
			fmt.Println("Access granted.")
		}
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <patientId> <doctorId>",
	Short: "Revoke a doctor's access to a patient's records",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := api.NewClient().Revoke(args[0], args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if status == "queued" {
			fmt.Println("Revoke queued: the ledger is unreachable, the node will retry.")
		} else {
			fmt.Println("Access revoked.")
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <patientId> <doctorId>",
	Short: "Check whether a doctor currently has access",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		hasAccess, err := api.NewClient().CheckAccess(args[0], args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Has access: %v\n", hasAccess)
	},
}

func init() {
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(checkCmd)
}
