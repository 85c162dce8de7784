package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medvault/cmd/medvault-cli/api"
)

var recordsCmd = &cobra.Command{
	Use:   "records <patientId>",
	Short: "List a patient's records",
	Long:  "Lists records the caller's token is allowed to read. Entries that failed decryption are shown with their error kind.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showPayload, _ := cmd.Flags().GetBool("payload")
		records, err := api.NewClient().ListRecords(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No records.")
			return
		}
		for _, rec := range records {
			fmt.Printf("- %s [%s] %s (added by %s at %s)\n",
				rec.RecordID, rec.RecordType, rec.Title, rec.AddedBy, rec.CreatedAt)
			if rec.Error != "" {
				fmt.Printf("  ERROR: %s\n", rec.Error)
				continue
			}
			if showPayload {
				payload, err := base64.StdEncoding.DecodeString(rec.Plaintext)
				if err != nil {
					fmt.Printf("  ERROR: payload is not valid base64\n")
					continue
				}
				fmt.Printf("  %s\n", string(payload))
			}
		}
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <patientId> <file>",
	Short: "Submit a file as a new record",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		recordType, _ := cmd.Flags().GetString("type")
		payload, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		recordID, err := api.NewClient().SubmitRecord(args[0], title, recordType, payload)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Record submitted: %s\n", recordID)
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.Flags().BoolP("payload", "p", false, "Print decrypted payloads")

	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringP("title", "t", "", "Record title")
	submitCmd.Flags().String("type", "clinical_note", "Record type")
	submitCmd.MarkFlagRequired("title")
}
