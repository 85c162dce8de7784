package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "medvault",
	Short: "MedVault record store CLI",
	Long:  "A command-line tool for managing capabilities and encrypted records on a MedVault node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
