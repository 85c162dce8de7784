package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medvault/core/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Generate a signer wallet",
	Long:  "Generates a fresh Ed25519 wallet. Put the private key in MEDVAULT_SIGNER_PRIVKEY on nodes that submit to an external ledger.",
	Run: func(cmd *cobra.Command, args []string) {
		w, err := wallet.Generate()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Address: %s\n", w.Address)
		fmt.Printf("Public Key (base64): %s\n", base64.StdEncoding.EncodeToString(w.PublicKey))
		fmt.Printf("Private Key (base64): %s\n", base64.StdEncoding.EncodeToString(w.PrivateKey))
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
}
