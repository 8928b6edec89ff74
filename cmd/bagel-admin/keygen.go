package main

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
)

var keygenOutfile string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new signing keypair",
	Long: `Generates an ed25519 keypair and writes it as a solana-keygen compatible
JSON file. Existing files are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		public, private, err := ed25519.GenerateKey(nil)
		if err != nil {
			return err
		}

		if err := writeKeypair(keygenOutfile, private); err != nil {
			return err
		}

		printSuccess(cmd.OutOrStdout(), "Wrote keypair to %s", keygenOutfile)
		printField(cmd.OutOrStdout(), "address", base58.Encode(public))
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOutfile, "outfile", "o", "keypair.json", "path of the keypair file to create")
}
