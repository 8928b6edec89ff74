package main

import (
	"crypto/ed25519"

	"github.com/spf13/cobra"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

var airdropLamports uint64

var airdropCmd = &cobra.Command{
	Use:   "airdrop [address]",
	Short: "Request lamports from the validator faucet",
	Long: `Requests an airdrop from the validator faucet. Funds go to the given address,
or to the configured keypair when none is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var to ed25519.PublicKey
		if len(args) == 1 {
			key, err := parsePublicKey(args[0])
			if err != nil {
				return err
			}
			to = key
		} else {
			key, err := readKeypair(keypairPath)
			if err != nil {
				return err
			}
			to = key.Public().(ed25519.PublicKey)
		}

		sig, err := solana.New(solana.ResolveCluster(rpcURL)).RequestAirdrop(to, airdropLamports, solana.CommitmentFinalized)
		if err != nil {
			return err
		}

		printSuccess(cmd.OutOrStdout(), "Airdropped %s", formatSol(airdropLamports))
		printField(cmd.OutOrStdout(), "signature", sig.ToBase58())
		return nil
	},
}

func init() {
	airdropCmd.Flags().Uint64Var(&airdropLamports, "lamports", lamportsPerSol, "amount to request")
}
