package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

const (
	rpcURLEnv  = "BAGEL_RPC_URL"
	keypairEnv = "BAGEL_KEYPAIR"
)

var (
	rpcURL      string
	keypairPath string
)

var rootCmd = &cobra.Command{
	Use:   "bagel-admin",
	Short: "Operate a Bagel payroll deployment",
	Long: `bagel-admin drives the payroll program on a Bagel validator over JSON-RPC.

It covers the operator side of a deployment: creating and migrating the master
vault, switching it to confidential tokens, pausing it, and registering
businesses. Signing keys are read from solana-keygen style JSON files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rpcURL, "url", "u", envOrDefault(rpcURLEnv, solana.LocalnetURL), "validator JSON-RPC endpoint or cluster moniker (localnet, devnet, mainnet-beta)")
	rootCmd.PersistentFlags().StringVarP(&keypairPath, "keypair", "k", os.Getenv(keypairEnv), "path to the signing keypair file")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(initVaultCmd)
	rootCmd.AddCommand(migrateVaultCmd)
	rootCmd.AddCommand(configureMintCmd)
	rootCmd.AddCommand(setActiveCmd)
	rootCmd.AddCommand(closeVaultCmd)
	rootCmd.AddCommand(showVaultCmd)
	rootCmd.AddCommand(registerBusinessCmd)
	rootCmd.AddCommand(setBusinessActiveCmd)
	rootCmd.AddCommand(airdropCmd)
}

func envOrDefault(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && len(v) > 0 {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
