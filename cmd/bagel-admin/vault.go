package main

import (
	"context"
	"crypto/ed25519"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bagel-payroll/bagel-server/pkg/payroll"
)

// authorityCommand runs fn with a payroll client and the configured keypair,
// printing the landed transaction under action.
func authorityCommand(action string, fn func(ctx context.Context, client *payroll.Client, authority ed25519.PrivateKey, args []string) (*payroll.Result, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		authority, err := readKeypair(keypairPath)
		if err != nil {
			return err
		}

		client, err := newPayrollClient()
		if err != nil {
			return err
		}

		printStep(cmd.OutOrStdout(), "Master vault %s", base58.Encode(client.MasterVault()))

		result, err := fn(cmd.Context(), client, authority, args)
		if err != nil {
			return errors.Wrapf(err, "%s failed", action)
		}

		printResult(cmd.OutOrStdout(), action, result)
		return nil
	}
}

var initVaultCmd = &cobra.Command{
	Use:   "init-vault",
	Short: "Create the master vault with the keypair as authority",
	Args:  cobra.NoArgs,
	RunE: authorityCommand("Initialized master vault", func(ctx context.Context, client *payroll.Client, authority ed25519.PrivateKey, _ []string) (*payroll.Result, error) {
		return client.InitializeVault(ctx, authority)
	}),
}

var migrateVaultCmd = &cobra.Command{
	Use:   "migrate-vault",
	Short: "Grow a legacy master vault to the confidential token layout",
	Args:  cobra.NoArgs,
	RunE: authorityCommand("Migrated master vault", func(ctx context.Context, client *payroll.Client, authority ed25519.PrivateKey, _ []string) (*payroll.Result, error) {
		return client.MigrateVault(ctx, authority)
	}),
}

var disableMint bool

var configureMintCmd = &cobra.Command{
	Use:   "configure-mint <mint>",
	Short: "Set the confidential mint and toggle confidential transfers",
	Args:  cobra.ExactArgs(1),
	RunE: authorityCommand("Configured confidential mint", func(ctx context.Context, client *payroll.Client, authority ed25519.PrivateKey, args []string) (*payroll.Result, error) {
		mint, err := parsePublicKey(args[0])
		if err != nil {
			return nil, err
		}
		return client.ConfigureConfidentialMint(ctx, authority, mint, !disableMint)
	}),
}

var setActiveCmd = &cobra.Command{
	Use:   "set-active <true|false>",
	Short: "Pause or resume the master vault",
	Args:  cobra.ExactArgs(1),
	RunE: authorityCommand("Updated master vault status", func(ctx context.Context, client *payroll.Client, authority ed25519.PrivateKey, args []string) (*payroll.Result, error) {
		active, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil, errors.Errorf("invalid status %q", args[0])
		}
		return client.SetVaultActive(ctx, authority, active)
	}),
}

var closeVaultCmd = &cobra.Command{
	Use:   "close-vault",
	Short: "Close the master vault and return its lamports to the authority",
	Args:  cobra.NoArgs,
	RunE: authorityCommand("Closed master vault", func(ctx context.Context, client *payroll.Client, authority ed25519.PrivateKey, _ []string) (*payroll.Result, error) {
		return client.CloseVault(ctx, authority)
	}),
}

var showVaultCmd = &cobra.Command{
	Use:   "show-vault",
	Short: "Print the master vault and its yield position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newPayrollClient()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		vault, err := client.GetMasterVault(cmd.Context())
		if err == payroll.ErrAccountNotFound {
			printWarning(out, "Master vault %s does not exist", base58.Encode(client.MasterVault()))
			return nil
		} else if err != nil {
			return err
		}

		printSuccess(out, "Master vault %s", base58.Encode(client.MasterVault()))
		printField(out, "authority", base58.Encode(vault.Authority))
		printField(out, "total balance", formatSol(vault.TotalBalance))
		printField(out, "active", vault.IsActive)
		printField(out, "next business index", vault.NextBusinessIndex)
		printField(out, "confidential", vault.IsConfidential())
		if vault.IsConfidential() {
			printField(out, "confidential mint", base58.Encode(vault.ConfidentialMint))
		}

		position, err := client.GetYieldPosition(cmd.Context())
		if err == payroll.ErrAccountNotFound {
			return nil
		} else if err != nil {
			return err
		}

		printSuccess(out, "Yield position")
		printField(out, "principal", formatSol(position.Principal))
		printField(out, "apy bps", position.ApyBps)
		printField(out, "total harvested", formatSol(position.TotalHarvested))
		printField(out, "employee yield", formatSol(position.EmployeeYieldTotal))
		printField(out, "employer yield", formatSol(position.EmployerYieldTotal))
		return nil
	},
}

func init() {
	configureMintCmd.Flags().BoolVar(&disableMint, "disable", false, "record the mint but keep moving lamports")
}
