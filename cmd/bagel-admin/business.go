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

var (
	employerKeypairPath string
	employerID          uint64
)

var registerBusinessCmd = &cobra.Command{
	Use:   "register-business",
	Short: "Register a business under the master vault",
	Long: `Registers a business entry for an employer. The employer signs and pays for
the entry. The --keypair flag names the vault authority.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, err := readKeypair(keypairPath)
		if err != nil {
			return err
		}

		employer := authority
		if len(employerKeypairPath) > 0 {
			employer, err = readKeypair(employerKeypairPath)
			if err != nil {
				return err
			}
		}

		client, err := newPayrollClient()
		if err != nil {
			return err
		}

		printStep(cmd.OutOrStdout(), "Employer %s", base58.Encode(employer.Public().(ed25519.PublicKey)))

		business, result, err := client.RegisterBusiness(cmd.Context(), employer, authority, employerID)
		if err != nil {
			return errors.Wrap(err, "register business failed")
		}

		printResult(cmd.OutOrStdout(), "Registered business", result)
		printField(cmd.OutOrStdout(), "business", base58.Encode(business))
		return nil
	},
}

var setBusinessActiveCmd = &cobra.Command{
	Use:   "set-business-active <business> <true|false>",
	Short: "Pause or resume a single business",
	Long:  `Pauses or resumes a business entry. The --keypair flag names the employer.`,
	Args:  cobra.ExactArgs(2),
	RunE: authorityCommand("Updated business status", func(ctx context.Context, client *payroll.Client, employer ed25519.PrivateKey, args []string) (*payroll.Result, error) {
		business, err := parsePublicKey(args[0])
		if err != nil {
			return nil, err
		}
		active, err := strconv.ParseBool(args[1])
		if err != nil {
			return nil, errors.Errorf("invalid status %q", args[1])
		}
		return client.SetBusinessActive(ctx, employer, business, active)
	}),
}

func init() {
	registerBusinessCmd.Flags().StringVar(&employerKeypairPath, "employer-keypair", "", "employer keypair file, defaults to --keypair")
	registerBusinessCmd.Flags().Uint64Var(&employerID, "employer-id", 0, "external employer identifier")
}
