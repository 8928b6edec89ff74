package bagel

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/solana/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/solana/system"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// Program is the payroll program. It keeps plaintext sequence numbers and
// opaque handles, and delegates every operation on encrypted values to the
// FHE co-processor.
type Program struct {
	log *logrus.Entry

	masterVault     ed25519.PublicKey
	masterVaultBump uint8
}

func New() (*Program, error) {
	masterVault, bump, err := bagel.GetMasterVaultAddress()
	if err != nil {
		return nil, errors.Wrap(err, "error deriving master vault address")
	}

	return &Program{
		log:             logrus.StandardLogger().WithField("type", "svm/programs/bagel"),
		masterVault:     masterVault,
		masterVaultBump: bump,
	}, nil
}

func (p *Program) ProgramID() ed25519.PublicKey {
	return bagel.PROGRAM_ID
}

func (p *Program) Process(ctx *svm.InvokeContext) error {
	ix, err := bagel.GetInstruction(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	ctx.Logf("Instruction: %s", ix)

	switch ix {
	case bagel.InstructionInitializeVault:
		return p.initializeVault(ctx)
	case bagel.InstructionMigrateVault:
		return p.migrateVault(ctx)
	case bagel.InstructionConfigureConfidentialMint:
		return p.configureConfidentialMint(ctx)
	case bagel.InstructionSetVaultActive:
		return p.setVaultActive(ctx)
	case bagel.InstructionCloseVault:
		return p.closeVault(ctx)
	case bagel.InstructionRegisterBusiness:
		return p.registerBusiness(ctx)
	case bagel.InstructionDeposit:
		return p.deposit(ctx)
	case bagel.InstructionSetBusinessActive:
		return p.setBusinessActive(ctx)
	case bagel.InstructionCloseBusinessEntry:
		return p.closeBusinessEntry(ctx)
	case bagel.InstructionAddEmployee:
		return p.addEmployee(ctx)
	case bagel.InstructionAccrue:
		return p.accrue(ctx)
	case bagel.InstructionRequestWithdrawal:
		return p.requestWithdrawal(ctx)
	case bagel.InstructionUpdateSalary:
		return p.updateSalary(ctx)
	case bagel.InstructionDeactivateEmployee:
		return p.deactivateEmployee(ctx)
	case bagel.InstructionCloseEmployeeEntry:
		return p.closeEmployeeEntry(ctx)
	case bagel.InstructionDelegateToTee:
		return p.delegateToTee(ctx)
	case bagel.InstructionCommitFromTee:
		return p.commitFromTee(ctx)
	case bagel.InstructionAllocateToYield:
		return p.allocateToYield(ctx)
	case bagel.InstructionHarvestYield:
		return p.harvestYield(ctx)
	case bagel.InstructionReleaseFromYield:
		return p.releaseFromYield(ctx)
	default:
		return svm.ErrInvalidInstructionData
	}
}

// fail logs an error the way anchor programs do and returns the matching
// custom error.
func fail(ctx *svm.InvokeContext, code bagel.ErrorCode) error {
	ctx.Logf(
		"AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.",
		code.Name(),
		int(code),
		code.Error(),
	)
	return solana.CustomError(code)
}

func emit(ctx *svm.InvokeContext, e bagel.Event) {
	ctx.LogData(bagel.MarshalEvent(e))
}

func accounts(ctx *svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	if len(ctx.Accounts()) < n {
		return nil, svm.ErrNotEnoughAccountKeys
	}
	return ctx.Accounts()[:n], nil
}

// optional returns nil for an optional account that wasn't provided.
func optional(info *svm.AccountInfo) *svm.AccountInfo {
	if !bagel.IsAccountPresent(info.Key) {
		return nil
	}
	return info
}

func requireSigner(info *svm.AccountInfo) error {
	if !info.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	return nil
}

func (p *Program) loadVault(ctx *svm.InvokeContext, info *svm.AccountInfo) (*bagel.MasterVault, error) {
	if !bytes.Equal(info.Key, p.masterVault) {
		ctx.Logf("Error: %s is not the master vault", base58.Encode(info.Key))
		return nil, fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if !info.IsOwnedBy(bagel.PROGRAM_ID) {
		return nil, svm.ErrIncorrectProgramID
	}

	var vault bagel.MasterVault
	if len(info.Data) < bagel.MasterVaultSize {
		ctx.Logf("Error: master vault must be migrated")
		return nil, fail(ctx, bagel.ErrorCodeInvalidState)
	}
	if err := vault.Unmarshal(info.Data); err != nil {
		return nil, svm.ErrInvalidAccountData
	}
	return &vault, nil
}

// loadActiveVault loads the vault for instructions that are blocked while
// the payroll is paused.
func (p *Program) loadActiveVault(ctx *svm.InvokeContext, info *svm.AccountInfo) (*bagel.MasterVault, error) {
	vault, err := p.loadVault(ctx, info)
	if err != nil {
		return nil, err
	}
	if !vault.IsActive {
		return nil, fail(ctx, bagel.ErrorCodePayrollInactive)
	}
	return vault, nil
}

// checkAuthority gates instructions reserved to the vault authority.
func checkAuthority(ctx *svm.InvokeContext, vault *bagel.MasterVault, authority *svm.AccountInfo) error {
	if !authority.IsSigner || !bytes.Equal(vault.Authority, authority.Key) {
		return fail(ctx, bagel.ErrorCodeUnauthorized)
	}
	return nil
}

func saveVault(info *svm.AccountInfo, vault *bagel.MasterVault) {
	copy(info.Data, vault.Marshal())
}

func (p *Program) loadBusiness(ctx *svm.InvokeContext, info *svm.AccountInfo) (*bagel.BusinessEntry, error) {
	if !info.IsOwnedBy(bagel.PROGRAM_ID) {
		return nil, svm.ErrIncorrectProgramID
	}

	var business bagel.BusinessEntry
	if err := business.Unmarshal(info.Data); err != nil {
		return nil, svm.ErrInvalidAccountData
	}

	if !bytes.Equal(business.MasterVault, p.masterVault) {
		return nil, fail(ctx, bagel.ErrorCodeInvalidState)
	}

	seeds := append(bagel.GetBusinessEntrySeeds(p.masterVault, business.EntryIndex), []byte{business.Bump})
	address, err := solana.CreateProgramAddress(bagel.PROGRAM_ID, seeds...)
	if err != nil || !bytes.Equal(address, info.Key) {
		ctx.Logf("Error: %s is not a business entry address", base58.Encode(info.Key))
		return nil, fail(ctx, bagel.ErrorCodeInvalidState)
	}
	return &business, nil
}

// checkEmployer verifies the signer against the employer commitment of the
// business.
func checkEmployer(ctx *svm.InvokeContext, businessInfo *svm.AccountInfo, business *bagel.BusinessEntry, employer *svm.AccountInfo) error {
	if !employer.IsSigner || bagel.EmployerCommitment(businessInfo.Key, employer.Key) != business.EmployerCommitment {
		return fail(ctx, bagel.ErrorCodeIdentityVerificationFailed)
	}
	return nil
}

func saveBusiness(info *svm.AccountInfo, business *bagel.BusinessEntry) {
	copy(info.Data, business.Marshal())
}

// loadEmployee loads an employee entry of the business. Entries delegated
// to a TEE validator are owned by the delegation program and rejected.
func (p *Program) loadEmployee(ctx *svm.InvokeContext, businessInfo, info *svm.AccountInfo) (*bagel.EmployeeEntry, error) {
	if _, ok := bagel.GetDelegationState(info.Owner, nil).(bagel.Delegated); ok {
		return nil, fail(ctx, bagel.ErrorCodeAccountDelegated)
	}
	if !info.IsOwnedBy(bagel.PROGRAM_ID) {
		return nil, svm.ErrIncorrectProgramID
	}

	var employee bagel.EmployeeEntry
	if err := employee.Unmarshal(info.Data); err != nil {
		return nil, svm.ErrInvalidAccountData
	}

	if err := checkEmployeeAddress(ctx, businessInfo, info, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}

func checkEmployeeAddress(ctx *svm.InvokeContext, businessInfo, info *svm.AccountInfo, employee *bagel.EmployeeEntry) error {
	if !bytes.Equal(employee.BusinessEntry, businessInfo.Key) {
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}

	seeds := append(bagel.GetEmployeeEntrySeeds(businessInfo.Key, employee.EmployeeIndex), []byte{employee.Bump})
	address, err := solana.CreateProgramAddress(bagel.PROGRAM_ID, seeds...)
	if err != nil || !bytes.Equal(address, info.Key) {
		ctx.Logf("Error: %s is not an employee entry address", base58.Encode(info.Key))
		return fail(ctx, bagel.ErrorCodeInvalidState)
	}
	return nil
}

// checkEmployee verifies the signer against the employee commitment.
func checkEmployee(ctx *svm.InvokeContext, info *svm.AccountInfo, employee *bagel.EmployeeEntry, signer *svm.AccountInfo) error {
	if !signer.IsSigner || bagel.EmployeeCommitment(info.Key, signer.Key) != employee.EmployeeCommitment {
		return fail(ctx, bagel.ErrorCodeIdentityVerificationFailed)
	}
	return nil
}

func saveEmployee(info *svm.AccountInfo, employee *bagel.EmployeeEntry) {
	copy(info.Data, employee.Marshal())
}

func isDelegated(info *svm.AccountInfo) bool {
	return info.IsOwnedBy(magicblock.PROGRAM_ID)
}

// createAccount allocates a program owned PDA funded by payer.
func createAccount(ctx *svm.InvokeContext, payer, target *svm.AccountInfo, size int, seeds [][]byte, bump uint8) error {
	ix := system.CreateAccount(
		payer.Key,
		target.Key,
		bagel.PROGRAM_ID,
		ctx.Rent().MinimumBalance(size),
		uint64(size),
	)
	return ctx.InvokeSigned(ix, append(seeds, []byte{bump}))
}

// closeAccount moves every lamport of a program owned account to dest and
// hands the account back to the system program.
func closeAccount(info, dest *svm.AccountInfo) {
	dest.Lamports += info.Lamports
	info.Lamports = 0
	info.Data = nil
	info.Owner = system.SystemAccount
}

func checkedAdd(a, b uint64) (uint64, bool) {
	res := a + b
	return res, res >= a
}

func checkedSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}
