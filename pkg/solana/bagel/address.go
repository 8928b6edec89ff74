package bagel

import (
	"crypto/ed25519"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
)

var (
	MasterVaultPrefix   = []byte("master_vault")
	BusinessEntryPrefix = []byte("entry")
	EmployeeEntryPrefix = []byte("employee")
	YieldPositionPrefix = []byte("yield_position")
)

var (
	employerCommitmentPrefix = []byte("employer")
	employeeCommitmentPrefix = []byte("employee")
)

const CommitmentSize = 32

// Commitment binds an entry to the wallet allowed to act on it without
// storing the wallet's public key.
type Commitment [CommitmentSize]byte

func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

func (c Commitment) String() string {
	if c.IsZero() {
		return "Commitment(unset)"
	}
	return "Commitment(redacted)"
}

func GetMasterVaultAddress() (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		MasterVaultPrefix,
	)
}

// GetBusinessEntryAddress derives a business PDA from its sequence number,
// never from the employer's key.
func GetBusinessEntryAddress(masterVault ed25519.PublicKey, entryIndex uint64) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		BusinessEntryPrefix,
		masterVault,
		indexSeed(entryIndex),
	)
}

// GetEmployeeEntryAddress derives an employee PDA from its sequence number
// within the business, never from the employee's key.
func GetEmployeeEntryAddress(businessEntry ed25519.PublicKey, employeeIndex uint64) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		EmployeeEntryPrefix,
		businessEntry,
		indexSeed(employeeIndex),
	)
}

func GetYieldPositionAddress(masterVault ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		YieldPositionPrefix,
		masterVault,
	)
}

func GetBusinessEntrySeeds(masterVault ed25519.PublicKey, entryIndex uint64) [][]byte {
	return [][]byte{
		BusinessEntryPrefix,
		masterVault,
		indexSeed(entryIndex),
	}
}

// GetEmployeeEntrySeeds returns the seeds the program signs with on behalf of
// an employee entry, bump excluded.
func GetEmployeeEntrySeeds(businessEntry ed25519.PublicKey, employeeIndex uint64) [][]byte {
	return [][]byte{
		EmployeeEntryPrefix,
		businessEntry,
		indexSeed(employeeIndex),
	}
}

func EmployerCommitment(businessEntry, employer ed25519.PublicKey) Commitment {
	return commit(employerCommitmentPrefix, businessEntry, employer)
}

func EmployeeCommitment(employeeEntry, employee ed25519.PublicKey) Commitment {
	return commit(employeeCommitmentPrefix, employeeEntry, employee)
}

func commit(role []byte, entry, wallet ed25519.PublicKey) Commitment {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write(role)
	h.Write(entry)
	h.Write(wallet)

	var res Commitment
	copy(res[:], h.Sum(nil))
	return res
}

func indexSeed(index uint64) []byte {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], index)
	return seed[:]
}
