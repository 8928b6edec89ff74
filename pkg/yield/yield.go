// Package yield implements the plaintext bookkeeping of the vault's lending
// position: accrued yield, the liquid/yield allocation split and the
// employee/employer distribution split.
package yield

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// DefaultApyBps is the estimated lending APY, 7%.
	DefaultApyBps uint16 = 700

	// AllocationBps is the share of an allocation moved into the position.
	// The rest stays liquid.
	AllocationBps = 9_000

	// EmployeeShareBps is the share of harvested yield credited to
	// employees. Rounding dust also goes to employees.
	EmployeeShareBps = 8_000

	SecondsPerYear = 31_536_000

	bpsDenominator = 10_000
)

var (
	ErrNegativeElapsed = errors.New("elapsed time is negative")
	ErrOverflow        = errors.New("amount overflows u64")
)

var (
	bps        = decimal.NewFromInt(bpsDenominator)
	secPerYear = decimal.NewFromInt(SecondsPerYear)
	maxUint64  = decimal.RequireFromString("18446744073709551615")
)

// Accrued returns floor(principal * apyBps * elapsed / (10000 * 31536000)).
func Accrued(principal uint64, apyBps uint16, elapsed int64) (uint64, error) {
	if elapsed < 0 {
		return 0, ErrNegativeElapsed
	}

	numerator := decimal.NewFromBigInt(new(big.Int).SetUint64(principal), 0).
		Mul(decimal.NewFromInt(int64(apyBps))).
		Mul(decimal.NewFromInt(elapsed))

	quotient, _ := numerator.QuoRem(bps.Mul(secPerYear), 0)
	return toUint64(quotient)
}

// Split divides an allocation into the amount moved into the position and
// the amount that stays liquid.
func Split(amount uint64) (toYield, liquid uint64) {
	toYield = share(amount, AllocationBps)
	return toYield, amount - toYield
}

// Distribute divides harvested yield between employees and the employer.
func Distribute(harvested uint64) (employees, employer uint64) {
	employer = share(harvested, bpsDenominator-EmployeeShareBps)
	return harvested - employer, employer
}

// share returns floor(amount * shareBps / 10000), which never exceeds amount.
func share(amount uint64, shareBps int64) uint64 {
	quotient, _ := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).
		Mul(decimal.NewFromInt(shareBps)).
		QuoRem(bps, 0)
	return quotient.BigInt().Uint64()
}

func toUint64(value decimal.Decimal) (uint64, error) {
	if value.GreaterThan(maxUint64) {
		return 0, ErrOverflow
	}
	return value.BigInt().Uint64(), nil
}
