package svm

import "time"

const (
	LamportsPerSol = 1_000_000_000

	// AccountStorageOverhead is the number of bytes charged on top of the data
	// length when computing rent.
	AccountStorageOverhead = 128

	defaultLamportsPerByteYear = 3480
	defaultExemptionThreshold  = 2
)

// Rent is the rent sysvar. Only exemption is supported: every account must
// either hold at least the minimum balance for its size or be closed.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: defaultLamportsPerByteYear,
		ExemptionThreshold:  defaultExemptionThreshold,
	}
}

// MinimumBalance returns the lamports required for an account holding size
// bytes of data to be rent exempt.
func (r Rent) MinimumBalance(size int) uint64 {
	return (AccountStorageOverhead + uint64(size)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether balance keeps an account of the given size alive.
func (r Rent) IsExempt(balance uint64, size int) bool {
	return balance >= r.MinimumBalance(size)
}

// Clock is the clock sysvar as observed by a transaction.
type Clock struct {
	Slot          uint64
	UnixTimestamp int64
}

func newClock(slot uint64, now time.Time) Clock {
	return Clock{
		Slot:          slot,
		UnixTimestamp: now.Unix(),
	}
}
