package bagel

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

const (
	YieldPositionSize = (bin.DiscriminatorSize +
		32 + // master_vault
		8 + // principal
		2 + // apy_bps
		8 + // last_harvest
		8 + // total_harvested
		8 + // employee_yield_total
		8 + // employer_yield_total
		1) // bump
)

var YieldPositionDiscriminator = bin.AccountDiscriminator("YieldPosition")

type YieldPosition struct {
	MasterVault        ed25519.PublicKey
	Principal          uint64
	ApyBps             uint16
	LastHarvest        int64
	TotalHarvested     uint64
	EmployeeYieldTotal uint64
	EmployerYieldTotal uint64
	Bump               uint8
}

func (obj *YieldPosition) Marshal() []byte {
	data := make([]byte, YieldPositionSize)

	var offset int
	bin.PutDiscriminator(data[offset:], YieldPositionDiscriminator, &offset)
	bin.PutKey32(data[offset:], keyOrZero(obj.MasterVault), &offset)
	bin.PutUint64(data[offset:], obj.Principal, &offset)
	bin.PutUint16(data[offset:], obj.ApyBps, &offset)
	bin.PutInt64(data[offset:], obj.LastHarvest, &offset)
	bin.PutUint64(data[offset:], obj.TotalHarvested, &offset)
	bin.PutUint64(data[offset:], obj.EmployeeYieldTotal, &offset)
	bin.PutUint64(data[offset:], obj.EmployerYieldTotal, &offset)
	bin.PutUint8(data[offset:], obj.Bump, &offset)

	return data
}

func (obj *YieldPosition) Unmarshal(data []byte) error {
	if len(data) < YieldPositionSize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	bin.GetDiscriminator(data[offset:], &discriminator, &offset)
	if !bytes.Equal(discriminator, YieldPositionDiscriminator) {
		return ErrInvalidAccountData
	}

	bin.GetKey32(data[offset:], &obj.MasterVault, &offset)
	bin.GetUint64(data[offset:], &obj.Principal, &offset)
	bin.GetUint16(data[offset:], &obj.ApyBps, &offset)
	bin.GetInt64(data[offset:], &obj.LastHarvest, &offset)
	bin.GetUint64(data[offset:], &obj.TotalHarvested, &offset)
	bin.GetUint64(data[offset:], &obj.EmployeeYieldTotal, &offset)
	bin.GetUint64(data[offset:], &obj.EmployerYieldTotal, &offset)
	bin.GetUint8(data[offset:], &obj.Bump, &offset)

	return nil
}

func (obj *YieldPosition) String() string {
	return fmt.Sprintf(
		"YieldPosition{master_vault=%s,principal=%d,apy_bps=%d,last_harvest=%d,total_harvested=%d,employee_yield_total=%d,employer_yield_total=%d,bump=%d}",
		base58.Encode(obj.MasterVault),
		obj.Principal,
		obj.ApyBps,
		obj.LastHarvest,
		obj.TotalHarvested,
		obj.EmployeeYieldTotal,
		obj.EmployerYieldTotal,
		obj.Bump,
	)
}
