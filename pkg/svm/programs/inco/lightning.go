package inco

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	inco_client "github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// Lightning is a devnet FHE co-processor. Handles are random 16 byte
// identifiers and the plaintexts behind them are kept in a handle store.
type Lightning struct {
	log *logrus.Entry

	keyPair  *inco_client.NetworkKeyPair
	registry *registry

	failOperations atomic.Bool
}

// NewLightning returns a co-processor that decrypts client ciphertext with
// keyPair and keeps plaintexts in store.
func NewLightning(keyPair *inco_client.NetworkKeyPair, store HandleStore) *Lightning {
	return &Lightning{
		log:      logrus.StandardLogger().WithField("type", "svm/programs/inco/lightning"),
		keyPair:  keyPair,
		registry: newRegistry(store),
	}
}

func (p *Lightning) ProgramID() ed25519.PublicKey {
	return inco_client.LIGHTNING_PROGRAM_ID
}

// InduceOperationFailures makes every subsequent operation fail with
// LightningErrorOperationFailed.
func (p *Lightning) InduceOperationFailures() {
	p.failOperations.Store(true)
}

func (p *Lightning) StopInducingOperationFailures() {
	p.failOperations.Store(false)
}

// Plaintext reveals the value behind a handle. Only tests and devnet tooling
// should call it.
func (p *Lightning) Plaintext(ctx context.Context, handle inco_client.Handle) (*big.Int, error) {
	return p.value(ctx, handle)
}

// Encrypt registers a plaintext directly, bypassing the instruction
// interface.
func (p *Lightning) Encrypt(ctx context.Context, value *big.Int) (inco_client.Handle, error) {
	return p.registry.put(ctx, value)
}

// value maps unknown handles to the program error.
func (p *Lightning) value(ctx context.Context, handle inco_client.Handle) (*big.Int, error) {
	value, err := p.registry.get(ctx, handle)
	if err == errUnknownHandle {
		return nil, lightningError(inco_client.LightningErrorUnknownHandle)
	}
	return value, err
}

func (p *Lightning) Process(ctx *svm.InvokeContext) error {
	signer, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if !signer.IsSigner {
		return svm.ErrMissingRequiredSignature
	}

	ix, err := inco_client.GetLightningInstruction(ctx.Data())
	if err != nil {
		return svm.ErrInvalidInstructionData
	}
	ctx.Logf("Instruction: %s", ix)

	if p.failOperations.Load() {
		ctx.Logf("Error: induced %s failure", ix)
		return lightningError(inco_client.LightningErrorOperationFailed)
	}

	var result *big.Int
	switch ix {
	case inco_client.LightningInstructionNewEuint128:
		args, err := inco_client.ParseNewEuint128InstructionArgs(ctx.Data())
		if err != nil {
			return svm.ErrInvalidInstructionData
		}

		result, err = p.keyPair.Decrypt(args.Ciphertext)
		if err != nil {
			ctx.Logf("Error: ciphertext could not be decrypted")
			return lightningError(inco_client.LightningErrorInvalidCiphertext)
		}
	case inco_client.LightningInstructionAsEuint128:
		args, err := inco_client.ParseAsEuint128InstructionArgs(ctx.Data())
		if err != nil {
			return svm.ErrInvalidInstructionData
		}
		result = args.Value
	case inco_client.LightningInstructionEAdd, inco_client.LightningInstructionESub:
		_, args, err := inco_client.ParseBinaryOpInstructionArgs(ctx.Data())
		if err != nil {
			return svm.ErrInvalidInstructionData
		}

		lhs, err := p.value(ctx.Context(), args.Lhs)
		if err != nil {
			return err
		}

		var rhs *big.Int
		if args.ScalarByte == 1 {
			rhs = inco_client.GetUint128(args.Rhs[:])
		} else if rhs, err = p.value(ctx.Context(), args.Rhs); err != nil {
			return err
		}

		if ix == inco_client.LightningInstructionEAdd {
			result = new(big.Int).Add(lhs, rhs)
		} else {
			result = new(big.Int).Sub(lhs, rhs)
		}
	case inco_client.LightningInstructionEMulScalar:
		args, err := inco_client.ParseEMulScalarInstructionArgs(ctx.Data())
		if err != nil {
			return svm.ErrInvalidInstructionData
		}

		lhs, err := p.value(ctx.Context(), args.Lhs)
		if err != nil {
			return err
		}
		result = new(big.Int).Mul(lhs, new(big.Int).SetUint64(args.Scalar))
	default:
		return svm.ErrInvalidInstructionData
	}

	if result.Sign() < 0 {
		ctx.Logf("Error: %s underflow", ix)
		return lightningError(inco_client.LightningErrorUnderflow)
	}
	if result.Cmp(inco_client.MaxUint128()) > 0 {
		ctx.Logf("Error: %s overflow", ix)
		return lightningError(inco_client.LightningErrorOverflow)
	}

	handle, err := p.registry.put(ctx.Context(), result)
	if err != nil {
		return err
	}
	return ctx.SetReturnData(handle[:])
}

func lightningError(code inco_client.LightningErrorCode) error {
	return solana.CustomError(code)
}
