package bagel

import (
	"bytes"
	"crypto/ed25519"
	"math/big"

	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
)

// fhe issues co-processor CPIs on behalf of a signer of the current
// instruction and decodes the resulting handles.
type fhe struct {
	ctx    *svm.InvokeContext
	signer ed25519.PublicKey
}

func newFHE(ctx *svm.InvokeContext, signer *svm.AccountInfo) *fhe {
	return &fhe{
		ctx:    ctx,
		signer: signer.Key,
	}
}

// encrypted registers client ciphertext.
func (f *fhe) encrypted(ciphertext inco.Ciphertext) (inco.Handle, error) {
	return f.invoke(inco.NewNewEuint128Instruction(f.signer, &inco.NewEuint128InstructionArgs{
		Ciphertext: ciphertext,
	}))
}

// constant registers a trivially encrypted plaintext.
func (f *fhe) constant(value uint64) (inco.Handle, error) {
	ix, err := inco.NewAsEuint128Instruction(f.signer, &inco.AsEuint128InstructionArgs{
		Value: new(big.Int).SetUint64(value),
	})
	if err != nil {
		return inco.Handle{}, svm.ErrInvalidArgument
	}
	return f.invoke(ix)
}

func (f *fhe) add(lhs, rhs inco.Handle) (inco.Handle, error) {
	return f.invoke(inco.NewEAddInstruction(f.signer, &inco.BinaryOpInstructionArgs{
		Lhs: lhs,
		Rhs: rhs,
	}))
}

// increment adds a plaintext scalar to an encrypted value.
func (f *fhe) increment(lhs inco.Handle, value uint64) (inco.Handle, error) {
	var rhs inco.Handle
	if err := inco.PutUint128(rhs[:], new(big.Int).SetUint64(value)); err != nil {
		return inco.Handle{}, svm.ErrInvalidArgument
	}

	return f.invoke(inco.NewEAddInstruction(f.signer, &inco.BinaryOpInstructionArgs{
		Lhs:        lhs,
		Rhs:        rhs,
		ScalarByte: 1,
	}))
}

func (f *fhe) sub(lhs, rhs inco.Handle) (inco.Handle, error) {
	return f.invoke(inco.NewESubInstruction(f.signer, &inco.BinaryOpInstructionArgs{
		Lhs: lhs,
		Rhs: rhs,
	}))
}

func (f *fhe) mulScalar(lhs inco.Handle, scalar uint64) (inco.Handle, error) {
	return f.invoke(inco.NewEMulScalarInstruction(f.signer, &inco.EMulScalarInstructionArgs{
		Lhs:    lhs,
		Scalar: scalar,
	}))
}

func (f *fhe) invoke(ix solana.Instruction) (inco.Handle, error) {
	if err := f.ctx.Invoke(ix); err != nil {
		return inco.Handle{}, err
	}

	program, data := f.ctx.ReturnData()
	if !bytes.Equal(program, inco.LIGHTNING_PROGRAM_ID) {
		return inco.Handle{}, svm.ErrInvalidAccountData
	}

	handle, err := inco.HandleFromReturnData(data)
	if err != nil {
		return inco.Handle{}, svm.ErrInvalidAccountData
	}
	return handle, nil
}
