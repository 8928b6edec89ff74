package shadowwire

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

func TestMockProof(t *testing.T) {
	ciphertext := []byte("sealed amount")

	proof := NewMockProof(ciphertext)
	require.NoError(t, VerifyMockProof(proof, ciphertext))
	assert.Equal(t, ErrInvalidProof, VerifyMockProof(proof, []byte("other amount")))

	var decoded Proof
	require.NoError(t, decoded.Unmarshal(proof.Marshal()))
	require.NoError(t, VerifyMockProof(&decoded, ciphertext))

	decoded.RangeProof[RangeProofSize-1] ^= 0xff
	assert.Equal(t, ErrInvalidProof, VerifyMockProof(&decoded, ciphertext))

	assert.Equal(t, ErrInvalidProof, decoded.Unmarshal(make([]byte, ProofSize-1)))
}

func TestTransferInstruction(t *testing.T) {
	ciphertext := inco.Ciphertext("sealed amount")
	proof := NewMockProof(ciphertext)

	ix := NewTransferInstruction(&TransferInstructionAccounts{
		Source:      generateKey(t),
		Destination: generateKey(t),
		Authority:   generateKey(t),
	}, &TransferInstructionArgs{
		Proof:      proof,
		Ciphertext: ciphertext,
		InputType:  inco.InputTypeRawBytes,
	})
	require.Len(t, ix.Accounts, 6)
	assert.True(t, ix.Accounts[2].IsSigner)
	assert.EqualValues(t, inco.TOKEN_PROGRAM_ID, ix.Accounts[3].PublicKey)

	args, err := ParseTransferInstructionArgs(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, proof.Commitment, args.Proof.Commitment)
	assert.Equal(t, proof.RangeProof, args.Proof.RangeProof)
	assert.EqualValues(t, ciphertext, args.Ciphertext)
	assert.Equal(t, inco.InputTypeRawBytes, args.InputType)

	_, err = ParseTransferInstructionArgs(ix.Data[:len(ix.Data)-1])
	assert.Equal(t, ErrInvalidInstructionData, err)
}

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}
