package shadowwire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Proof is a Bulletproof commitment to a transfer amount and the range proof
// that the committed amount is a valid u64.
type Proof struct {
	Commitment [CommitmentSize]byte
	RangeProof [RangeProofSize]byte
}

// NewMockProof builds the devnet proof for a confidential transfer. The
// commitment binds the ciphertext and the range proof is a deterministic
// expansion of the commitment, which is all the devnet verifier checks.
func NewMockProof(ciphertext []byte) *Proof {
	var proof Proof
	proof.Commitment = sha256.Sum256(ciphertext)

	var counter [4]byte
	for i := 0; i < RangeProofSize/sha256.Size; i++ {
		binary.LittleEndian.PutUint32(counter[:], uint32(i))

		h := sha256.New()
		h.Write(proof.Commitment[:])
		h.Write(counter[:])
		copy(proof.RangeProof[i*sha256.Size:], h.Sum(nil))
	}

	return &proof
}

// VerifyMockProof checks a proof produced by NewMockProof against the
// ciphertext it is supposed to commit to.
func VerifyMockProof(proof *Proof, ciphertext []byte) error {
	expected := NewMockProof(ciphertext)
	if !bytes.Equal(expected.Commitment[:], proof.Commitment[:]) {
		return ErrInvalidProof
	}
	if !bytes.Equal(expected.RangeProof[:], proof.RangeProof[:]) {
		return ErrInvalidProof
	}
	return nil
}

// Marshal serializes the proof as commitment followed by range proof.
func (p *Proof) Marshal() []byte {
	data := make([]byte, ProofSize)
	copy(data, p.Commitment[:])
	copy(data[CommitmentSize:], p.RangeProof[:])
	return data
}

func (p *Proof) Unmarshal(data []byte) error {
	if len(data) != ProofSize {
		return ErrInvalidProof
	}
	copy(p.Commitment[:], data[:CommitmentSize])
	copy(p.RangeProof[:], data[CommitmentSize:])
	return nil
}
