package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Taken from: https://github.com/solana-labs/solana/blob/14339dec0a960e8161d1165b6a8e5cfb73e78f23/sdk/src/transaction.rs#L523,
// re-signed with a correctly derived keypair.
const rustGeneratedAdjusted = "ATMfBMZ8phHEheLph8K9TJhRKhnE4qNZvWiXdUdJRmlTCRsQjWmW2CkQJeRHBCcsqFm2gynjL40M9mTe0Dxp4QIBAAEDfEya6wnC7f3Cv53qnOEywwIJ928rIdqAlfXYI1adXroBAQEEBQYHCAkJCQkJCQkJCQkJCQkJCQkIBwYFBAEBAQICAgQFBgcICQEBAQEBAQEBAQEBAQEBCQgHBgUEAgICAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAgIAAQMBAgM="

func TestTransaction_CrossImpl(t *testing.T) {
	keypair := ed25519.NewKeyFromSeed([]byte{48, 83, 2, 1, 1, 48, 5, 6, 3, 43, 101, 112, 4, 34, 4, 32, 255, 101, 36, 24, 124, 23,
		167, 21, 132, 204, 155, 5, 185, 58, 121, 75})
	programID := ed25519.PublicKey{2, 2, 2, 4, 5, 6, 7, 8, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 8, 7, 6, 5, 4,
		2, 2, 2}
	to := ed25519.PublicKey{1, 1, 1, 4, 5, 6, 7, 8, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 8, 7, 6, 5, 4, 1, 1, 1}

	tx := NewTransaction(
		keypair.Public().(ed25519.PublicKey),
		NewInstruction(
			programID,
			[]byte{1, 2, 3},
			NewAccountMeta(keypair.Public().(ed25519.PublicKey), true),
			NewAccountMeta(to, false),
		),
	)
	require.NoError(t, tx.Sign(keypair))
	assert.Equal(t, rustGeneratedAdjusted, base64.StdEncoding.EncodeToString(tx.Marshal()))
	assert.NoError(t, tx.VerifySignatures())
}

func TestTransaction_EmptyAccount(t *testing.T) {
	keys := generateKeys(t, 2)

	tx := NewTransaction(
		public(keys[0]),
		NewInstruction(
			public(keys[1]),
			[]byte{1, 2, 3},
			NewAccountMeta(nil, false),
		),
	)
	require.NoError(t, tx.Sign(keys[0]))

	var rtt Transaction
	require.NoError(t, rtt.Unmarshal(tx.Marshal()))
	assert.NoError(t, rtt.VerifySignatures())
	assert.Equal(t, tx.Marshal(), rtt.Marshal())
}

func TestMessage_UnmarshalMalformed(t *testing.T) {
	keys := generateKeys(t, 2)
	tx := NewTransaction(
		public(keys[0]),
		NewInstruction(public(keys[1]), []byte{7}, NewAccountMeta(public(keys[0]), true)),
	)
	valid := tx.Message.Marshal()

	var m Message
	require.NoError(t, m.Unmarshal(valid))

	for name, b := range map[string][]byte{
		"empty":          nil,
		"versioned":      append([]byte{0x80}, valid...),
		"truncated":      valid[:len(valid)-1],
		"trailing bytes": append(append([]byte{}, valid...), 0),
		"header only":    valid[:3],
	} {
		assert.Error(t, m.Unmarshal(b), name)
	}
}

func TestTransaction_InvalidProgramIndex(t *testing.T) {
	keys := generateKeys(t, 2)
	tx := NewTransaction(
		public(keys[0]),
		NewInstruction(
			public(keys[1]),
			nil,
			NewAccountMeta(public(keys[0]), true),
		),
	)
	tx.Message.Instructions[0].ProgramIndex = 2
	assert.Error(t, tx.Unmarshal(tx.Marshal()))

	_, err := tx.Message.Decompile(tx.Message.Instructions[0])
	assert.Error(t, err)
}

func TestTransaction_Layout(t *testing.T) {
	keys := generateKeys(t, 5)
	payer, signer, writable, readonly, program := keys[0], keys[1], keys[2], keys[3], keys[4]

	tx := NewTransaction(
		public(payer),
		NewInstruction(
			public(program),
			[]byte{4, 2},
			NewReadonlyAccountMeta(public(readonly), false),
			NewAccountMeta(public(writable), false),
			NewReadonlyAccountMeta(public(signer), true),
		),
	)

	m := tx.Message
	require.Len(t, m.Accounts, 5)
	assert.EqualValues(t, 2, m.Header.NumSignatures)
	assert.EqualValues(t, 1, m.Header.NumReadonlySigned)
	assert.EqualValues(t, 2, m.Header.NumReadOnly)

	assert.EqualValues(t, public(payer), m.FeePayer())
	assert.EqualValues(t, public(signer), m.Accounts[1])
	assert.EqualValues(t, public(writable), m.Accounts[2])
	assert.EqualValues(t, public(program), m.Accounts[4])

	assert.True(t, m.IsSigner(0))
	assert.True(t, m.IsWritable(0))
	assert.True(t, m.IsSigner(1))
	assert.False(t, m.IsWritable(1))
	assert.False(t, m.IsSigner(2))
	assert.True(t, m.IsWritable(2))
	assert.False(t, m.IsWritable(3))
	assert.False(t, m.IsWritable(4))

	ix, err := m.Decompile(m.Instructions[0])
	require.NoError(t, err)
	assert.EqualValues(t, public(program), ix.Program)
	assert.Equal(t, []byte{4, 2}, ix.Data)
	require.Len(t, ix.Accounts, 3)
	assert.EqualValues(t, public(readonly), ix.Accounts[0].PublicKey)
	assert.False(t, ix.Accounts[0].IsWritable)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.True(t, ix.Accounts[2].IsSigner)
}

func TestTransaction_VerifySignatures(t *testing.T) {
	keys := generateKeys(t, 3)
	payer, signer, program := keys[0], keys[1], keys[2]

	tx := NewTransaction(
		public(payer),
		NewInstruction(
			public(program),
			[]byte{1},
			NewAccountMeta(public(signer), true),
		),
	)
	tx.SetBlockhash(Blockhash{1, 2, 3})

	require.NoError(t, tx.Sign(payer))
	assert.Equal(t, ErrMissingSignature, tx.VerifySignatures())

	require.NoError(t, tx.Sign(signer))
	assert.NoError(t, tx.VerifySignatures())

	var rtt Transaction
	require.NoError(t, rtt.Unmarshal(tx.Marshal()))
	assert.NoError(t, rtt.VerifySignatures())
	assert.Equal(t, tx.Signature(), rtt.Signature())

	tx.SetBlockhash(Blockhash{3, 2, 1})
	assert.Equal(t, ErrInvalidSignature, tx.VerifySignatures())

	assert.Error(t, tx.Sign(program))
}

func generateKeys(t *testing.T, amount int) []ed25519.PrivateKey {
	keys := make([]ed25519.PrivateKey, amount)

	for i := 0; i < amount; i++ {
		_, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		keys[i] = priv
	}

	return keys
}

func public(priv ed25519.PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}
