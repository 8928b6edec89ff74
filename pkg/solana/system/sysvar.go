package system

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
)

// https://explorer.solana.com/address/11111111111111111111111111111111
var SystemAccount ed25519.PublicKey

// RentSysVar points to the system variable "Rent"
//
// Source: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/sysvar/rent.rs#L11
var RentSysVar ed25519.PublicKey

// ClockSysVar points to the system variable "Clock"
var ClockSysVar ed25519.PublicKey

func init() {
	RentSysVar = mustBase58Decode("SysvarRent111111111111111111111111111111111")
	ClockSysVar = mustBase58Decode("SysvarC1ock11111111111111111111111111111111")
	SystemAccount = mustBase58Decode("11111111111111111111111111111111")
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
