package svm

import (
	"github.com/bagel-payroll/bagel-server/pkg/config"
	"github.com/bagel-payroll/bagel-server/pkg/config/env"
	"github.com/bagel-payroll/bagel-server/pkg/config/memory"
	"github.com/bagel-payroll/bagel-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "SVM_"

	LamportsPerSignatureConfigEnvName = envConfigPrefix + "LAMPORTS_PER_SIGNATURE"
	defaultLamportsPerSignature       = 5000

	MaxInvokeDepthConfigEnvName = envConfigPrefix + "MAX_INVOKE_DEPTH"
	defaultMaxInvokeDepth       = 4

	MaxBlockhashAgeConfigEnvName = envConfigPrefix + "MAX_BLOCKHASH_AGE"
	defaultMaxBlockhashAge       = 300

	AccountLockStripesConfigEnvName = envConfigPrefix + "ACCOUNT_LOCK_STRIPES"
	defaultAccountLockStripes       = 1024

	SignatureCacheSizeConfigEnvName = envConfigPrefix + "SIGNATURE_CACHE_SIZE"
	defaultSignatureCacheSize       = 100_000

	FaucetLamportsConfigEnvName = envConfigPrefix + "FAUCET_LAMPORTS"
	defaultFaucetLamports       = 500_000_000 * LamportsPerSol
)

type conf struct {
	lamportsPerSignature config.Uint64
	maxInvokeDepth       config.Uint64
	maxBlockhashAge      config.Uint64
	accountLockStripes   config.Uint64
	signatureCacheSize   config.Uint64
	faucetLamports       config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			lamportsPerSignature: env.NewUint64Config(LamportsPerSignatureConfigEnvName, defaultLamportsPerSignature),
			maxInvokeDepth:       env.NewUint64Config(MaxInvokeDepthConfigEnvName, defaultMaxInvokeDepth),
			maxBlockhashAge:      env.NewUint64Config(MaxBlockhashAgeConfigEnvName, defaultMaxBlockhashAge),
			accountLockStripes:   env.NewUint64Config(AccountLockStripesConfigEnvName, defaultAccountLockStripes),
			signatureCacheSize:   env.NewUint64Config(SignatureCacheSizeConfigEnvName, defaultSignatureCacheSize),
			faucetLamports:       env.NewUint64Config(FaucetLamportsConfigEnvName, defaultFaucetLamports),
		}
	}
}

// WithDefaultConfigs returns the default configuration without consulting the
// environment.
func WithDefaultConfigs() ConfigProvider {
	return withManualTestOverrides(&testOverrides{})
}

type testOverrides struct {
	lamportsPerSignature uint64
	maxBlockhashAge      uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	lamportsPerSignature := uint64(defaultLamportsPerSignature)
	if overrides.lamportsPerSignature > 0 {
		lamportsPerSignature = overrides.lamportsPerSignature
	}

	maxBlockhashAge := uint64(defaultMaxBlockhashAge)
	if overrides.maxBlockhashAge > 0 {
		maxBlockhashAge = overrides.maxBlockhashAge
	}

	return func() *conf {
		return &conf{
			lamportsPerSignature: wrapper.NewUint64Config(memory.NewConfig(lamportsPerSignature), defaultLamportsPerSignature),
			maxInvokeDepth:       wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxInvokeDepth)), defaultMaxInvokeDepth),
			maxBlockhashAge:      wrapper.NewUint64Config(memory.NewConfig(maxBlockhashAge), defaultMaxBlockhashAge),
			accountLockStripes:   wrapper.NewUint64Config(memory.NewConfig(uint64(16)), defaultAccountLockStripes),
			signatureCacheSize:   wrapper.NewUint64Config(memory.NewConfig(uint64(defaultSignatureCacheSize)), defaultSignatureCacheSize),
			faucetLamports:       wrapper.NewUint64Config(memory.NewConfig(uint64(defaultFaucetLamports)), defaultFaucetLamports),
		}
	}
}
