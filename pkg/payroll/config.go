package payroll

import (
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/config"
	"github.com/bagel-payroll/bagel-server/pkg/config/env"
	"github.com/bagel-payroll/bagel-server/pkg/config/memory"
	"github.com/bagel-payroll/bagel-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "PAYROLL_CLIENT_"

	MaxSubmitAttemptsConfigEnvName = envConfigPrefix + "MAX_SUBMIT_ATTEMPTS"
	defaultMaxSubmitAttempts       = 5

	SubmitsPerSignerPerSecondConfigEnvName = envConfigPrefix + "SUBMITS_PER_SIGNER_PER_SECOND"
	defaultSubmitsPerSignerPerSecond       = 10

	BaseBackoffConfigEnvName = envConfigPrefix + "BASE_BACKOFF"
	defaultBaseBackoff       = 250 * time.Millisecond

	MaxBackoffConfigEnvName = envConfigPrefix + "MAX_BACKOFF"
	defaultMaxBackoff       = 5 * time.Second
)

type conf struct {
	maxSubmitAttempts         config.Uint64
	submitsPerSignerPerSecond config.Uint64
	baseBackoff               config.Duration
	maxBackoff                config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxSubmitAttempts:         env.NewUint64Config(MaxSubmitAttemptsConfigEnvName, defaultMaxSubmitAttempts),
			submitsPerSignerPerSecond: env.NewUint64Config(SubmitsPerSignerPerSecondConfigEnvName, defaultSubmitsPerSignerPerSecond),
			baseBackoff:               env.NewDurationConfig(BaseBackoffConfigEnvName, defaultBaseBackoff),
			maxBackoff:                env.NewDurationConfig(MaxBackoffConfigEnvName, defaultMaxBackoff),
		}
	}
}

// WithDefaultConfigs returns the default configuration without consulting the
// environment.
func WithDefaultConfigs() ConfigProvider {
	return withManualTestOverrides(&testOverrides{})
}

type testOverrides struct {
	maxSubmitAttempts         uint64
	submitsPerSignerPerSecond uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	maxSubmitAttempts := uint64(defaultMaxSubmitAttempts)
	if overrides.maxSubmitAttempts > 0 {
		maxSubmitAttempts = overrides.maxSubmitAttempts
	}

	submitsPerSignerPerSecond := uint64(defaultSubmitsPerSignerPerSecond)
	if overrides.submitsPerSignerPerSecond > 0 {
		submitsPerSignerPerSecond = overrides.submitsPerSignerPerSecond
	}

	return func() *conf {
		return &conf{
			maxSubmitAttempts:         wrapper.NewUint64Config(memory.NewConfig(maxSubmitAttempts), defaultMaxSubmitAttempts),
			submitsPerSignerPerSecond: wrapper.NewUint64Config(memory.NewConfig(submitsPerSignerPerSecond), defaultSubmitsPerSignerPerSecond),
			baseBackoff:               wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultBaseBackoff),
			maxBackoff:                wrapper.NewDurationConfig(memory.NewConfig(10*time.Millisecond), defaultMaxBackoff),
		}
	}
}
