package async_crank

import (
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/config"
	"github.com/bagel-payroll/bagel-server/pkg/config/env"
	"github.com/bagel-payroll/bagel-server/pkg/config/memory"
	"github.com/bagel-payroll/bagel-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "ACCRUAL_CRANK_"

	BatchSizeConfigEnvName = envConfigPrefix + "BATCH_SIZE"
	defaultBatchSize       = 8

	LockNameConfigEnvName = envConfigPrefix + "LOCK_NAME"
	defaultLockName       = "accrual-crank"

	MinAccrualIntervalConfigEnvName = envConfigPrefix + "MIN_ACCRUAL_INTERVAL"
	defaultMinAccrualInterval       = time.Minute
)

type conf struct {
	batchSize          config.Uint64
	lockName           config.String
	minAccrualInterval config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			batchSize:          env.NewUint64Config(BatchSizeConfigEnvName, defaultBatchSize),
			lockName:           env.NewStringConfig(LockNameConfigEnvName, defaultLockName),
			minAccrualInterval: env.NewDurationConfig(MinAccrualIntervalConfigEnvName, defaultMinAccrualInterval),
		}
	}
}

type testOverrides struct {
	batchSize          uint64
	minAccrualInterval time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			batchSize:          wrapper.NewUint64Config(memory.NewConfig(overrides.batchSize), defaultBatchSize),
			lockName:           wrapper.NewStringConfig(memory.NewConfig(defaultLockName), defaultLockName),
			minAccrualInterval: wrapper.NewDurationConfig(memory.NewConfig(overrides.minAccrualInterval), defaultMinAccrualInterval),
		}
	}
}
