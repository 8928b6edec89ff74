package main

import (
	"crypto/ed25519"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/app"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
)

const (
	defaultCrankInterval  = 10 * time.Second
	defaultCrankerFunding = 10_000_000_000

	defaultEtcdRootKey     = "/bagel"
	defaultEtcdLockTTL     = 10 * time.Second
	defaultEtcdDialTimeout = 5 * time.Second
)

// validatorConfig is the "app" section of the configuration file.
type validatorConfig struct {
	// NodeID identifies this validator to its peers. Defaults to the hostname.
	NodeID string `mapstructure:"node_id"`

	// AdvertiseAddress is the JSON-RPC address published to peers.
	AdvertiseAddress string `mapstructure:"advertise_address"`

	// Database selects postgres persistence. Accounts and transactions live
	// in memory when no host is configured.
	Database pg.Config `mapstructure:"database"`

	EtcdEndpoints   []string      `mapstructure:"etcd_endpoints"`
	EtcdRootKey     string        `mapstructure:"etcd_root_key"`
	EtcdLockTTL     time.Duration `mapstructure:"etcd_lock_ttl"`
	EtcdDialTimeout time.Duration `mapstructure:"etcd_dial_timeout"`

	EnableCrank   bool          `mapstructure:"enable_crank"`
	CrankInterval time.Duration `mapstructure:"crank_interval"`

	// CrankerKey is the base58 encoded private key paying for accruals. A
	// throwaway key funded from the faucet is used when empty.
	CrankerKey     string `mapstructure:"cranker_key"`
	CrankerFunding uint64 `mapstructure:"cranker_funding"`
}

func defaultValidatorConfig() validatorConfig {
	hostname, _ := os.Hostname()

	return validatorConfig{
		NodeID: hostname,

		EtcdRootKey:     defaultEtcdRootKey,
		EtcdLockTTL:     defaultEtcdLockTTL,
		EtcdDialTimeout: defaultEtcdDialTimeout,

		EnableCrank:    true,
		CrankInterval:  defaultCrankInterval,
		CrankerFunding: defaultCrankerFunding,
	}
}

func decodeValidatorConfig(raw app.Config) (validatorConfig, error) {
	config := defaultValidatorConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return config, err
	}

	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return config, errors.Wrap(err, "invalid app config")
	}

	if len(config.NodeID) == 0 {
		return config, errors.New("node_id is required when the hostname is unknown")
	}
	if config.CrankInterval <= 0 {
		return config, errors.New("crank_interval must be positive")
	}
	return config, nil
}

func (c validatorConfig) usesPostgres() bool {
	return len(c.Database.Host) > 0
}

func (c validatorConfig) usesEtcd() bool {
	return len(c.EtcdEndpoints) > 0
}

func (c validatorConfig) crankerKey() (ed25519.PrivateKey, bool, error) {
	if len(c.CrankerKey) == 0 {
		_, key, err := ed25519.GenerateKey(nil)
		return key, true, err
	}

	decoded, err := base58.Decode(c.CrankerKey)
	if err != nil {
		return nil, false, errors.Wrap(err, "invalid cranker_key")
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, false, errors.Errorf("invalid cranker_key length: %d", len(decoded))
	}
	return ed25519.PrivateKey(decoded), false, nil
}
