package app

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the application specific configuration found under the "app"
// key. It is passed to App.Init and is decoded with mapstructure.
type Config map[string]interface{}

// BaseConfig contains the process level configuration, as well as the
// application's own configuration.
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	ListenAddress         string `mapstructure:"listen_address"`
	InsecureListenAddress string `mapstructure:"insecure_listen_address"`
	RPCListenAddress      string `mapstructure:"rpc_listen_address"`
	DebugListenAddress    string `mapstructure:"debug_listen_address"`

	// TLSCertificate is an optional URL of a certificate for the gRPC
	// server. Only the file scheme is supported, and is assumed when no
	// scheme is given.
	TLSCertificate string `mapstructure:"tls_certificate"`
	// TLSKey is the private key matching TLSCertificate.
	TLSKey string `mapstructure:"tls_private_key"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	EnablePprof  bool `mapstructure:"enable_pprof"`
	EnableExpvar bool `mapstructure:"enable_expvar"`

	// Ballast for improving Go GC performance. Capacity is limited to 50% of
	// the total memory.
	EnableBallast   bool    `mapstructure:"enable_ballast"`
	BallastCapacity float32 `mapstructure:"ballast_capacity"`

	// Periodically restart the process to contain memory leaks
	EnableMemoryLeakCron   bool   `mapstructure:"enable_memory_leak_cron"`
	MemoryLeakCronSchedule string `mapstructure:"memory_leak_cron_schedule"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	AppConfig Config `mapstructure:"app"`
}

var defaultConfig = BaseConfig{
	LogLevel: "info",

	ListenAddress:         ":8085",
	InsecureListenAddress: "localhost:8086",
	RPCListenAddress:      ":8899",
	DebugListenAddress:    ":8123",

	ShutdownGracePeriod: 30 * time.Second,

	EnablePprof:  true,
	EnableExpvar: true,

	EnableBallast:   true,
	BallastCapacity: 0.333,

	EnableMemoryLeakCron:   false,
	MemoryLeakCronSchedule: "0 5 * * *",
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	_ = v.BindEnv("app_name", "APP_NAME")

	_ = v.BindEnv("listen_address", "LISTEN_ADDRESS")
	_ = v.BindEnv("insecure_listen_address", "INSECURE_LISTEN_ADDRESS")
	_ = v.BindEnv("rpc_listen_address", "RPC_LISTEN_ADDRESS")
	_ = v.BindEnv("debug_listen_address", "DEBUG_LISTEN_ADDRESS")

	_ = v.BindEnv("tls_certificate", "TLS_CERTIFICATE")
	_ = v.BindEnv("tls_private_key", "TLS_PRIVATE_KEY")

	_ = v.BindEnv("shutdown_grace_period", "SHUTDOWN_GRACE_PERIOD")

	_ = v.BindEnv("enable_pprof", "ENABLE_PPROF")
	_ = v.BindEnv("enable_expvar", "ENABLE_EXPVAR")

	_ = v.BindEnv("enable_ballast", "ENABLE_BALLAST")
	_ = v.BindEnv("ballast_capacity", "BALLAST_CAPACITY")

	_ = v.BindEnv("enable_memory_leak_cron", "ENABLE_MEMORY_LEAK_CRON")
	_ = v.BindEnv("memory_leak_cron_schedule", "MEMORY_LEAK_CRON_SCHEDULE")

	_ = v.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")
}

// LoadConfig reads the base configuration from the file at path, layered
// over the defaults and environment variables. A missing file is not an
// error.
func LoadConfig(path string) (BaseConfig, error) {
	v := viper.New()
	bindEnv(v)

	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to
	// search for a config file. An explicitly set file that doesn't exist
	// is reported as a plain error, so we check ourselves.
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := v.ReadInConfig()
	if _, isConfigNotFound := err.(viper.ConfigFileNotFoundError); err != nil && !isConfigNotFound {
		return BaseConfig{}, errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		return BaseConfig{}, errors.New("must specify an application name")
	}
	return config, nil
}
