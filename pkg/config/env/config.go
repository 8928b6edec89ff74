// Package env sources configuration values from environment variables.
package env

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bagel-payroll/bagel-server/pkg/config"
	"github.com/bagel-payroll/bagel-server/pkg/config/wrapper"
)

var environment = newEnvironment()

func newEnvironment() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.AllowEmptyEnv(false)
	return v
}

type conf struct {
	key string
}

// NewConfig returns a config reading the upper cased key from the
// environment on every Get.
func NewConfig(key string) config.Config {
	return &conf{key: strings.ToUpper(key)}
}

// Get implements config.Config.Get
func (c *conf) Get(_ context.Context) (interface{}, error) {
	val := environment.GetString(c.key)
	if len(val) == 0 {
		return nil, config.ErrNoValue
	}
	return val, nil
}

// Shutdown implements config.Config.Shutdown
func (c *conf) Shutdown() {
}

func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}

func NewFloat64Config(key string, defaultValue float64) config.Float64 {
	return wrapper.NewFloat64Config(NewConfig(key), defaultValue)
}

func NewInt64Config(key string, defaultValue int64) config.Int64 {
	return wrapper.NewInt64Config(NewConfig(key), defaultValue)
}

func NewStringConfig(key string, defaultValue string) config.String {
	return wrapper.NewStringConfig(NewConfig(key), defaultValue)
}

func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}
