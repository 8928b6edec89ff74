// Package wrapper turns an untyped config.Config into a typed config.Value.
package wrapper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/config"
)

// ErrUnsupportedConversion indicates the source value has a type the wrapper
// cannot convert.
var ErrUnsupportedConversion = errors.New("config: wrapper conversion from source type not implemented")

type value[T any] struct {
	source       config.Config
	defaultValue T

	// parse converts the textual form of a value, as found in environment
	// variables and files
	parse func(string) (T, error)

	mu   sync.RWMutex
	last T
}

func newValue[T any](source config.Config, defaultValue T, parse func(string) (T, error)) config.Value[T] {
	return &value[T]{
		source:       source,
		defaultValue: defaultValue,
		parse:        parse,
		last:         defaultValue,
	}
}

// GetSafe implements config.Value.GetSafe.
func (v *value[T]) GetSafe(ctx context.Context) (T, error) {
	raw, err := v.source.Get(ctx)
	if err == config.ErrNoValue {
		v.remember(v.defaultValue)
		return v.defaultValue, nil
	} else if err != nil {
		return v.lastValue(), err
	}

	converted, err := v.convert(raw)
	if err != nil {
		return v.lastValue(), err
	}

	v.remember(converted)
	return converted, nil
}

// Get implements config.Value.Get.
func (v *value[T]) Get(ctx context.Context) T {
	val, _ := v.GetSafe(ctx)
	return val
}

// Shutdown implements config.Value.Shutdown.
func (v *value[T]) Shutdown() {
	v.source.Shutdown()
}

func (v *value[T]) convert(raw interface{}) (T, error) {
	var zero T

	switch typed := raw.(type) {
	case T:
		return typed, nil
	case string:
		if v.parse != nil {
			return v.parse(typed)
		}
	case []byte:
		if v.parse != nil {
			return v.parse(string(typed))
		}
	}
	return zero, ErrUnsupportedConversion
}

func (v *value[T]) remember(val T) {
	v.mu.Lock()
	v.last = val
	v.mu.Unlock()
}

func (v *value[T]) lastValue() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

func NewBoolConfig(source config.Config, defaultValue bool) config.Bool {
	return newValue(source, defaultValue, strconv.ParseBool)
}

// NewBytesConfig only accepts raw byte values.
func NewBytesConfig(source config.Config, defaultValue []byte) config.Bytes {
	return newValue[[]byte](source, defaultValue, nil)
}

// NewDurationConfig accepts time.ParseDuration strings such as "1m30s".
func NewDurationConfig(source config.Config, defaultValue time.Duration) config.Duration {
	return newValue(source, defaultValue, time.ParseDuration)
}

func NewFloat64Config(source config.Config, defaultValue float64) config.Float64 {
	return newValue(source, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func NewInt64Config(source config.Config, defaultValue int64) config.Int64 {
	return newValue(source, defaultValue, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func NewStringConfig(source config.Config, defaultValue string) config.String {
	return newValue(source, defaultValue, func(s string) (string, error) {
		return s, nil
	})
}

func NewUint64Config(source config.Config, defaultValue uint64) config.Uint64 {
	return newValue(source, defaultValue, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	})
}
