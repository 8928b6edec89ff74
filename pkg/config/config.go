// Package config provides dynamic, typed configuration values that fall back
// to a default when no source value is set.
package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoValue indicates no value was set for the config
	ErrNoValue = errors.New("config: no value set")
	// ErrShutdown indicates the use of a Config after calling Shutdown
	ErrShutdown = errors.New("config: shutdown")
)

// Config is an untyped source of a configuration value.
type Config interface {
	// Get returns the latest value, or ErrNoValue when none is set
	Get(ctx context.Context) (interface{}, error)

	// Shutdown releases any underlying resources
	Shutdown()
}

// Value is a typed configuration value.
type Value[T any] interface {
	// Get returns the latest value, ignoring errors.
	Get(ctx context.Context) T

	// GetSafe returns the latest value. On error the last good value is
	// returned alongside it.
	GetSafe(ctx context.Context) (T, error)

	Shutdown()
}

type (
	Bool     = Value[bool]
	Bytes    = Value[[]byte]
	Duration = Value[time.Duration]
	Float64  = Value[float64]
	Int64    = Value[int64]
	String   = Value[string]
	Uint64   = Value[uint64]
)
