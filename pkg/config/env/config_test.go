package env

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/config"
)

func TestConfig(t *testing.T) {
	const name = "ENV_CONFIG_TEST_VAR"

	c := NewConfig("env_config_test_var")

	_, err := c.Get(context.Background())
	assert.Equal(t, config.ErrNoValue, err)

	t.Setenv(name, "value")

	// Values are read on every Get
	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestTypedConfigs(t *testing.T) {
	ctx := context.Background()

	t.Setenv("ENV_CONFIG_TEST_UINT", "42")
	t.Setenv("ENV_CONFIG_TEST_DURATION", "1m30s")
	t.Setenv("ENV_CONFIG_TEST_BOOL", "true")
	t.Setenv("ENV_CONFIG_TEST_BAD_UINT", "-1")

	assert.EqualValues(t, 42, NewUint64Config("ENV_CONFIG_TEST_UINT", 7).Get(ctx))
	assert.Equal(t, 90*time.Second, NewDurationConfig("ENV_CONFIG_TEST_DURATION", time.Second).Get(ctx))
	assert.True(t, NewBoolConfig("ENV_CONFIG_TEST_BOOL", false).Get(ctx))
	assert.Equal(t, "fallback", NewStringConfig("ENV_CONFIG_TEST_MISSING", "fallback").Get(ctx))

	bad := NewUint64Config("ENV_CONFIG_TEST_BAD_UINT", 7)
	val, err := bad.GetSafe(ctx)
	assert.Error(t, err)
	assert.EqualValues(t, 7, val)
}
