package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagel-payroll/bagel-server/pkg/config"
)

func TestConfig_States(t *testing.T) {
	ctx := context.Background()
	c := NewConfig(uint64(100))

	val, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), val)

	c.ClearValue()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	// Induced errors take precedence over an unset value
	c.InduceErrors()
	_, err = c.Get(ctx)
	assert.Equal(t, errDeveloperInduced, err)

	c.SetValue("500ms")
	_, err = c.Get(ctx)
	assert.Equal(t, errDeveloperInduced, err)

	c.StopInducingErrors()
	val, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "500ms", val)

	// Shutdown is terminal
	c.Shutdown()
	c.SetValue("1s")
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrShutdown, err)
}

func TestConfig_ConcurrentAccess(t *testing.T) {
	c := NewConfig(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.SetValue(i)
		}(i)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
