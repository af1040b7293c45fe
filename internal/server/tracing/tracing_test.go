package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "cadence", cfg.ServiceName)
	assert.False(t, cfg.Enabled())

	assert.Error(t, (&Config{SampleRatio: 1.5}).Validate())
	assert.Error(t, (&Config{SampleRatio: -0.1}).Validate())
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), &Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
