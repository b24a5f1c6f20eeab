package conf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())
}

func invalid(t *testing.T, mutate func(*Config)) {
	t.Helper()
	cfg := NewDefaultConfig()
	mutate(cfg)
	require.Error(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	invalid(t, func(c *Config) { c.RowUpperBound = 8 })
	invalid(t, func(c *Config) { c.AttributeUpperBound = 0 })
	invalid(t, func(c *Config) { c.AttributeUpperBound = c.RowUpperBound })
	invalid(t, func(c *Config) { c.MaxBlockSize = c.RowUpperBound - 1 })
	invalid(t, func(c *Config) { c.AggUpperBound = c.RowUpperBound })
	invalid(t, func(c *Config) { c.MaxEmptyBlocks = 0 })
	invalid(t, func(c *Config) { c.EnableMetrics = true })

	cfg := NewDefaultConfig()
	cfg.EnableMetrics = true
	cfg.MetricsHTTPListenAddr = "localhost:9102"
	require.NoError(t, cfg.Validate())
}
