package conf

import (
	"github.com/veildb/veil/errors"
)

const (
	// DefaultRowUpperBound is the largest serialized size of a single row for
	// the default schema family. Every row buffer in the core is allocated at
	// this size up front and never resized; keeping allocation independent of
	// row contents is part of the side channel argument, not an optimization.
	DefaultRowUpperBound = 2048

	// DefaultAttributeUpperBound bounds the value bytes of a single variable
	// length attribute.
	DefaultAttributeUpperBound = 512

	// DefaultMaxBlockSize is the plaintext capacity of one encrypted block.
	DefaultMaxBlockSize = 1 << 20

	// DefaultAggUpperBound is the fixed serialized size of aggregator partial
	// state: header, one whole group row and the partial accumulators.
	DefaultAggUpperBound = 2*DefaultRowUpperBound + 128

	// DefaultMaxEmptyBlocks bounds how many consecutive zero-row blocks a
	// reader will skip before treating the input as malformed.
	DefaultMaxEmptyBlocks = 64
)

type Config struct {
	RowUpperBound         int    `json:"row_upper_bound,omitempty"`
	AttributeUpperBound   int    `json:"attribute_upper_bound,omitempty"`
	MaxBlockSize          int    `json:"max_block_size,omitempty"`
	AggUpperBound         int    `json:"agg_upper_bound,omitempty"`
	MaxEmptyBlocks        int    `json:"max_empty_blocks,omitempty"`
	EnableMetrics         bool   `json:"enable_metrics,omitempty"`
	MetricsHTTPListenAddr string `json:"metrics_http_listen_addr,omitempty"`
	Debug                 bool   `json:"debug,omitempty"`
}

func (c *Config) Validate() error {
	if c.RowUpperBound < 16 {
		return errors.NewInvalidConfigurationError("RowUpperBound must be >= 16")
	}
	if c.AttributeUpperBound < 4 {
		return errors.NewInvalidConfigurationError("AttributeUpperBound must be >= 4")
	}
	if c.AttributeUpperBound+9 > c.RowUpperBound {
		return errors.NewInvalidConfigurationError("RowUpperBound too small for one attribute of AttributeUpperBound bytes")
	}
	if c.MaxBlockSize < c.RowUpperBound {
		return errors.NewInvalidConfigurationError("MaxBlockSize must be >= RowUpperBound")
	}
	if c.AggUpperBound < 2*c.RowUpperBound {
		return errors.NewInvalidConfigurationError("AggUpperBound must be >= 2 * RowUpperBound")
	}
	if c.MaxEmptyBlocks < 1 {
		return errors.NewInvalidConfigurationError("MaxEmptyBlocks must be >= 1")
	}
	if c.EnableMetrics && c.MetricsHTTPListenAddr == "" {
		return errors.NewInvalidConfigurationError("MetricsHTTPListenAddr must be specified when metrics are enabled")
	}
	return nil
}

func NewDefaultConfig() *Config {
	return &Config{
		RowUpperBound:       DefaultRowUpperBound,
		AttributeUpperBound: DefaultAttributeUpperBound,
		MaxBlockSize:        DefaultMaxBlockSize,
		AggUpperBound:       DefaultAggUpperBound,
		MaxEmptyBlocks:      DefaultMaxEmptyBlocks,
	}
}
