package portal

import (
	"fmt"
	"time"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/utils"
)

type MalformedPolicy string

const (
	// FailOnMalformed stops the stream at a block missing header fields
	FailOnMalformed MalformedPolicy = "fail"
	// SkipMalformed drops such blocks and counts them
	SkipMalformed MalformedPolicy = "skip"
)

type Config struct {
	// URL of the dataset, e.g. https://portal.sqd.dev/datasets/solana-mainnet
	URL     string            `json:"url" validate:"required,url"`
	Headers map[string]string `json:"headers,omitempty"`
	// BatchSize is the maximum number of blocks per batch
	BatchSize        int             `json:"batch_size,omitempty" validate:"gte=0"`
	MaxRetries       int             `json:"max_retries,omitempty" validate:"gte=0"`
	RetryBackoffMs   int64           `json:"retry_backoff_ms,omitempty" validate:"gte=0"`
	PollIntervalMs   int64           `json:"poll_interval_ms,omitempty" validate:"gte=0"`
	RequestTimeoutMs int64           `json:"request_timeout_ms,omitempty" validate:"gte=0"`
	MalformedBlocks  MalformedPolicy `json:"malformed_blocks,omitempty" validate:"omitempty,oneof=fail skip"`
}

func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}
	c.setDefaults()
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}

func (c *Config) setDefaults() {
	c.BatchSize = utils.Ternary(c.BatchSize == 0, constants.DefaultBatchSize, c.BatchSize)
	c.MaxRetries = utils.Ternary(c.MaxRetries == 0, constants.DefaultRetryCount, c.MaxRetries)
	c.MalformedBlocks = utils.Ternary(c.MalformedBlocks == "", FailOnMalformed, c.MalformedBlocks)
	if c.RetryBackoffMs == 0 {
		c.RetryBackoffMs = constants.DefaultRetryTimeout.Milliseconds()
	}
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = constants.DefaultPollInterval.Milliseconds()
	}
	if c.RequestTimeoutMs == 0 {
		c.RequestTimeoutMs = constants.DefaultRequestTimeout.Milliseconds()
	}
}

func (c *Config) retryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

func (c *Config) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) requestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
