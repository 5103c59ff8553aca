package l1

import (
	"github.com/0xPolygon/cdk-opnode/config/types"
)

// Config is the configuration of the L1 chain watcher
type Config struct {
	// URL is the L1 execution client RPC endpoint
	URL string `mapstructure:"URL"`
	// PollInterval is the wait between polls once the watcher reached the L1 head
	PollInterval types.Duration `mapstructure:"PollInterval"`
	// RequestsPerSecond caps the rate of RPC calls to the L1 node
	RequestsPerSecond float64 `mapstructure:"RequestsPerSecond"`
	// BufferSize is the capacity of the block update queue
	BufferSize int `mapstructure:"BufferSize"`
	// RetryAfterErrorPeriod is the time to wait before retrying a failed call
	RetryAfterErrorPeriod types.Duration `mapstructure:"RetryAfterErrorPeriod"`
	// MaxRetryAttemptsAfterError is the number of attempts before the watcher gives up.
	// -1 retries forever
	MaxRetryAttemptsAfterError int `mapstructure:"MaxRetryAttemptsAfterError"`
}
