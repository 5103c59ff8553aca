package engine

import (
	"github.com/0xPolygon/cdk-opnode/config/types"
)

const (
	// SyncModeCL derives every block from L1
	SyncModeCL = "cl"
	// SyncModeEL lets the execution engine sync from its peers before deriving
	SyncModeEL = "el"
)

// Config is the configuration of the execution engine client
type Config struct {
	// URL is the authenticated engine API endpoint of the execution client
	URL string `mapstructure:"URL"`
	// JWTSecret is the hex encoded 32 byte secret shared with the execution client,
	// or the path of a file containing it
	JWTSecret string `mapstructure:"JWTSecret"`
	// ForkchoiceTimeout bounds engine_forkchoiceUpdated and engine_newPayload calls
	ForkchoiceTimeout types.Duration `mapstructure:"ForkchoiceTimeout"`
	// GetPayloadTimeout bounds engine_getPayload calls
	GetPayloadTimeout types.Duration `mapstructure:"GetPayloadTimeout"`
	// SyncMode is either "cl" or "el"
	SyncMode string `jsonschema:"enum=cl, enum=el" mapstructure:"SyncMode"`
}

// IsELSync is true when the engine is allowed to sync from its own peers.
func (c Config) IsELSync() bool {
	return c.SyncMode == SyncModeEL
}
