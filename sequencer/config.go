package sequencer

import "github.com/0xPolygon/cdk-opnode/config/types"

// Config of the block producer. Only one node of a chain runs the sequencer component.
type Config struct {
	// SealingDuration is how long before the block time the block being built is sealed
	SealingDuration types.Duration `mapstructure:"SealingDuration"`
	// MaxSafeLag pauses sequencing while the unsafe head is this many blocks
	// ahead of the safe head. 0 disables the check.
	MaxSafeLag uint64 `mapstructure:"MaxSafeLag"`
}
