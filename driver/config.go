package driver

import "github.com/0xPolygon/cdk-opnode/config/types"

// Config of the driver loop
type Config struct {
	// TickInterval is how long the loop sleeps when a tick made no progress
	TickInterval types.Duration `mapstructure:"TickInterval"`
	// EngineReadyInterval is the wait between probes of the engine on startup
	EngineReadyInterval types.Duration `mapstructure:"EngineReadyInterval"`
	// UnsafeLookahead is how far ahead of the unsafe head a payload may be queued
	UnsafeLookahead uint64 `mapstructure:"UnsafeLookahead"`
	// ELSync lets the execution engine sync from its peers before deriving from L1.
	// It follows Engine.SyncMode
	ELSync bool `mapstructure:"-"`
}
