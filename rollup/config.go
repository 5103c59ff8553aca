package rollup

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

const (
	maxChannelSizeBedrock = 100_000_000
	maxChannelSizeFjord   = 1_000_000_000

	maxRLPBytesPerChannelBedrock = 10_000_000
	maxRLPBytesPerChannelFjord   = 100_000_000

	maxSequencerDriftFjord = 1800
	channelTimeoutGranite  = 50
)

var (
	ErrBlockTimeZero         = errors.New("block time cannot be 0")
	ErrMissingChannelTimeout = errors.New("channel timeout must be set")
	ErrMissingSeqWindowSize  = errors.New("sequencing window size must at least be 2")
	ErrMissingGenesisL2Hash  = errors.New("genesis L2 hash cannot be empty")
	ErrMissingL2ChainID      = errors.New("L2 chain ID must not be nil")
	ErrMissingBatchInbox     = errors.New("batch inbox address cannot be empty")
	ErrMissingDepositAddress = errors.New("deposit contract address cannot be empty")
)

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   common.Hash `json:"hash" toml:"hash"`
	Number uint64      `json:"number" toml:"number"`
}

// Genesis anchors the rollup to its first L1 origin and L2 block.
type Genesis struct {
	L1           BlockID      `json:"l1" toml:"l1"`
	L2           BlockID      `json:"l2" toml:"l2"`
	L2Time       uint64       `json:"l2_time" toml:"l2_time"`
	SystemConfig SystemConfig `json:"system_config" toml:"system_config"`
}

// Config is the rollup chain configuration (the rollup.json of the chain).
type Config struct {
	Genesis Genesis `json:"genesis" toml:"genesis"`
	// Seconds per L2 block
	BlockTime uint64 `json:"block_time" toml:"block_time"`
	// Sequencer batches may not be more than MaxSequencerDrift seconds after
	// the L1 timestamp of the sequencing window end.
	MaxSequencerDrift uint64 `json:"max_sequencer_drift" toml:"max_sequencer_drift"`
	// Number of epochs (L1 blocks) per sequencing window
	SeqWindowSize uint64 `json:"seq_window_size" toml:"seq_window_size"`
	// Number of L1 blocks between when a channel can be opened and when it must be closed by.
	ChannelTimeout uint64 `json:"channel_timeout" toml:"channel_timeout"`

	L1ChainID *big.Int `json:"l1_chain_id" toml:"l1_chain_id"`
	L2ChainID *big.Int `json:"l2_chain_id" toml:"l2_chain_id"`

	// Fork activation timestamps. nil means the fork is not scheduled.
	RegolithTime *uint64 `json:"regolith_time,omitempty" toml:"regolith_time,omitempty"`
	CanyonTime   *uint64 `json:"canyon_time,omitempty" toml:"canyon_time,omitempty"`
	DeltaTime    *uint64 `json:"delta_time,omitempty" toml:"delta_time,omitempty"`
	EcotoneTime  *uint64 `json:"ecotone_time,omitempty" toml:"ecotone_time,omitempty"`
	FjordTime    *uint64 `json:"fjord_time,omitempty" toml:"fjord_time,omitempty"`
	GraniteTime  *uint64 `json:"granite_time,omitempty" toml:"granite_time,omitempty"`

	BatchInboxAddress      common.Address `json:"batch_inbox_address" toml:"batch_inbox_address"`
	DepositContractAddress common.Address `json:"deposit_contract_address" toml:"deposit_contract_address"`
	L1SystemConfigAddress  common.Address `json:"l1_system_config_address" toml:"l1_system_config_address"`
}

// LoadConfig reads a rollup config from a JSON or TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rollup config %s: %w", path, err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode rollup config %s: %w", path, err)
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid rollup config %s: %w", path, err)
	}
	return &cfg, nil
}

// Check verifies that the config has the values required to derive the chain.
func (c *Config) Check() error {
	if c.BlockTime == 0 {
		return ErrBlockTimeZero
	}
	if c.ChannelTimeout == 0 {
		return ErrMissingChannelTimeout
	}
	if c.SeqWindowSize < 2 { //nolint:mnd
		return ErrMissingSeqWindowSize
	}
	if c.Genesis.L2.Hash == (common.Hash{}) {
		return ErrMissingGenesisL2Hash
	}
	if c.L2ChainID == nil || c.L2ChainID.Sign() <= 0 {
		return ErrMissingL2ChainID
	}
	if c.BatchInboxAddress == (common.Address{}) {
		return ErrMissingBatchInbox
	}
	if c.DepositContractAddress == (common.Address{}) {
		return ErrMissingDepositAddress
	}
	return nil
}

func forkActive(fork *uint64, timestamp uint64) bool {
	return fork != nil && timestamp >= *fork
}

func (c *Config) IsRegolith(timestamp uint64) bool { return forkActive(c.RegolithTime, timestamp) }
func (c *Config) IsCanyon(timestamp uint64) bool   { return forkActive(c.CanyonTime, timestamp) }
func (c *Config) IsDelta(timestamp uint64) bool    { return forkActive(c.DeltaTime, timestamp) }
func (c *Config) IsEcotone(timestamp uint64) bool  { return forkActive(c.EcotoneTime, timestamp) }
func (c *Config) IsFjord(timestamp uint64) bool    { return forkActive(c.FjordTime, timestamp) }
func (c *Config) IsGranite(timestamp uint64) bool  { return forkActive(c.GraniteTime, timestamp) }

// IsEcotoneActivationBlock is true for the first L2 block with Ecotone active.
func (c *Config) IsEcotoneActivationBlock(l2Time uint64) bool {
	return c.IsEcotone(l2Time) && l2Time >= c.BlockTime && !c.IsEcotone(l2Time-c.BlockTime)
}

// IsFjordActivationBlock is true for the first L2 block with Fjord active.
func (c *Config) IsFjordActivationBlock(l2Time uint64) bool {
	return c.IsFjord(l2Time) && l2Time >= c.BlockTime && !c.IsFjord(l2Time-c.BlockTime)
}

// ChannelTimeoutAt returns the channel timeout in L1 blocks at the given L1 timestamp.
func (c *Config) ChannelTimeoutAt(l1Time uint64) uint64 {
	if c.IsGranite(l1Time) {
		return channelTimeoutGranite
	}
	return c.ChannelTimeout
}

// MaxChannelSize returns the max total frame data a pending channel may hold.
func (c *Config) MaxChannelSize(l1Time uint64) uint64 {
	if c.IsFjord(l1Time) {
		return maxChannelSizeFjord
	}
	return maxChannelSizeBedrock
}

// MaxRLPBytesPerChannel bounds the decompressed size of a channel.
func (c *Config) MaxRLPBytesPerChannel(l1Time uint64) uint64 {
	if c.IsFjord(l1Time) {
		return maxRLPBytesPerChannelFjord
	}
	return maxRLPBytesPerChannelBedrock
}

// MaxSequencerDriftAt returns the drift allowance in seconds for an L1 origin timestamp.
func (c *Config) MaxSequencerDriftAt(l1Time uint64) uint64 {
	if c.IsFjord(l1Time) {
		return maxSequencerDriftFjord
	}
	return c.MaxSequencerDrift
}

// TargetBlockNumber returns the L2 block number expected at the given L2 timestamp.
func (c *Config) TargetBlockNumber(timestamp uint64) (uint64, error) {
	if timestamp < c.Genesis.L2Time {
		return 0, fmt.Errorf("timestamp %d is before genesis %d", timestamp, c.Genesis.L2Time)
	}
	return c.Genesis.L2.Number + (timestamp-c.Genesis.L2Time)/c.BlockTime, nil
}

// Description is a one-line summary logged at startup.
func (c *Config) Description() string {
	return fmt.Sprintf("L2 chain %v, L1 chain %v, block time %ds, genesis L2 #%d %s, seq window %d, channel timeout %d",
		c.L2ChainID, c.L1ChainID, c.BlockTime, c.Genesis.L2.Number, c.Genesis.L2.Hash.TerminalString(),
		c.SeqWindowSize, c.ChannelTimeout)
}
