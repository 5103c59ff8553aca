package rollup

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SystemConfigUpdateBatcher           = uint64(0)
	SystemConfigUpdateGasConfig         = uint64(1)
	SystemConfigUpdateGasLimit          = uint64(2)
	SystemConfigUpdateUnsafeBlockSigner = uint64(3)

	// scalar version byte for the Ecotone encoding
	L1ScalarEcotone = byte(1)
	L1ScalarBedrock = byte(0)
)

var (
	ConfigUpdateEventABI      = "ConfigUpdate(uint256,uint8,bytes)"
	ConfigUpdateEventABIHash  = crypto.Keccak256Hash([]byte(ConfigUpdateEventABI))
	ConfigUpdateEventVersion0 = common.Hash{}

	ErrUnknownConfigUpdate = errors.New("unknown system config update type")
	ErrInvalidConfigUpdate = errors.New("invalid system config update log")

	bytesArgs   = mustArguments("bytes")
	addressArgs = mustArguments("address")
	uint256Args = mustArguments("uint256")
	gasArgs     = mustArguments("uint256", "uint256")
)

func mustArguments(typeNames ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(typeNames))
	for _, name := range typeNames {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// SystemConfig is the L1-governed configuration that affects L2 block building.
type SystemConfig struct {
	BatcherAddr       common.Address `json:"batcherAddr" toml:"batcherAddr"`
	Overhead          common.Hash    `json:"overhead" toml:"overhead"`
	Scalar            common.Hash    `json:"scalar" toml:"scalar"`
	GasLimit          uint64         `json:"gasLimit" toml:"gasLimit"`
	UnsafeBlockSigner common.Address `json:"unsafeBlockSigner,omitempty" toml:"unsafeBlockSigner,omitempty"`
}

// BatcherHash is the batcher address left-padded to 32 bytes.
func (s SystemConfig) BatcherHash() common.Hash {
	return common.BytesToHash(s.BatcherAddr.Bytes())
}

// EcotoneScalars splits the packed scalar into blob base fee and base fee scalars.
func (s SystemConfig) EcotoneScalars() (blobBaseFeeScalar, baseFeeScalar uint32, err error) {
	switch s.Scalar[0] {
	case L1ScalarBedrock:
		return 0, uint32FromBytes(s.Scalar[28:32]), nil
	case L1ScalarEcotone:
		return uint32FromBytes(s.Scalar[24:28]), uint32FromBytes(s.Scalar[28:32]), nil
	default:
		return 0, 0, fmt.Errorf("unexpected system config scalar version %d", s.Scalar[0])
	}
}

func uint32FromBytes(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ProcessConfigUpdateLog applies a ConfigUpdate event emitted by the L1 SystemConfig contract.
func (s *SystemConfig) ProcessConfigUpdateLog(l *types.Log) error {
	if len(l.Topics) != 3 { //nolint:mnd
		return fmt.Errorf("%w: expected 3 topics, got %d", ErrInvalidConfigUpdate, len(l.Topics))
	}
	if l.Topics[0] != ConfigUpdateEventABIHash {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidConfigUpdate, l.Topics[0])
	}
	if l.Topics[1] != ConfigUpdateEventVersion0 {
		return fmt.Errorf("%w: unsupported version %s", ErrInvalidConfigUpdate, l.Topics[1])
	}
	unpacked, err := bytesArgs.Unpack(l.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfigUpdate, err)
	}
	payload, ok := unpacked[0].([]byte)
	if !ok {
		return fmt.Errorf("%w: payload is not bytes", ErrInvalidConfigUpdate)
	}

	updateType := new(big.Int).SetBytes(l.Topics[2][:])
	if !updateType.IsUint64() {
		return ErrUnknownConfigUpdate
	}
	switch updateType.Uint64() {
	case SystemConfigUpdateBatcher:
		addr, err := unpackAddress(payload)
		if err != nil {
			return err
		}
		s.BatcherAddr = addr
	case SystemConfigUpdateGasConfig:
		values, err := gasArgs.Unpack(payload)
		if err != nil {
			return fmt.Errorf("%w: gas config: %w", ErrInvalidConfigUpdate, err)
		}
		overhead, _ := values[0].(*big.Int)
		scalar, _ := values[1].(*big.Int)
		if overhead == nil || scalar == nil {
			return fmt.Errorf("%w: gas config values", ErrInvalidConfigUpdate)
		}
		s.Overhead = common.BigToHash(overhead)
		s.Scalar = common.BigToHash(scalar)
	case SystemConfigUpdateGasLimit:
		values, err := uint256Args.Unpack(payload)
		if err != nil {
			return fmt.Errorf("%w: gas limit: %w", ErrInvalidConfigUpdate, err)
		}
		gasLimit, _ := values[0].(*big.Int)
		if gasLimit == nil || !gasLimit.IsUint64() {
			return fmt.Errorf("%w: gas limit out of range", ErrInvalidConfigUpdate)
		}
		s.GasLimit = gasLimit.Uint64()
	case SystemConfigUpdateUnsafeBlockSigner:
		addr, err := unpackAddress(payload)
		if err != nil {
			return err
		}
		s.UnsafeBlockSigner = addr
	default:
		return fmt.Errorf("%w: %d", ErrUnknownConfigUpdate, updateType.Uint64())
	}
	return nil
}

func unpackAddress(payload []byte) (common.Address, error) {
	values, err := addressArgs.Unpack(payload)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: address: %w", ErrInvalidConfigUpdate, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: address type", ErrInvalidConfigUpdate)
	}
	return addr, nil
}

// MarshalBatcherUpdateLog builds the ConfigUpdate log the SystemConfig contract
// emits when the batcher changes. Used by tests and devnet tooling.
func MarshalBatcherUpdateLog(systemConfig, batcher common.Address) (*types.Log, error) {
	inner, err := addressArgs.Pack(batcher)
	if err != nil {
		return nil, err
	}
	data, err := bytesArgs.Pack(inner)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: systemConfig,
		Topics: []common.Hash{
			ConfigUpdateEventABIHash,
			ConfigUpdateEventVersion0,
			common.BigToHash(new(big.Int).SetUint64(SystemConfigUpdateBatcher)),
		},
		Data: data,
	}, nil
}
