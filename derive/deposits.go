package derive

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-multierror"
)

const depositEventVersion0 = 0

var (
	// DepositEventABIHash is the topic of the deposit contract TransactionDeposited event.
	DepositEventABIHash = crypto.Keccak256Hash([]byte("TransactionDeposited(address,address,uint256,bytes)"))

	ErrDepositsNotFound = errors.New("user deposits of L1 block not found")

	opaqueDataArgs = func() abi.Arguments {
		t, err := abi.NewType("bytes", "", nil)
		if err != nil {
			panic(err)
		}
		return abi.Arguments{{Type: t}}
	}()
)

// UnmarshalDepositLogEvent decodes a TransactionDeposited log into a deposit tx.
//
// opaqueData v0: mint (32) ++ value (32) ++ gas (8) ++ isCreation (1) ++ data
func UnmarshalDepositLogEvent(ev *types.Log) (*rollup.DepositTx, error) {
	if len(ev.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 event topics, got %d", len(ev.Topics))
	}
	if ev.Topics[0] != DepositEventABIHash {
		return nil, fmt.Errorf("invalid deposit event selector %s", ev.Topics[0])
	}
	version := ev.Topics[3]
	if version != (common.Hash{}) {
		return nil, fmt.Errorf("unsupported deposit event version %s", version)
	}

	values, err := opaqueDataArgs.Unpack(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack opaque data: %w", err)
	}
	opaque, ok := values[0].([]byte)
	if !ok || len(opaque) < 73 {
		return nil, fmt.Errorf("opaque data too short: %d bytes", len(opaque))
	}

	dep := &rollup.DepositTx{
		SourceHash: rollup.DepositSourceHash(rollup.UserDepositSourceDomain, ev.BlockHash, uint64(ev.Index)),
		From:       common.BytesToAddress(ev.Topics[1][12:]),
		Value:      new(big.Int).SetBytes(opaque[32:64]),
		Gas:        new(big.Int).SetBytes(opaque[64:72]).Uint64(),
		Data:       common.CopyBytes(opaque[73:]),
	}
	if mint := new(big.Int).SetBytes(opaque[:32]); mint.Sign() != 0 {
		dep.Mint = mint
	}
	switch opaque[72] {
	case 0:
		to := common.BytesToAddress(ev.Topics[2][12:])
		dep.To = &to
	case 1:
	default:
		return nil, fmt.Errorf("invalid is_creation byte %d", opaque[72])
	}
	return dep, nil
}

// MarshalDepositLogEvent is the inverse of UnmarshalDepositLogEvent. Used by tests and devnet tooling.
func MarshalDepositLogEvent(depositContract common.Address, dep *rollup.DepositTx) (*types.Log, error) {
	to := common.Address{}
	isCreation := byte(1)
	if dep.To != nil {
		to = *dep.To
		isCreation = 0
	}
	opaque := make([]byte, 0, 73+len(dep.Data))
	mint := new(big.Int)
	if dep.Mint != nil {
		mint = dep.Mint
	}
	opaque = append(opaque, common.BigToHash(mint).Bytes()...)
	value := new(big.Int)
	if dep.Value != nil {
		value = dep.Value
	}
	opaque = append(opaque, common.BigToHash(value).Bytes()...)
	gas := common.BigToHash(new(big.Int).SetUint64(dep.Gas))
	opaque = append(opaque, gas[24:]...)
	opaque = append(opaque, isCreation)
	opaque = append(opaque, dep.Data...)

	data, err := opaqueDataArgs.Pack(opaque)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: depositContract,
		Topics: []common.Hash{
			DepositEventABIHash,
			common.BytesToHash(dep.From.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(depositEventVersion0)),
		},
		Data: data,
	}, nil
}

// UserDeposits decodes the deposit logs emitted by depositContract and returns
// them as encoded deposit txs, in log order.
func UserDeposits(logs []types.Log, depositContract common.Address) ([]hexutil.Bytes, error) {
	var result error
	out := make([]hexutil.Bytes, 0, len(logs))
	for i := range logs {
		ev := &logs[i]
		if ev.Address != depositContract || len(ev.Topics) == 0 || ev.Topics[0] != DepositEventABIHash {
			continue
		}
		if ev.Removed {
			continue
		}
		dep, err := UnmarshalDepositLogEvent(ev)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("malformed deposit log %d in tx %s: %w", ev.Index, ev.TxHash, err))
			continue
		}
		enc, err := dep.MarshalBinary()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to encode deposit %d: %w", ev.Index, err))
			continue
		}
		out = append(out, enc)
	}
	return out, result
}
