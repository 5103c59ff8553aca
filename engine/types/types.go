package types

import (
	"errors"
	"fmt"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// PayloadID identifies a payload being built by the execution engine.
type PayloadID = engine.PayloadID

type EngineAPIMethod string

const (
	FCUV1 EngineAPIMethod = "engine_forkchoiceUpdatedV1"
	FCUV2 EngineAPIMethod = "engine_forkchoiceUpdatedV2"
	FCUV3 EngineAPIMethod = "engine_forkchoiceUpdatedV3"

	NewPayloadV1 EngineAPIMethod = "engine_newPayloadV1"
	NewPayloadV2 EngineAPIMethod = "engine_newPayloadV2"
	NewPayloadV3 EngineAPIMethod = "engine_newPayloadV3"

	GetPayloadV1 EngineAPIMethod = "engine_getPayloadV1"
	GetPayloadV2 EngineAPIMethod = "engine_getPayloadV2"
	GetPayloadV3 EngineAPIMethod = "engine_getPayloadV3"
)

type ExecutePayloadStatus string

const (
	ExecutionValid            ExecutePayloadStatus = "VALID"
	ExecutionInvalid          ExecutePayloadStatus = "INVALID"
	ExecutionSyncing          ExecutePayloadStatus = "SYNCING"
	ExecutionAccepted         ExecutePayloadStatus = "ACCEPTED"
	ExecutionInvalidBlockHash ExecutePayloadStatus = "INVALID_BLOCK_HASH"
)

// ErrorCode is a JSON-RPC error code returned by the engine API.
type ErrorCode int

const (
	UnknownPayload           ErrorCode = -32001
	InvalidForkchoiceState   ErrorCode = -38002
	InvalidPayloadAttributes ErrorCode = -38003
	InvalidParams            ErrorCode = -32602
)

// InputError distinguishes user-input errors of the engine API from transport errors.
type InputError struct {
	Inner error
	Code  ErrorCode
}

func (ie InputError) Error() string {
	return fmt.Sprintf("input error %d: %s", ie.Code, ie.Inner.Error())
}

func (ie InputError) Unwrap() error {
	return ie.Inner
}

// Is matches any InputError with the same code.
func (ie InputError) Is(target error) bool {
	var x InputError
	if !errors.As(target, &x) {
		return false
	}
	return ie.Code == x.Code
}

type ExecutionPayload struct {
	ParentHash    common.Hash        `json:"parentHash"`
	FeeRecipient  common.Address     `json:"feeRecipient"`
	StateRoot     common.Hash        `json:"stateRoot"`
	ReceiptsRoot  common.Hash        `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes      `json:"logsBloom"`
	PrevRandao    common.Hash        `json:"prevRandao"`
	BlockNumber   hexutil.Uint64     `json:"blockNumber"`
	GasLimit      hexutil.Uint64     `json:"gasLimit"`
	GasUsed       hexutil.Uint64     `json:"gasUsed"`
	Timestamp     hexutil.Uint64     `json:"timestamp"`
	ExtraData     hexutil.Bytes      `json:"extraData"`
	BaseFeePerGas *hexutil.Big       `json:"baseFeePerGas"`
	BlockHash     common.Hash        `json:"blockHash"`
	Transactions  []hexutil.Bytes    `json:"transactions"`
	Withdrawals   *types.Withdrawals `json:"withdrawals,omitempty"`
	BlobGasUsed   *hexutil.Uint64    `json:"blobGasUsed,omitempty"`
	ExcessBlobGas *hexutil.Uint64    `json:"excessBlobGas,omitempty"`
}

func (p *ExecutionPayload) BlockInfo() rollup.BlockInfo {
	return rollup.BlockInfo{
		Hash:       p.BlockHash,
		Number:     uint64(p.BlockNumber),
		ParentHash: p.ParentHash,
		Timestamp:  uint64(p.Timestamp),
	}
}

func (p *ExecutionPayload) String() string {
	return fmt.Sprintf("%s:%d", p.BlockHash.TerminalString(), uint64(p.BlockNumber))
}

// L1Info decodes the L1 block info deposit carried by the first transaction.
func (p *ExecutionPayload) L1Info() (*rollup.L1BlockInfo, error) {
	if len(p.Transactions) == 0 {
		return nil, fmt.Errorf("payload %s has no transactions", p)
	}
	return rollup.L1BlockInfoFromDepositTx(p.Transactions[0])
}

// ToL2BlockRef resolves the L1 origin and sequence number of the payload.
func (p *ExecutionPayload) ToL2BlockRef(cfg *rollup.Config) (rollup.L2BlockRef, error) {
	info := p.BlockInfo()
	if info.Number == cfg.Genesis.L2.Number {
		if info.Hash != cfg.Genesis.L2.Hash {
			return rollup.L2BlockRef{}, fmt.Errorf("expected L2 genesis hash %s, got %s", cfg.Genesis.L2.Hash, info.Hash)
		}
		return rollup.L2BlockRef{
			BlockInfo: info,
			L1Origin:  rollup.Epoch{Number: cfg.Genesis.L1.Number, Hash: cfg.Genesis.L1.Hash},
		}, nil
	}
	l1Info, err := p.L1Info()
	if err != nil {
		return rollup.L2BlockRef{}, fmt.Errorf("failed to parse L1 info deposit tx from L2 block %s: %w", p, err)
	}
	return rollup.L2BlockRef{
		BlockInfo:      info,
		L1Origin:       l1Info.Epoch(),
		SequenceNumber: l1Info.SequenceNumber,
	}, nil
}

type ExecutionPayloadEnvelope struct {
	ParentBeaconBlockRoot *common.Hash      `json:"parentBeaconBlockRoot,omitempty"`
	ExecutionPayload      *ExecutionPayload `json:"executionPayload"`
}

// PayloadAttributes is what the node asks the engine to build. The json:"-" fields
// are derivation metadata and never leave the process.
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64     `json:"timestamp"`
	PrevRandao            common.Hash        `json:"prevRandao"`
	SuggestedFeeRecipient common.Address     `json:"suggestedFeeRecipient"`
	Withdrawals           *types.Withdrawals `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash       `json:"parentBeaconBlockRoot,omitempty"`
	Transactions          []hexutil.Bytes    `json:"transactions,omitempty"`
	NoTxPool              bool               `json:"noTxPool,omitempty"`
	GasLimit              *hexutil.Uint64    `json:"gasLimit,omitempty"`

	Epoch            rollup.Epoch `json:"-"`
	L1InclusionBlock uint64       `json:"-"`
	SeqNumber        uint64       `json:"-"`
}

type ForkchoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

type PayloadStatusV1 struct {
	Status          ExecutePayloadStatus `json:"status"`
	LatestValidHash *common.Hash         `json:"latestValidHash,omitempty"`
	ValidationError *string              `json:"validationError,omitempty"`
}

func (s PayloadStatusV1) String() string {
	if s.ValidationError != nil {
		return fmt.Sprintf("%s (%s)", s.Status, *s.ValidationError)
	}
	return string(s.Status)
}

type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *PayloadID      `json:"payloadId"`
}

// PayloadInfo is what GetPayload needs to pick the method version.
type PayloadInfo struct {
	ID        PayloadID
	Timestamp uint64
}

// L2Block is the subset of eth_getBlockByNumber(.., false) the node needs.
type L2Block struct {
	Hash         common.Hash    `json:"hash"`
	Number       hexutil.Uint64 `json:"number"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Miner        common.Address `json:"miner"`
	MixHash      common.Hash    `json:"mixHash"`
	GasLimit     hexutil.Uint64 `json:"gasLimit"`
	Transactions []common.Hash  `json:"transactions"`
}

func (b *L2Block) BlockInfo() rollup.BlockInfo {
	return rollup.BlockInfo{
		Hash:       b.Hash,
		Number:     uint64(b.Number),
		ParentHash: b.ParentHash,
		Timestamp:  uint64(b.Timestamp),
	}
}
