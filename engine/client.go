package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xPolygon/cdk-opnode/derive"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/etherman"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultForkchoiceTimeout = 8 * time.Second
	DefaultGetPayloadTimeout = time.Second
)

// RPCCaller is the subset of the go-ethereum RPC client used by Client.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Client talks to the execution engine over its authenticated RPC endpoint.
type Client struct {
	rpc    RPCCaller
	cfg    *rollup.Config
	log    *log.Logger
	closer func()

	forkchoiceTimeout time.Duration
	getPayloadTimeout time.Duration
}

// Dial connects to the engine API with JWT authentication.
func Dial(ctx context.Context, cfg Config, rollupCfg *rollup.Config) (*Client, error) {
	secret, err := LoadJWTSecret(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	rpcClient, err := rpc.DialOptions(ctx, cfg.URL, rpc.WithHTTPAuth(jwtAuth(secret)))
	if err != nil {
		return nil, fmt.Errorf("failed to dial engine %s: %w", cfg.URL, err)
	}
	c := NewClient(rpcClient, rollupCfg, cfg.ForkchoiceTimeout.Duration, cfg.GetPayloadTimeout.Duration)
	c.closer = rpcClient.Close
	return c, nil
}

// NewClient wraps an RPC connection. Zero timeouts select the defaults.
func NewClient(caller RPCCaller, rollupCfg *rollup.Config, forkchoiceTimeout, getPayloadTimeout time.Duration) *Client {
	if forkchoiceTimeout == 0 {
		forkchoiceTimeout = DefaultForkchoiceTimeout
	}
	if getPayloadTimeout == 0 {
		getPayloadTimeout = DefaultGetPayloadTimeout
	}
	return &Client{
		rpc:               caller,
		cfg:               rollupCfg,
		log:               log.WithFields("module", "engine-client"),
		forkchoiceTimeout: forkchoiceTimeout,
		getPayloadTimeout: getPayloadTimeout,
	}
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) forkchoiceUpdatedVersion(attrs *enginetypes.PayloadAttributes) enginetypes.EngineAPIMethod {
	if attrs == nil {
		if c.cfg.EcotoneTime != nil {
			return enginetypes.FCUV3
		}
		return enginetypes.FCUV1
	}
	ts := uint64(attrs.Timestamp)
	switch {
	case c.cfg.IsEcotone(ts):
		return enginetypes.FCUV3
	case c.cfg.IsCanyon(ts):
		return enginetypes.FCUV2
	default:
		return enginetypes.FCUV1
	}
}

func (c *Client) newPayloadVersion(timestamp uint64) enginetypes.EngineAPIMethod {
	switch {
	case c.cfg.IsEcotone(timestamp):
		return enginetypes.NewPayloadV3
	case c.cfg.IsCanyon(timestamp):
		return enginetypes.NewPayloadV2
	default:
		return enginetypes.NewPayloadV1
	}
}

func (c *Client) getPayloadVersion(timestamp uint64) enginetypes.EngineAPIMethod {
	switch {
	case c.cfg.IsEcotone(timestamp):
		return enginetypes.GetPayloadV3
	case c.cfg.IsCanyon(timestamp):
		return enginetypes.GetPayloadV2
	default:
		return enginetypes.GetPayloadV1
	}
}

// inputError turns engine API input error codes into an InputError.
func inputError(err error, codes ...enginetypes.ErrorCode) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	code := enginetypes.ErrorCode(rpcErr.ErrorCode())
	for _, c := range codes {
		if code == c {
			return enginetypes.InputError{Inner: err, Code: code}
		}
	}
	return fmt.Errorf("unrecognized rpc error: %w", err)
}

func (c *Client) ForkchoiceUpdate(ctx context.Context, state *enginetypes.ForkchoiceState,
	attrs *enginetypes.PayloadAttributes) (*enginetypes.ForkchoiceUpdatedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.forkchoiceTimeout)
	defer cancel()
	method := c.forkchoiceUpdatedVersion(attrs)
	var result enginetypes.ForkchoiceUpdatedResult
	if err := c.rpc.CallContext(ctx, &result, string(method), state, attrs); err != nil {
		c.log.Warnw("forkchoice update failed", "method", method, "head", state.HeadBlockHash, "error", err)
		return nil, inputError(err, enginetypes.InvalidParams, enginetypes.InvalidForkchoiceState,
			enginetypes.InvalidPayloadAttributes)
	}
	c.log.Debugw("forkchoice updated", "method", method, "head", state.HeadBlockHash,
		"safe", state.SafeBlockHash, "finalized", state.FinalizedBlockHash,
		"status", result.PayloadStatus.Status, "payload_id", result.PayloadID)
	return &result, nil
}

func (c *Client) NewPayload(ctx context.Context, payload *enginetypes.ExecutionPayload,
	parentBeaconBlockRoot *common.Hash) (*enginetypes.PayloadStatusV1, error) {
	ctx, cancel := context.WithTimeout(ctx, c.forkchoiceTimeout)
	defer cancel()
	var (
		result enginetypes.PayloadStatusV1
		err    error
	)
	switch method := c.newPayloadVersion(uint64(payload.Timestamp)); method {
	case enginetypes.NewPayloadV3:
		if parentBeaconBlockRoot == nil {
			return nil, fmt.Errorf("%s requires a parent beacon block root", method)
		}
		err = c.rpc.CallContext(ctx, &result, string(method), payload, []common.Hash{}, parentBeaconBlockRoot)
	default:
		err = c.rpc.CallContext(ctx, &result, string(method), payload)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute payload %s: %w", payload, err)
	}
	c.log.Debugw("payload executed", "block", payload.String(), "status", result.Status)
	return &result, nil
}

func (c *Client) GetPayload(ctx context.Context, info enginetypes.PayloadInfo) (*enginetypes.ExecutionPayloadEnvelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.getPayloadTimeout)
	defer cancel()
	method := c.getPayloadVersion(info.Timestamp)
	var err error
	var envelope enginetypes.ExecutionPayloadEnvelope
	if method == enginetypes.GetPayloadV1 {
		var payload enginetypes.ExecutionPayload
		err = c.rpc.CallContext(ctx, &payload, string(method), info.ID)
		envelope.ExecutionPayload = &payload
	} else {
		err = c.rpc.CallContext(ctx, &envelope, string(method), info.ID)
	}
	if err != nil {
		c.log.Warnw("failed to get payload", "payload_id", info.ID, "error", err)
		return nil, inputError(err, enginetypes.UnknownPayload)
	}
	if envelope.ExecutionPayload == nil {
		return nil, fmt.Errorf("engine returned no payload for id %s", info.ID)
	}
	return &envelope, nil
}

func isNotFoundMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "Unknown block")
}

func (c *Client) blockByTag(ctx context.Context, tag string) (*enginetypes.L2Block, error) {
	var block *enginetypes.L2Block
	if err := c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", tag, false); err != nil {
		if isNotFoundMessage(err) {
			return nil, fmt.Errorf("%w: L2 block %s: %v", ethereum.NotFound, tag, err)
		}
		return nil, fmt.Errorf("failed to fetch L2 block %s: %w", tag, err)
	}
	if block == nil {
		return nil, fmt.Errorf("%w: L2 block %s", ethereum.NotFound, tag)
	}
	return block, nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*enginetypes.L2Block, error) {
	return c.blockByTag(ctx, hexutil.EncodeUint64(number))
}

func (c *Client) BlockByLabel(ctx context.Context, label etherman.BlockNumberFinality) (*enginetypes.L2Block, error) {
	num, err := label.ToBlockNum()
	if err != nil {
		return nil, err
	}
	return c.blockByTag(ctx, rpc.BlockNumber(num.Int64()).String())
}

func (c *Client) L2BlockRefByNumber(ctx context.Context, number uint64) (rollup.L2BlockRef, error) {
	block, err := c.BlockByNumber(ctx, number)
	if err != nil {
		return rollup.L2BlockRef{}, c.refError(err)
	}
	return c.blockRef(ctx, block)
}

func (c *Client) L2BlockRefByLabel(ctx context.Context, label etherman.BlockNumberFinality) (rollup.L2BlockRef, error) {
	block, err := c.BlockByLabel(ctx, label)
	if err != nil {
		return rollup.L2BlockRef{}, c.refError(err)
	}
	return c.blockRef(ctx, block)
}

func (c *Client) refError(err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%w: %w", derive.ErrL2BlockNotFound, err)
	}
	return err
}

// blockRef reads the L1 origin of a block from its L1 info deposit.
func (c *Client) blockRef(ctx context.Context, block *enginetypes.L2Block) (rollup.L2BlockRef, error) {
	info := block.BlockInfo()
	if info.Number == c.cfg.Genesis.L2.Number {
		if info.Hash != c.cfg.Genesis.L2.Hash {
			return rollup.L2BlockRef{}, fmt.Errorf("expected L2 genesis hash %s, got %s", c.cfg.Genesis.L2.Hash, info.Hash)
		}
		return rollup.L2BlockRef{
			BlockInfo: info,
			L1Origin:  rollup.Epoch{Number: c.cfg.Genesis.L1.Number, Hash: c.cfg.Genesis.L1.Hash},
		}, nil
	}
	l1Info, err := c.l1BlockInfo(ctx, block)
	if err != nil {
		return rollup.L2BlockRef{}, err
	}
	return rollup.L2BlockRef{
		BlockInfo:      info,
		L1Origin:       l1Info.Epoch(),
		SequenceNumber: l1Info.SequenceNumber,
	}, nil
}

func (c *Client) l1BlockInfo(ctx context.Context, block *enginetypes.L2Block) (*rollup.L1BlockInfo, error) {
	info := block.BlockInfo()
	if len(block.Transactions) == 0 {
		return nil, fmt.Errorf("L2 block %s has no L1 info deposit", info)
	}
	var raw hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &raw, "eth_getRawTransactionByBlockHashAndIndex", info.Hash, hexutil.Uint64(0)); err != nil {
		return nil, fmt.Errorf("failed to fetch L1 info deposit of %s: %w", info, err)
	}
	l1Info, err := rollup.L1BlockInfoFromDepositTx(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse L1 info deposit of %s: %w", info, err)
	}
	return l1Info, nil
}

// SystemConfigByNumber returns the system config L2 block number was built
// with, read back from its L1 info deposit and gas limit.
func (c *Client) SystemConfigByNumber(ctx context.Context, number uint64) (rollup.SystemConfig, error) {
	if number == c.cfg.Genesis.L2.Number {
		return c.cfg.Genesis.SystemConfig, nil
	}
	block, err := c.BlockByNumber(ctx, number)
	if err != nil {
		return rollup.SystemConfig{}, c.refError(err)
	}
	l1Info, err := c.l1BlockInfo(ctx, block)
	if err != nil {
		return rollup.SystemConfig{}, err
	}
	return l1Info.SystemConfig(c.cfg.Genesis.SystemConfig.UnsafeBlockSigner, uint64(block.GasLimit)), nil
}
