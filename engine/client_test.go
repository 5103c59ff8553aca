package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/0xPolygon/cdk-opnode/derive"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/etherman"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	method   string
	args     []interface{}
	deadline time.Duration
}

// fakeCaller answers every method with a canned JSON encodable value or error.
type fakeCaller struct {
	results map[string]interface{}
	errs    map[string]error
	calls   []rpcCall
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{results: make(map[string]interface{}), errs: make(map[string]error)}
}

func (f *fakeCaller) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	call := rpcCall{method: method, args: args}
	if deadline, ok := ctx.Deadline(); ok {
		call.deadline = time.Until(deadline)
	}
	f.calls = append(f.calls, call)
	if err, ok := f.errs[method]; ok {
		return err
	}
	data, err := json.Marshal(f.results[method])
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

func (f *fakeCaller) lastCall(t *testing.T) rpcCall {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type codeError struct {
	code int
}

func (e codeError) Error() string  { return "engine error" }
func (e codeError) ErrorCode() int { return e.code }

func forkConfig() *rollup.Config {
	cfg := testRollupConfig()
	canyon, ecotone := uint64(2000), uint64(3000)
	cfg.CanyonTime = &canyon
	cfg.EcotoneTime = &ecotone
	return cfg
}

func TestClientMethodVersions(t *testing.T) {
	c := NewClient(newFakeCaller(), forkConfig(), 0, 0)
	attrsAt := func(ts uint64) *enginetypes.PayloadAttributes {
		return &enginetypes.PayloadAttributes{Timestamp: hexutil.Uint64(ts)}
	}
	require.Equal(t, enginetypes.FCUV3, c.forkchoiceUpdatedVersion(nil))
	require.Equal(t, enginetypes.FCUV1, c.forkchoiceUpdatedVersion(attrsAt(1500)))
	require.Equal(t, enginetypes.FCUV2, c.forkchoiceUpdatedVersion(attrsAt(2000)))
	require.Equal(t, enginetypes.FCUV3, c.forkchoiceUpdatedVersion(attrsAt(3000)))

	require.Equal(t, enginetypes.NewPayloadV1, c.newPayloadVersion(1500))
	require.Equal(t, enginetypes.NewPayloadV2, c.newPayloadVersion(2500))
	require.Equal(t, enginetypes.NewPayloadV3, c.newPayloadVersion(3500))

	require.Equal(t, enginetypes.GetPayloadV1, c.getPayloadVersion(1500))
	require.Equal(t, enginetypes.GetPayloadV2, c.getPayloadVersion(2500))
	require.Equal(t, enginetypes.GetPayloadV3, c.getPayloadVersion(3500))

	bedrock := NewClient(newFakeCaller(), testRollupConfig(), 0, 0)
	require.Equal(t, enginetypes.FCUV1, bedrock.forkchoiceUpdatedVersion(nil))
}

func TestClientForkchoiceUpdate(t *testing.T) {
	caller := newFakeCaller()
	id := testID
	caller.results[string(enginetypes.FCUV2)] = fcResult(enginetypes.ExecutionValid, &id)
	c := NewClient(caller, forkConfig(), 0, 0)

	fc := fcState(testHash(0xB2, 1), testHash(0xB2, 1), testHash(0xB2, 0))
	attrs := &enginetypes.PayloadAttributes{Timestamp: 2500}
	res, err := c.ForkchoiceUpdate(context.Background(), fc, attrs)
	require.NoError(t, err)
	require.Equal(t, enginetypes.ExecutionValid, res.PayloadStatus.Status)
	require.NotNil(t, res.PayloadID)
	require.Equal(t, id, *res.PayloadID)

	call := caller.lastCall(t)
	require.Equal(t, string(enginetypes.FCUV2), call.method)
	require.Equal(t, []interface{}{fc, attrs}, call.args)
	require.InDelta(t, DefaultForkchoiceTimeout.Seconds(), call.deadline.Seconds(), 1)
}

func TestClientInputErrors(t *testing.T) {
	caller := newFakeCaller()
	c := NewClient(caller, forkConfig(), 0, 0)
	ctx := context.Background()
	fc := fcState(testHash(0xB2, 1), testHash(0xB2, 1), testHash(0xB2, 0))

	caller.errs[string(enginetypes.FCUV3)] = codeError{code: int(enginetypes.InvalidForkchoiceState)}
	_, err := c.ForkchoiceUpdate(ctx, fc, nil)
	require.ErrorIs(t, err, enginetypes.InputError{Code: enginetypes.InvalidForkchoiceState})

	caller.errs[string(enginetypes.FCUV3)] = codeError{code: -32000}
	_, err = c.ForkchoiceUpdate(ctx, fc, nil)
	require.Error(t, err)
	var inputErr enginetypes.InputError
	require.False(t, errors.As(err, &inputErr))

	caller.errs[string(enginetypes.FCUV3)] = errors.New("connection refused")
	_, err = c.ForkchoiceUpdate(ctx, fc, nil)
	require.False(t, errors.As(err, &inputErr))

	caller.errs[string(enginetypes.GetPayloadV1)] = codeError{code: int(enginetypes.UnknownPayload)}
	_, err = c.GetPayload(ctx, enginetypes.PayloadInfo{ID: testID, Timestamp: 1500})
	require.ErrorIs(t, err, enginetypes.InputError{Code: enginetypes.UnknownPayload})
}

func TestClientNewPayload(t *testing.T) {
	caller := newFakeCaller()
	caller.results[string(enginetypes.NewPayloadV3)] = payloadStatus(enginetypes.ExecutionValid)
	caller.results[string(enginetypes.NewPayloadV2)] = payloadStatus(enginetypes.ExecutionSyncing)
	c := NewClient(caller, forkConfig(), 0, 0)
	ctx := context.Background()

	payload := &enginetypes.ExecutionPayload{BlockNumber: 1, Timestamp: 3500}
	_, err := c.NewPayload(ctx, payload, nil)
	require.Error(t, err)

	root := testHash(0xBE, 1)
	status, err := c.NewPayload(ctx, payload, &root)
	require.NoError(t, err)
	require.Equal(t, enginetypes.ExecutionValid, status.Status)
	call := caller.lastCall(t)
	require.Equal(t, string(enginetypes.NewPayloadV3), call.method)
	require.Equal(t, []interface{}{payload, []common.Hash{}, &root}, call.args)

	payload = &enginetypes.ExecutionPayload{BlockNumber: 1, Timestamp: 2500}
	status, err = c.NewPayload(ctx, payload, nil)
	require.NoError(t, err)
	require.Equal(t, enginetypes.ExecutionSyncing, status.Status)
	require.Equal(t, []interface{}{payload}, caller.lastCall(t).args)
}

func TestClientGetPayload(t *testing.T) {
	caller := newFakeCaller()
	payload := &enginetypes.ExecutionPayload{BlockNumber: 7, BlockHash: testHash(0xB2, 7), Timestamp: 1500}
	caller.results[string(enginetypes.GetPayloadV1)] = payload
	root := testHash(0xBE, 1)
	caller.results[string(enginetypes.GetPayloadV3)] = &enginetypes.ExecutionPayloadEnvelope{
		ParentBeaconBlockRoot: &root,
		ExecutionPayload:      &enginetypes.ExecutionPayload{BlockNumber: 8, BlockHash: testHash(0xB2, 8), Timestamp: 3500},
	}
	c := NewClient(caller, forkConfig(), 0, 0)
	ctx := context.Background()

	envelope, err := c.GetPayload(ctx, enginetypes.PayloadInfo{ID: testID, Timestamp: 1500})
	require.NoError(t, err)
	require.Nil(t, envelope.ParentBeaconBlockRoot)
	require.Equal(t, payload.BlockHash, envelope.ExecutionPayload.BlockHash)
	call := caller.lastCall(t)
	require.Equal(t, string(enginetypes.GetPayloadV1), call.method)
	require.InDelta(t, DefaultGetPayloadTimeout.Seconds(), call.deadline.Seconds(), 0.5)

	envelope, err = c.GetPayload(ctx, enginetypes.PayloadInfo{ID: testID, Timestamp: 3500})
	require.NoError(t, err)
	require.Equal(t, &root, envelope.ParentBeaconBlockRoot)
	require.Equal(t, uint64(8), uint64(envelope.ExecutionPayload.BlockNumber))
}

func TestClientBlockLookups(t *testing.T) {
	cfg := testRollupConfig()
	caller := newFakeCaller()
	c := NewClient(caller, cfg, 0, 0)
	ctx := context.Background()
	epoch := testEpoch(101, 2)
	payload := testPayload(t, cfg, 11, epoch)

	// unknown block: the engine answers null
	_, err := c.BlockByNumber(ctx, 11)
	require.ErrorIs(t, err, ethereum.NotFound)
	require.Equal(t, []interface{}{"0xb", false}, caller.lastCall(t).args)
	_, err = c.L2BlockRefByNumber(ctx, 11)
	require.ErrorIs(t, err, derive.ErrL2BlockNotFound)

	caller.results["eth_getBlockByNumber"] = &enginetypes.L2Block{
		Hash:         payload.BlockHash,
		Number:       payload.BlockNumber,
		ParentHash:   payload.ParentHash,
		Timestamp:    payload.Timestamp,
		Transactions: []common.Hash{testHash(0x77, 1)},
	}
	caller.results["eth_getRawTransactionByBlockHashAndIndex"] = payload.Transactions[0]
	ref, err := c.L2BlockRefByLabel(ctx, etherman.SafeBlock)
	require.NoError(t, err)
	require.Equal(t, []interface{}{payload.BlockHash, hexutil.Uint64(0)}, caller.lastCall(t).args)
	require.Equal(t, payload.BlockInfo(), ref.BlockInfo)
	require.Equal(t, epoch, ref.L1Origin)
	require.Equal(t, uint64(2), ref.SequenceNumber)
	require.Equal(t, []interface{}{"safe", false}, caller.calls[len(caller.calls)-2].args)

	caller.errs["eth_getBlockByNumber"] = errors.New("finalized block not found")
	_, err = c.BlockByLabel(ctx, etherman.FinalizedBlock)
	require.ErrorIs(t, err, ethereum.NotFound)
	require.Equal(t, []interface{}{"finalized", false}, caller.lastCall(t).args)
}

func TestClientGenesisRef(t *testing.T) {
	cfg := testRollupConfig()
	caller := newFakeCaller()
	caller.results["eth_getBlockByNumber"] = &enginetypes.L2Block{Hash: cfg.Genesis.L2.Hash, Timestamp: 1000}
	c := NewClient(caller, cfg, 0, 0)

	ref, err := c.L2BlockRefByNumber(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, cfg.Genesis.L1.Hash, ref.L1Origin.Hash)
	require.Equal(t, cfg.Genesis.L1.Number, ref.L1Origin.Number)
	require.Len(t, caller.calls, 1)

	caller.results["eth_getBlockByNumber"] = &enginetypes.L2Block{Hash: testHash(0xEE, 0), Timestamp: 1000}
	_, err = c.L2BlockRefByNumber(context.Background(), 0)
	require.Error(t, err)
}

func TestClientSystemConfigByNumber(t *testing.T) {
	cfg := testRollupConfig()
	cfg.Genesis.SystemConfig.UnsafeBlockSigner = common.HexToAddress("0x5157")
	caller := newFakeCaller()
	c := NewClient(caller, cfg, 0, 0)
	ctx := context.Background()

	sysCfg, err := c.SystemConfigByNumber(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, cfg.Genesis.SystemConfig, sysCfg)
	require.Empty(t, caller.calls)

	rotated := rollup.SystemConfig{
		BatcherAddr:       common.HexToAddress("0x152b"),
		Overhead:          common.BigToHash(big.NewInt(188)),
		Scalar:            common.BigToHash(big.NewInt(684000)),
		GasLimit:          25_000_000,
		UnsafeBlockSigner: cfg.Genesis.SystemConfig.UnsafeBlockSigner,
	}
	block := testL2Block(40)
	epoch := testEpoch(120, 1)
	l1Block := rollup.L1BlockRef{
		BlockInfo: rollup.BlockInfo{Hash: epoch.Hash, Number: epoch.Number, Timestamp: epoch.Timestamp},
		BaseFee:   big.NewInt(7),
	}
	l1InfoTx, err := rollup.L1InfoDepositBytes(cfg, rotated, epoch.SequenceNumber, l1Block, block.Timestamp)
	require.NoError(t, err)
	caller.results["eth_getBlockByNumber"] = &enginetypes.L2Block{
		Hash:         block.Hash,
		Number:       hexutil.Uint64(block.Number),
		ParentHash:   block.ParentHash,
		Timestamp:    hexutil.Uint64(block.Timestamp),
		GasLimit:     hexutil.Uint64(rotated.GasLimit),
		Transactions: []common.Hash{testHash(0x77, 1)},
	}
	caller.results["eth_getRawTransactionByBlockHashAndIndex"] = hexutil.Bytes(l1InfoTx)

	sysCfg, err = c.SystemConfigByNumber(ctx, 40)
	require.NoError(t, err)
	require.Equal(t, rotated, sysCfg)

	caller.results["eth_getBlockByNumber"] = nil
	_, err = c.SystemConfigByNumber(ctx, 41)
	require.ErrorIs(t, err, derive.ErrL2BlockNotFound)
}
