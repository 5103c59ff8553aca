package derive

import (
	"bytes"
	"math/big"
	"math/rand"
	"testing"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
})

func testHash(prefix byte, n uint64) common.Hash {
	var h common.Hash
	h[0] = prefix
	new(big.Int).SetUint64(n).FillBytes(h[24:])
	return h
}

// signedTestTxs returns one tx of every kind a span batch can carry.
func signedTestTxs(t *testing.T, chainID *big.Int) []hexutil.Bytes {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	london := types.NewLondonSigner(chainID)

	signed := []*types.Transaction{}
	sign := func(signer types.Signer, data types.TxData) {
		tx, err := types.SignNewTx(key, signer, data)
		require.NoError(t, err)
		signed = append(signed, tx)
	}
	sign(london, &types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(7), Gas: 21_000, To: &to, Value: big.NewInt(1)})
	sign(types.HomesteadSigner{}, &types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(7), Gas: 21_000, To: &to, Value: big.NewInt(2)})
	sign(london, &types.LegacyTx{Nonce: 2, GasPrice: big.NewInt(7), Gas: 90_000, Data: []byte{0x60, 0x00, 0x60, 0x00}})
	sign(london, &types.AccessListTx{
		ChainID: chainID, Nonce: 3, GasPrice: big.NewInt(9), Gas: 50_000, To: &to, Value: big.NewInt(3),
		Data:       []byte{0xde, 0xad},
		AccessList: types.AccessList{{Address: to, StorageKeys: []common.Hash{testHash(1, 1)}}},
	})
	sign(london, &types.DynamicFeeTx{
		ChainID: chainID, Nonce: 4, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(100), Gas: 60_000,
		To: &to, Value: big.NewInt(4), Data: []byte{0xbe, 0xef},
	})
	sign(london, &types.DynamicFeeTx{
		ChainID: chainID, Nonce: 5, GasTipCap: big.NewInt(2), GasFeeCap: big.NewInt(200), Gas: 120_000,
		Data: []byte{0x60, 0x01},
	})

	out := make([]hexutil.Bytes, len(signed))
	for i, tx := range signed {
		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		out[i] = raw
	}
	return out
}

func TestSpanBatchBitlists(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []uint64{0, 1, 7, 8, 9, 1000} {
		flags := make([]bool, n)
		bits := new(big.Int)
		for i := range flags {
			flags[i] = rng.Intn(2) == 1
			if flags[i] {
				bits.SetBit(bits, i, 1)
			}
		}

		var buf bytes.Buffer
		require.NoError(t, encodeSpanBatchBits(&buf, n, bits))
		require.Len(t, buf.Bytes(), int((n+7)/8), "n=%d", n)

		decoded, err := decodeSpanBatchBits(bytes.NewReader(buf.Bytes()), n)
		require.NoError(t, err)
		for i, f := range flags {
			require.Equal(t, f, decoded.Bit(i) == 1, "n=%d bit %d", n, i)
		}
	}
}

func TestSpanBatchBitlistErrors(t *testing.T) {
	_, err := decodeSpanBatchBits(bytes.NewReader([]byte{0xFF}), 3)
	require.ErrorIs(t, err, ErrInvalidBitlist)

	_, err = decodeSpanBatchBits(bytes.NewReader(nil), 8*(MaxSpanBatchElementCount+1))
	require.ErrorIs(t, err, ErrTooBigSpanBatchSize)

	_, err = decodeSpanBatchBits(bytes.NewReader([]byte{0x01}), 16)
	require.Error(t, err)

	var buf bytes.Buffer
	require.ErrorIs(t, encodeSpanBatchBits(&buf, 2, big.NewInt(4)), ErrInvalidBitlist)
}

func testSingularBatches(t *testing.T, cfg *rollup.Config) []*SingularBatch {
	txs := signedTestTxs(t, cfg.L2ChainID)
	epochs := []uint64{5, 5, 6, 7, 7}
	txsPerBlock := [][]hexutil.Bytes{txs[:2], nil, txs[2:3], txs[3:], nil}
	out := make([]*SingularBatch, len(epochs))
	for i, e := range epochs {
		out[i] = &SingularBatch{
			ParentHash:   testHash(0xB2, uint64(10+i)),
			EpochNum:     e,
			EpochHash:    testHash(0xA1, e),
			Timestamp:    cfg.Genesis.L2Time + 20 + uint64(i)*cfg.BlockTime,
			Transactions: txsPerBlock[i],
		}
	}
	return out
}

func TestSpanBatchRoundTrip(t *testing.T) {
	cfg := testRollupConfig()
	sb := NewSpanBatch(cfg.Genesis.L2Time, cfg.L2ChainID)
	for _, b := range testSingularBatches(t, cfg) {
		sb.AppendSingularBatch(b)
	}
	require.Equal(t, testHash(0xB2, 10).Bytes()[:20], sb.ParentCheck[:])
	require.Equal(t, testHash(0xA1, 7).Bytes()[:20], sb.L1OriginCheck[:])

	raw, err := sb.ToRawSpanBatch(1, cfg.Genesis.L2Time, cfg.L2ChainID)
	require.NoError(t, err)
	enc, err := raw.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte(SpanBatchType), enc[0])

	decoded, err := DecodeBatch(enc, 42, cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(42), decoded.L1InclusionBlock)
	got, ok := decoded.Data.(*SpanBatch)
	require.True(t, ok)

	sb.OriginChanged = true
	if diff := cmp.Diff(sb, got, bigIntComparer, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("span batch mismatch (-want +got):\n%s", diff)
	}

	raw2, err := got.ToRawSpanBatch(1, cfg.Genesis.L2Time, cfg.L2ChainID)
	require.NoError(t, err)
	enc2, err := raw2.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, enc, enc2)
}

func TestSpanBatchDerivedFields(t *testing.T) {
	cfg := testRollupConfig()
	sb := NewSpanBatch(cfg.Genesis.L2Time, cfg.L2ChainID)
	for _, b := range testSingularBatches(t, cfg) {
		sb.AppendSingularBatch(b)
	}
	raw, err := sb.ToRawSpanBatch(0, cfg.Genesis.L2Time, cfg.L2ChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(20), raw.relTimestamp)
	require.Equal(t, uint64(7), raw.l1OriginNum)
	require.Equal(t, uint64(5), raw.blockCount)
	require.Equal(t, []uint64{2, 0, 1, 3, 0}, raw.blockTxCounts)
	// origin changes at blocks 2 and 3
	require.Equal(t, int64(0b01100), raw.originBits.Int64())
	// the legacy contract creation and the last dynamic fee tx
	require.Equal(t, int64(0b100100), raw.txs.contractCreationBits.Int64())
	require.Equal(t, uint64(3), raw.txs.totalLegacyTxCount)
	// first and third legacy txs are protected
	require.Equal(t, int64(0b101), raw.txs.protectedBits.Int64())

	derived, err := raw.Derive(cfg.BlockTime, cfg.Genesis.L2Time, cfg.L2ChainID)
	require.NoError(t, err)
	require.Equal(t, uint64(1020), derived.GetTimestamp())
	require.Equal(t, uint64(1028), derived.GetBlockTimestamp(4))
	require.Equal(t, uint64(5), derived.GetStartEpochNum())
	require.False(t, derived.OriginChanged)
	for i, want := range []uint64{5, 5, 6, 7, 7} {
		require.Equal(t, want, derived.GetBlockEpochNum(i))
	}
	require.True(t, derived.CheckParentHash(testHash(0xB2, 10)))
	require.False(t, derived.CheckParentHash(testHash(0xB2, 11)))
	require.True(t, derived.CheckOriginHash(testHash(0xA1, 7)))
}

func TestSpanBatchEncodeRejects(t *testing.T) {
	cfg := testRollupConfig()

	t.Run("foreign chain id", func(t *testing.T) {
		sb := NewSpanBatch(cfg.Genesis.L2Time, cfg.L2ChainID)
		sb.AppendSingularBatch(&SingularBatch{
			Timestamp:    cfg.Genesis.L2Time + 2,
			Transactions: signedTestTxs(t, big.NewInt(5))[:1],
		})
		_, err := sb.ToRawSpanBatch(0, cfg.Genesis.L2Time, cfg.L2ChainID)
		require.ErrorIs(t, err, ErrChainIDMismatch)
	})
	t.Run("deposit tx", func(t *testing.T) {
		dep, err := (&rollup.DepositTx{Value: big.NewInt(0)}).MarshalBinary()
		require.NoError(t, err)
		sb := NewSpanBatch(cfg.Genesis.L2Time, cfg.L2ChainID)
		sb.AppendSingularBatch(&SingularBatch{Timestamp: cfg.Genesis.L2Time + 2, Transactions: []hexutil.Bytes{dep}})
		_, err = sb.ToRawSpanBatch(0, cfg.Genesis.L2Time, cfg.L2ChainID)
		require.ErrorIs(t, err, ErrTxTypeNotSupported)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := NewSpanBatch(0, cfg.L2ChainID).ToRawSpanBatch(0, 0, cfg.L2ChainID)
		require.ErrorIs(t, err, ErrEmptySpanBatch)
	})
}

func spanBatchPrefixBytes(blockCount uint64) []byte {
	var buf bytes.Buffer
	_ = writeUvarint(&buf, 2)
	_ = writeUvarint(&buf, 9)
	buf.Write(make([]byte, 40))
	_ = writeUvarint(&buf, blockCount)
	return buf.Bytes()
}

func TestUnmarshalRawSpanBatchErrors(t *testing.T) {
	_, err := UnmarshalRawSpanBatch(spanBatchPrefixBytes(0))
	require.ErrorIs(t, err, ErrEmptySpanBatch)

	_, err = UnmarshalRawSpanBatch(spanBatchPrefixBytes(MaxSpanBatchElementCount + 1))
	require.ErrorIs(t, err, ErrTooBigSpanBatchSize)

	_, err = UnmarshalRawSpanBatch([]byte{0x80})
	require.Error(t, err)

	// one block without transactions: origin bits, tx count, then empty tx columns
	valid := append(spanBatchPrefixBytes(1), 0x00, 0x00)
	raw, err := UnmarshalRawSpanBatch(valid)
	require.NoError(t, err)
	require.Equal(t, uint64(9), raw.l1OriginNum)

	_, err = UnmarshalRawSpanBatch(append(valid, 0x00))
	require.Error(t, err)

	oversized := append(append([]byte{}, valid...), make([]byte, MaxSpanBatchSize)...)
	_, err = UnmarshalRawSpanBatch(oversized)
	require.ErrorIs(t, err, ErrSpanBatchTooLarge)
	_, err = DecodeBatch(append([]byte{SpanBatchType}, oversized...), 1, testRollupConfig())
	require.ErrorIs(t, err, ErrSpanBatchTooLarge)
}
