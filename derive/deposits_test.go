package derive

import (
	"math/big"
	"testing"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

var testDepositContract = common.HexToAddress("0xdeadbeef00000000000000000000000000000001")

func testDepositLogs(t *testing.T, blockHash common.Hash) ([]types.Log, []*rollup.DepositTx) {
	t.Helper()
	to := common.HexToAddress("0x2222")
	deposits := []*rollup.DepositTx{
		{From: common.HexToAddress("0x1111"), To: &to, Mint: big.NewInt(1000), Value: big.NewInt(10), Gas: 50_000, Data: []byte{0xca, 0xfe}},
		{From: common.HexToAddress("0x3333"), Value: big.NewInt(5), Gas: 1_000_000, Data: []byte{0x60, 0x80}},
	}
	logs := make([]types.Log, 0, len(deposits))
	for i, dep := range deposits {
		l, err := MarshalDepositLogEvent(testDepositContract, dep)
		require.NoError(t, err)
		l.BlockHash = blockHash
		l.Index = uint(i * 3)
		dep.SourceHash = rollup.DepositSourceHash(rollup.UserDepositSourceDomain, blockHash, uint64(l.Index))
		logs = append(logs, *l)
	}
	return logs, deposits
}

func TestDepositLogRoundTrip(t *testing.T) {
	logs, deposits := testDepositLogs(t, testHash(0xA1, 100))
	for i := range logs {
		dep, err := UnmarshalDepositLogEvent(&logs[i])
		require.NoError(t, err)
		require.Equal(t, deposits[i], dep)
	}
}

func TestUserDeposits(t *testing.T) {
	logs, deposits := testDepositLogs(t, testHash(0xA1, 100))
	unrelated := types.Log{Address: common.HexToAddress("0x9999"), Topics: []common.Hash{DepositEventABIHash}}
	removed := logs[0]
	removed.Removed = true
	all := append([]types.Log{unrelated, removed}, logs...)

	txs, err := UserDeposits(all, testDepositContract)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for i, dep := range deposits {
		want, err := dep.MarshalBinary()
		require.NoError(t, err)
		require.Equal(t, hexutil.Bytes(want), txs[i])
	}
}

func TestUserDepositsMalformed(t *testing.T) {
	logs, _ := testDepositLogs(t, testHash(0xA1, 100))
	badVersion := logs[0]
	badVersion.Topics = append([]common.Hash{}, logs[0].Topics...)
	badVersion.Topics[3] = common.BigToHash(big.NewInt(1))
	short := logs[1]
	short.Topics = short.Topics[:3]

	txs, err := UserDeposits([]types.Log{badVersion, short, logs[1]}, testDepositContract)
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)
	require.Len(t, txs, 1)
}

func TestUnmarshalDepositLogEventErrors(t *testing.T) {
	logs, _ := testDepositLogs(t, testHash(0xA1, 100))

	badCreation := logs[0]
	opaque := make([]byte, 73)
	opaque[72] = 2
	data, err := opaqueDataArgs.Pack(opaque)
	require.NoError(t, err)
	badCreation.Data = data
	_, err = UnmarshalDepositLogEvent(&badCreation)
	require.ErrorContains(t, err, "is_creation")

	tooShort := logs[0]
	data, err = opaqueDataArgs.Pack(make([]byte, 72))
	require.NoError(t, err)
	tooShort.Data = data
	_, err = UnmarshalDepositLogEvent(&tooShort)
	require.ErrorContains(t, err, "too short")

	wrongTopic := logs[0]
	wrongTopic.Topics = append([]common.Hash{testHash(0xEE, 0)}, logs[0].Topics[1:]...)
	_, err = UnmarshalDepositLogEvent(&wrongTopic)
	require.ErrorContains(t, err, "selector")
}
