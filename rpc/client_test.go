package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)

		resp, ok := responses[req.Method]
		if !ok {
			http.Error(w, "method not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSyncStatus(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"optimism_syncStatus": `{"jsonrpc":"2.0","id":1,"result":{"unsafeL2":{"hash":"0x00000000000000000000000000000000000000000000000000000000000000aa","number":12,"parentHash":"0x0000000000000000000000000000000000000000000000000000000000000000","timestamp":1024,"l1origin":{"number":3,"hash":"0x0000000000000000000000000000000000000000000000000000000000000000","timestamp":0,"sequenceNumber":1},"sequenceNumber":1}}}`,
	})
	status, err := NewClient(srv.URL).SyncStatus()
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Equal(t, uint64(12), status.UnsafeL2.Number)
	require.Equal(t, common.HexToHash("0xaa"), status.UnsafeL2.Hash)
	require.Equal(t, uint64(3), status.UnsafeL2.L1Origin.Number)
}

func TestClientSyncStatusWhileSyncing(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"optimism_syncStatus": `{"jsonrpc":"2.0","id":1,"result":null}`,
	})
	status, err := NewClient(srv.URL).SyncStatus()
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestClientSafeHeadAtL1Block(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"optimism_safeHeadAtL1Block": `{"jsonrpc":"2.0","id":1,"result":{"l1Block":{"hash":"0x0000000000000000000000000000000000000000000000000000000000000001","number":100},"safeHead":{"hash":"0x0000000000000000000000000000000000000000000000000000000000000002","number":40}}}`,
	})
	res, err := NewClient(srv.URL).SafeHeadAtL1Block(100)
	require.NoError(t, err)
	require.Equal(t, uint64(100), res.L1Block.Number)
	require.Equal(t, uint64(40), res.SafeHead.Number)
	require.Equal(t, common.HexToHash("0x02"), res.SafeHead.Hash)
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"admin_postUnsafePayload": `{"jsonrpc":"2.0","id":1,"result":null,"error":{"code":-32000,"message":"queue full"}}`,
	})
	c := NewClient(srv.URL)
	err := c.PostUnsafePayload(&enginetypes.ExecutionPayloadEnvelope{ExecutionPayload: &enginetypes.ExecutionPayload{}})
	require.EqualError(t, err, "-32000 queue full")

	_, err = c.Version()
	require.EqualError(t, err, "invalid status code, expected: 200, found: 404")
}
