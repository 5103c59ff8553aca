package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/0xPolygon/cdk-opnode/driver"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/rpc/types"
	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ClientInterface is the interface that defines the implementation of all the endpoints
type ClientInterface interface {
	SyncStatus() (*driver.SyncStatus, error)
	RollupConfig() (*rollup.Config, error)
	Version() (*types.VersionResponse, error)
	SafeHeadAtL1Block(l1BlockNum uint64) (*types.SafeHeadResponse, error)
	PostUnsafePayload(envelope *enginetypes.ExecutionPayloadEnvelope) error
}

// Client talks to the RPC server of a rollup node
type Client struct {
	url string
}

// NewClient returns a client ready to be used
func NewClient(url string) *Client {
	return &Client{
		url: url,
	}
}

func (c *Client) call(method string, result interface{}, params ...interface{}) error {
	response, err := rpc.JSONRPCCall(c.url, method, params...)
	if err != nil {
		return err
	}
	if response.Error != nil {
		return fmt.Errorf("%v %v", response.Error.Code, response.Error.Message)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(response.Result, result)
}

// SyncStatus returns nil without error while the node is EL syncing.
func (c *Client) SyncStatus() (*driver.SyncStatus, error) {
	var result *driver.SyncStatus
	if err := c.call("optimism_syncStatus", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) RollupConfig() (*rollup.Config, error) {
	var result rollup.Config
	return &result, c.call("optimism_rollupConfig", &result)
}

func (c *Client) Version() (*types.VersionResponse, error) {
	var result types.VersionResponse
	return &result, c.call("optimism_version", &result)
}

func (c *Client) SafeHeadAtL1Block(l1BlockNum uint64) (*types.SafeHeadResponse, error) {
	var result types.SafeHeadResponse
	return &result, c.call("optimism_safeHeadAtL1Block", &result, hexutil.Uint64(l1BlockNum))
}

func (c *Client) PostUnsafePayload(envelope *enginetypes.ExecutionPayloadEnvelope) error {
	return c.call("admin_postUnsafePayload", nil, envelope)
}
