package engine

import (
	"errors"
	"fmt"

	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
)

var (
	// ErrEngineSyncing is returned when the engine cannot build while it syncs from its peers.
	ErrEngineSyncing = errors.New("engine is syncing")
	// ErrPayloadIDNotReturned is returned when a forkchoice update with attributes returns no payload id.
	ErrPayloadIDNotReturned = errors.New("payload id not returned by forkchoice update")
	// ErrNotBuilding is returned when confirming a payload while no block is being built.
	ErrNotBuilding = errors.New("no block is being built")
	// ErrAlreadyBuilding is returned when starting a payload before the previous one was confirmed or cancelled.
	ErrAlreadyBuilding = errors.New("a block is already being built")
)

// ForkchoiceUpdateError is returned when the engine rejects a forkchoice state.
type ForkchoiceUpdateError struct {
	Status enginetypes.PayloadStatusV1
}

func (e *ForkchoiceUpdateError) Error() string {
	return fmt.Sprintf("could not accept new forkchoice: %s", e.Status)
}

// InvalidExecutionPayloadError is returned when engine_newPayload rejects a payload.
type InvalidExecutionPayloadError struct {
	Payload *enginetypes.ExecutionPayload
	Status  enginetypes.PayloadStatusV1
}

func (e *InvalidExecutionPayloadError) Error() string {
	return fmt.Sprintf("execution payload %s is invalid: %s", e.Payload, e.Status)
}

// InvalidPayloadAttributesError is returned when the engine refuses to build on the given attributes.
type InvalidPayloadAttributesError struct {
	Timestamp uint64
	Err       error
}

func (e *InvalidPayloadAttributesError) Error() string {
	return fmt.Sprintf("payload attributes at %d are not valid: %v", e.Timestamp, e.Err)
}

func (e *InvalidPayloadAttributesError) Unwrap() error {
	return e.Err
}

func isInvalid(status enginetypes.ExecutePayloadStatus) bool {
	return status == enginetypes.ExecutionInvalid || status == enginetypes.ExecutionInvalidBlockHash
}
