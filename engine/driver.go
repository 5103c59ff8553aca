package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xPolygon/cdk-opnode/derive"
	enginetypes "github.com/0xPolygon/cdk-opnode/engine/types"
	"github.com/0xPolygon/cdk-opnode/etherman"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/crypto"
)

// Driver applies derived attributes and unsafe payloads to the execution
// engine and keeps the forkchoice in line with them. It is not safe for
// concurrent use and never retries: errors carry a derive severity and the
// caller decides.
type Driver struct {
	cfg *rollup.Config
	api API
	log *log.Logger

	state State
}

// NewDriver starts from the finalized head. With elSync the engine may sync
// from its peers until the first unsafe payload proves otherwise.
func NewDriver(cfg *rollup.Config, api API, finalizedHead rollup.BlockInfo, finalizedEpoch rollup.Epoch,
	elSync bool) *Driver {
	status := SyncStatusCL
	if elSync {
		status = SyncStatusWillStartEL
	}
	return &Driver{
		cfg: cfg,
		api: api,
		log: log.WithFields("module", "engine-driver"),
		state: State{
			UnsafeHead:     finalizedHead,
			UnsafeEpoch:    finalizedEpoch,
			SafeHead:       finalizedHead,
			SafeEpoch:      finalizedEpoch,
			FinalizedHead:  finalizedHead,
			FinalizedEpoch: finalizedEpoch,
			SyncStatus:     status,
		},
	}
}

// State returns a copy of the current state.
func (d *Driver) State() State {
	s := d.state
	if s.Building != nil {
		b := *s.Building
		s.Building = &b
	}
	return s
}

func (d *Driver) IsEngineSyncing() bool {
	return d.state.SyncStatus.IsEngineSyncing()
}

// HandleAttributes makes attrs the new safe head. A block the engine already
// has at that height is adopted when it matches; otherwise the block is built.
func (d *Driver) HandleAttributes(ctx context.Context, attrs *enginetypes.PayloadAttributes) error {
	if d.IsEngineSyncing() {
		return derive.NewTemporaryError(fmt.Errorf("%w: cannot consolidate attributes", ErrEngineSyncing))
	}
	block, err := d.blockAt(ctx, uint64(attrs.Timestamp))
	if err != nil {
		return err
	}
	if block == nil {
		return d.processAttributes(ctx, d.state, attrs)
	}
	if d.shouldSkip(block, attrs) {
		return d.skipAttributes(ctx, block, attrs)
	}
	d.log.Warnw("existing L2 block does not match attributes, rebuilding", "block", block.BlockInfo().String(),
		"timestamp", uint64(attrs.Timestamp), "unsafe", d.state.UnsafeHead.String())
	return d.processAttributes(ctx, d.state.withUnsafeHead(d.state.SafeHead, d.state.SafeEpoch), attrs)
}

// blockAt returns the engine block at the height of timestamp, or nil if the engine has none.
func (d *Driver) blockAt(ctx context.Context, timestamp uint64) (*enginetypes.L2Block, error) {
	finalized := d.state.FinalizedHead
	if timestamp <= finalized.Timestamp {
		return nil, derive.NewResetError(fmt.Errorf("attributes at %d are not after finalized head %s at %d",
			timestamp, finalized, finalized.Timestamp))
	}
	number := finalized.Number + (timestamp-finalized.Timestamp)/d.cfg.BlockTime
	block, err := d.api.BlockByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, derive.NewTemporaryError(fmt.Errorf("failed to fetch L2 block %d: %w", number, err))
	}
	return block, nil
}

func (d *Driver) shouldSkip(block *enginetypes.L2Block, attrs *enginetypes.PayloadAttributes) bool {
	if block.ParentHash != d.state.SafeHead.Hash || uint64(block.Timestamp) != uint64(attrs.Timestamp) {
		return false
	}
	if block.MixHash != attrs.PrevRandao || block.Miner != attrs.SuggestedFeeRecipient {
		return false
	}
	if attrs.GasLimit == nil || uint64(*attrs.GasLimit) != uint64(block.GasLimit) {
		return false
	}
	if len(block.Transactions) != len(attrs.Transactions) {
		return false
	}
	for i, raw := range attrs.Transactions {
		if crypto.Keccak256Hash(raw) != block.Transactions[i] {
			return false
		}
	}
	return true
}

func (d *Driver) skipAttributes(ctx context.Context, block *enginetypes.L2Block, attrs *enginetypes.PayloadAttributes) error {
	head := block.BlockInfo()
	next, err := d.updateForkchoice(ctx, d.state.withSafeHead(head, attrs.Epoch, false))
	if err != nil {
		return err
	}
	d.log.Debugw("consolidated existing block", "safe", head.String(), "epoch", attrs.Epoch.String())
	d.state = next
	return nil
}

func (d *Driver) processAttributes(ctx context.Context, base State, attrs *enginetypes.PayloadAttributes) error {
	fc := base.withUnsafeHead(base.SafeHead, base.SafeEpoch).forkchoice()
	id, err := d.startBuild(ctx, fc, attrs)
	if err != nil {
		return err
	}
	envelope, err := d.getPayload(ctx, enginetypes.PayloadInfo{ID: id, Timestamp: uint64(attrs.Timestamp)})
	if err != nil {
		return err
	}
	payload := envelope.ExecutionPayload
	if err := d.pushPayload(ctx, base, envelope); err != nil {
		var invalid *InvalidExecutionPayloadError
		if errors.As(err, &invalid) {
			return derive.NewResetError(err)
		}
		return err
	}
	next, err := d.updateForkchoice(ctx, base.withSafeHead(payload.BlockInfo(), attrs.Epoch, true))
	if err != nil {
		return err
	}
	d.log.Infow("built safe block", "block", payload.String(), "epoch", attrs.Epoch.String(),
		"txs", len(payload.Transactions))
	d.state = next
	return nil
}

// startBuild asks the engine to build on fc with attrs and returns the payload id.
func (d *Driver) startBuild(ctx context.Context, fc *enginetypes.ForkchoiceState,
	attrs *enginetypes.PayloadAttributes) (enginetypes.PayloadID, error) {
	res, err := d.api.ForkchoiceUpdate(ctx, fc, attrs)
	if err != nil {
		var inputErr enginetypes.InputError
		if errors.As(err, &inputErr) {
			switch inputErr.Code {
			case enginetypes.InvalidPayloadAttributes:
				return enginetypes.PayloadID{}, derive.NewResetError(&InvalidPayloadAttributesError{
					Timestamp: uint64(attrs.Timestamp),
					Err:       inputErr.Unwrap(),
				})
			default:
				return enginetypes.PayloadID{}, derive.NewResetError(
					fmt.Errorf("pre-block-creation forkchoice update was inconsistent with engine: %w", err))
			}
		}
		return enginetypes.PayloadID{}, derive.NewTemporaryError(fmt.Errorf("failed to start building block: %w", err))
	}
	switch status := res.PayloadStatus.Status; {
	case status == enginetypes.ExecutionValid:
	case isInvalid(status):
		return enginetypes.PayloadID{}, derive.NewResetError(&InvalidPayloadAttributesError{
			Timestamp: uint64(attrs.Timestamp),
			Err:       &ForkchoiceUpdateError{Status: res.PayloadStatus},
		})
	default:
		return enginetypes.PayloadID{}, derive.NewTemporaryError(fmt.Errorf("%w: forkchoice update returned %s",
			ErrEngineSyncing, res.PayloadStatus))
	}
	if res.PayloadID == nil {
		return enginetypes.PayloadID{}, derive.NewTemporaryError(ErrPayloadIDNotReturned)
	}
	return *res.PayloadID, nil
}

func (d *Driver) getPayload(ctx context.Context, info enginetypes.PayloadInfo) (*enginetypes.ExecutionPayloadEnvelope, error) {
	envelope, err := d.api.GetPayload(ctx, info)
	if err != nil {
		if errors.Is(err, enginetypes.InputError{Code: enginetypes.UnknownPayload}) {
			return nil, derive.NewResetError(fmt.Errorf("engine lost payload %s: %w", info.ID, err))
		}
		return nil, derive.NewTemporaryError(fmt.Errorf("failed to get payload %s: %w", info.ID, err))
	}
	if err := sanityCheckPayload(envelope.ExecutionPayload); err != nil {
		return nil, derive.NewResetError(err)
	}
	return envelope, nil
}

// sanityCheckPayload checks that the payload starts with its deposits.
func sanityCheckPayload(payload *enginetypes.ExecutionPayload) error {
	if len(payload.Transactions) == 0 {
		return fmt.Errorf("payload %s has no transactions", payload)
	}
	if len(payload.Transactions[0]) == 0 || payload.Transactions[0][0] != rollup.DepositTxType {
		return fmt.Errorf("first transaction of payload %s is not a deposit", payload)
	}
	deposits := true
	for i, tx := range payload.Transactions {
		if len(tx) == 0 {
			return fmt.Errorf("empty transaction %d in payload %s", i, payload)
		}
		isDeposit := tx[0] == rollup.DepositTxType
		if isDeposit && !deposits {
			return fmt.Errorf("deposit transaction %d of payload %s follows a regular transaction", i, payload)
		}
		deposits = isDeposit
	}
	return nil
}

// pushPayload executes the payload. SYNCING and ACCEPTED are only acceptable
// while the engine syncs from its peers. The returned error is unclassified
// when the payload is invalid.
func (d *Driver) pushPayload(ctx context.Context, s State, envelope *enginetypes.ExecutionPayloadEnvelope) error {
	payload := envelope.ExecutionPayload
	status, err := d.api.NewPayload(ctx, payload, envelope.ParentBeaconBlockRoot)
	if err != nil {
		return derive.NewTemporaryError(fmt.Errorf("failed to insert payload %s: %w", payload, err))
	}
	switch {
	case status.Status == enginetypes.ExecutionValid:
		return nil
	case isInvalid(status.Status):
		return &InvalidExecutionPayloadError{Payload: payload, Status: *status}
	case s.SyncStatus.IsEngineSyncing():
		return nil
	default:
		return derive.NewTemporaryError(fmt.Errorf("%w: new payload %s returned %s", ErrEngineSyncing, payload, status))
	}
}

// updateForkchoice points the engine at next and returns it, possibly with a
// new sync status, once the engine accepted it.
func (d *Driver) updateForkchoice(ctx context.Context, next State) (State, error) {
	if next.UnsafeHead.Number < next.FinalizedHead.Number {
		return next, derive.NewCriticalError(fmt.Errorf("unsafe head %s is behind finalized head %s",
			next.UnsafeHead, next.FinalizedHead))
	}
	fc := next.forkchoice()
	res, err := d.api.ForkchoiceUpdate(ctx, fc, nil)
	if err != nil {
		if errors.Is(err, enginetypes.InputError{Code: enginetypes.InvalidForkchoiceState}) {
			return next, derive.NewResetError(fmt.Errorf("forkchoice update was inconsistent with engine: %w", err))
		}
		return next, derive.NewTemporaryError(fmt.Errorf("failed to sync forkchoice with engine: %w", err))
	}
	switch status := res.PayloadStatus.Status; {
	case status == enginetypes.ExecutionValid:
		if next.SyncStatus == SyncStatusStartedEL {
			d.log.Infow("engine reported a valid head, EL sync is ending", "head", next.UnsafeHead.String())
			next = next.withSyncStatus(SyncStatusFinishedELNotFinalized)
		}
	case isInvalid(status):
		return next, derive.NewResetError(&ForkchoiceUpdateError{Status: res.PayloadStatus})
	case !next.SyncStatus.IsEngineSyncing():
		return next, derive.NewTemporaryError(fmt.Errorf("%w: forkchoice update returned %s", ErrEngineSyncing,
			res.PayloadStatus))
	}
	return next, nil
}

// HandleUnsafePayload inserts a payload received from the network and makes
// it the unsafe head.
func (d *Driver) HandleUnsafePayload(ctx context.Context, envelope *enginetypes.ExecutionPayloadEnvelope) error {
	payload := envelope.ExecutionPayload
	base := d.state
	if base.SyncStatus == SyncStatusWillStartEL {
		status, err := d.probeELSync(ctx)
		if err != nil {
			return err
		}
		base = base.withSyncStatus(status)
		if status == SyncStatusFinishedEL {
			d.log.Infow("engine already has a finalized chain, skipping EL sync")
			d.state = base
			return nil
		}
		d.log.Infow("starting EL sync", "target", payload.String())
	}

	ref, err := payload.ToL2BlockRef(d.cfg)
	if err != nil {
		d.state = base
		return derive.NewTemporaryError(fmt.Errorf("dropping unsafe payload %s: %w", payload, err))
	}
	if err := d.pushPayload(ctx, base, envelope); err != nil {
		d.state = base
		var invalid *InvalidExecutionPayloadError
		if errors.As(err, &invalid) {
			return derive.NewTemporaryError(err)
		}
		return err
	}

	finishing := base.SyncStatus == SyncStatusFinishedELNotFinalized
	next := base.withUnsafeHead(ref.BlockInfo, ref.L1Origin)
	if finishing {
		next = next.withSafeHead(ref.BlockInfo, ref.L1Origin, false).withFinalizedHead(ref.BlockInfo, ref.L1Origin)
	}
	next, err = d.updateForkchoice(ctx, next)
	if err != nil {
		d.state = base
		return err
	}
	if finishing {
		d.log.Infow("finished EL sync", "head", ref.BlockInfo.String())
		next = next.withSyncStatus(SyncStatusFinishedEL)
	}
	d.state = next
	return nil
}

// probeELSync decides whether EL sync is needed: it is when the engine has no
// finalized block beyond the genesis.
func (d *Driver) probeELSync(ctx context.Context) (SyncStatus, error) {
	block, err := d.api.BlockByLabel(ctx, etherman.FinalizedBlock)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return SyncStatusStartedEL, nil
		}
		return SyncStatusWillStartEL, derive.NewTemporaryError(fmt.Errorf("failed to fetch finalized L2 block: %w", err))
	}
	genesis := d.cfg.Genesis.L2
	if genesis.Number != 0 && block.Hash == genesis.Hash {
		return SyncStatusStartedEL, nil
	}
	return SyncStatusFinishedEL, nil
}

// UpdateFinalized records a new finalized head. The engine learns it on the next forkchoice update.
func (d *Driver) UpdateFinalized(head rollup.BlockInfo, epoch rollup.Epoch) {
	d.state = d.state.withFinalizedHead(head, epoch)
}

// Reorg rewinds the unsafe and safe heads to the finalized head.
func (d *Driver) Reorg() {
	d.log.Warnw("rewinding to finalized head", "finalized", d.state.FinalizedHead.String(),
		"unsafe", d.state.UnsafeHead.String(), "safe", d.state.SafeHead.String())
	d.state = d.state.reorged()
}

// EngineReady probes the engine with a forkchoice update without attributes.
func (d *Driver) EngineReady(ctx context.Context) bool {
	_, err := d.api.ForkchoiceUpdate(ctx, d.state.forkchoice(), nil)
	if err != nil {
		d.log.Debugw("engine not ready", "error", err)
		return false
	}
	return true
}

// StartPayload starts building a block on parent for the sequencer.
func (d *Driver) StartPayload(ctx context.Context, parent rollup.L2BlockRef, attrs *enginetypes.PayloadAttributes,
	isSafe bool) error {
	if d.IsEngineSyncing() {
		return derive.NewTemporaryError(fmt.Errorf("%w: cannot build block on %s", ErrEngineSyncing, parent.BlockInfo))
	}
	if b := d.state.Building; b != nil {
		return derive.NewResetError(fmt.Errorf("%w: payload %s on %s", ErrAlreadyBuilding, b.Info.ID, b.Onto.BlockInfo))
	}
	fc := &enginetypes.ForkchoiceState{
		HeadBlockHash:      parent.Hash,
		SafeBlockHash:      d.state.SafeHead.Hash,
		FinalizedBlockHash: d.state.FinalizedHead.Hash,
	}
	id, err := d.startBuild(ctx, fc, attrs)
	if err != nil {
		return err
	}
	d.state = d.state.withBuilding(&BuildingState{
		Onto:       parent,
		Info:       enginetypes.PayloadInfo{ID: id, Timestamp: uint64(attrs.Timestamp)},
		IsSafe:     isSafe,
		Attributes: attrs,
	})
	return nil
}

// ConfirmPayload seals the block being built, inserts it and makes it the
// unsafe head, and the safe head too when it was built from derived attributes.
func (d *Driver) ConfirmPayload(ctx context.Context) (*enginetypes.ExecutionPayloadEnvelope, error) {
	b := d.state.Building
	if b == nil {
		return nil, derive.NewCriticalError(ErrNotBuilding)
	}
	envelope, err := d.getPayload(ctx, b.Info)
	if err != nil {
		return nil, err
	}
	payload := envelope.ExecutionPayload
	if err := d.pushPayload(ctx, d.state, envelope); err != nil {
		var invalid *InvalidExecutionPayloadError
		if errors.As(err, &invalid) {
			return nil, derive.NewResetError(err)
		}
		return nil, err
	}
	head := payload.BlockInfo()
	epoch := b.Attributes.Epoch
	next := d.state.withUnsafeHead(head, epoch)
	if b.IsSafe {
		next = next.withSafeHead(head, epoch, false)
	}
	next, err = d.updateForkchoice(ctx, next)
	if err != nil {
		return nil, err
	}
	d.state = next.withBuilding(nil)
	d.log.Infow("sealed block", "block", payload.String(), "parent", b.Onto.BlockInfo.String(),
		"epoch", epoch.String(), "txs", len(payload.Transactions), "safe", b.IsSafe)
	return envelope, nil
}

// CancelPayload stops building. Unless force is set a failure to reach the
// engine keeps the building state.
func (d *Driver) CancelPayload(ctx context.Context, force bool) error {
	b := d.state.Building
	if b == nil {
		return nil
	}
	d.log.Warnw("cancelling block building", "payload_id", b.Info.ID, "onto", b.Onto.BlockInfo.String())
	if _, err := d.api.GetPayload(ctx, b.Info); err != nil {
		d.log.Errorw("failed to cancel block building", "payload_id", b.Info.ID, "error", err)
		if !force {
			return derive.NewTemporaryError(fmt.Errorf("failed to cancel payload %s: %w", b.Info.ID, err))
		}
	}
	d.state = d.state.withBuilding(nil)
	return nil
}
