package safedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/0xPolygon/cdk-opnode/db"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/safedb/migrations"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

var ErrNotFound = db.ErrNotFound

// Config of the safe head store. An empty DBPath disables it.
type Config struct {
	DBPath string `mapstructure:"DBPath"`
}

// Listener is told about every safe head change. The driver reports to it.
type Listener interface {
	Enabled() bool
	// SafeHeadUpdated records that safeHead was derived from L1 up to l1Head.
	SafeHeadUpdated(ctx context.Context, safeHead rollup.BlockID, l1Head rollup.BlockID) error
	// SafeHeadReset drops the records whose L2 block is after resetTo.
	SafeHeadReset(ctx context.Context, resetTo rollup.BlockID) error
}

// Reader answers which L2 block was safe once a given L1 block was processed.
type Reader interface {
	SafeHeadAtL1(ctx context.Context, l1Number uint64) (Record, error)
}

// Record is one row of the safe_head table.
type Record struct {
	L1BlockNum  uint64      `meddler:"l1_block_num"`
	L1BlockHash common.Hash `meddler:"l1_block_hash,hash"`
	L2BlockNum  uint64      `meddler:"l2_block_num"`
	L2BlockHash common.Hash `meddler:"l2_block_hash,hash"`
}

func (r Record) L1() rollup.BlockID {
	return rollup.BlockID{Hash: r.L1BlockHash, Number: r.L1BlockNum}
}

func (r Record) L2() rollup.BlockID {
	return rollup.BlockID{Hash: r.L2BlockHash, Number: r.L2BlockNum}
}

var (
	_ Listener = (*SafeDB)(nil)
	_ Reader   = (*SafeDB)(nil)
	_ Listener = Disabled{}
)

// SafeDB keeps, per L1 block, the safe L2 head derived from L1 up to it.
type SafeDB struct {
	logger *log.Logger
	db     *sql.DB
}

func New(logger *log.Logger, dbPath string) (*SafeDB, error) {
	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunMigrations(logger, database); err != nil {
		database.Close()
		return nil, err
	}
	return &SafeDB{logger: logger, db: database}, nil
}

func (s *SafeDB) Enabled() bool { return true }

// SafeHeadUpdated stores the record for l1Head. Records of L1 blocks at or after
// l1Head are replaced, they belong to an L1 chain that was reorged out.
func (s *SafeDB) SafeHeadUpdated(ctx context.Context, safeHead rollup.BlockID, l1Head rollup.BlockID) error {
	rec := &Record{
		L1BlockNum:  l1Head.Number,
		L1BlockHash: l1Head.Hash,
		L2BlockNum:  safeHead.Number,
		L2BlockHash: safeHead.Hash,
	}
	err := db.WithTx(ctx, s.logger, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM safe_head WHERE l1_block_num >= $1;", l1Head.Number); err != nil {
			return fmt.Errorf("failed to delete newer records: %w", err)
		}
		if err := meddler.Insert(tx, "safe_head", rec); err != nil {
			return fmt.Errorf("failed to insert safe head record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debugw("recorded safe head", "l1", l1Head.Number, "l2", safeHead.Number)
	return nil
}

func (s *SafeDB) SafeHeadReset(ctx context.Context, resetTo rollup.BlockID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM safe_head WHERE l2_block_num > $1;", resetTo.Number)
	if err != nil {
		return fmt.Errorf("failed to reset safe head records: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Infow("dropped safe head records", "count", n, "reset_to", resetTo.Number)
	}
	return nil
}

// SafeHeadAtL1 returns the record of the highest L1 block not after l1Number.
func (s *SafeDB) SafeHeadAtL1(ctx context.Context, l1Number uint64) (Record, error) {
	var rec Record
	err := meddler.QueryRow(s.db, &rec,
		"SELECT * FROM safe_head WHERE l1_block_num <= $1 ORDER BY l1_block_num DESC LIMIT 1;", l1Number)
	if err != nil {
		err = db.ReturnErrNotFound(err)
		if errors.Is(err, db.ErrNotFound) {
			return Record{}, fmt.Errorf("no safe head for L1 block %d: %w", l1Number, ErrNotFound)
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *SafeDB) Close() error {
	return s.db.Close()
}

// Disabled is the Listener used when no DBPath is configured.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) SafeHeadUpdated(context.Context, rollup.BlockID, rollup.BlockID) error { return nil }

func (Disabled) SafeHeadReset(context.Context, rollup.BlockID) error { return nil }
