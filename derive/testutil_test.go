package derive

import (
	"math/big"

	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const testL1BlockTime = 12

// testL1Info returns L1 block n of a chain starting at block 100, time 990.
func testL1Info(cfg *rollup.Config, n uint64) *L1Info {
	return testL1InfoAt(cfg, n, 990+(n-100)*testL1BlockTime)
}

func testL1InfoAt(cfg *rollup.Config, n, timestamp uint64) *L1Info {
	return &L1Info{
		Block: rollup.L1BlockRef{
			BlockInfo: rollup.BlockInfo{
				Hash:       testHash(0xA1, n),
				Number:     n,
				ParentHash: testHash(0xA1, n-1),
				Timestamp:  timestamp,
			},
			BaseFee:   big.NewInt(7),
			MixDigest: testHash(0xC3, n),
		},
		SystemConfig: cfg.Genesis.SystemConfig,
	}
}

func testGenesisSafeHead(cfg *rollup.Config) (rollup.BlockInfo, rollup.Epoch) {
	return rollup.BlockInfo{
			Hash:      cfg.Genesis.L2.Hash,
			Number:    cfg.Genesis.L2.Number,
			Timestamp: cfg.Genesis.L2Time,
		}, rollup.Epoch{
			Number:    cfg.Genesis.L1.Number,
			Hash:      cfg.Genesis.L1.Hash,
			Timestamp: 990,
		}
}

// testState returns a state at the L2 genesis that has seen the given L1 blocks.
func testState(cfg *rollup.Config, fetcher L2Fetcher, l1 ...*L1Info) *State {
	head, epoch := testGenesisSafeHead(cfg)
	s := NewState(cfg, log.GetDefaultLogger(), fetcher, head, epoch)
	for _, info := range l1 {
		s.UpdateL1Info(info)
	}
	return s
}

// a byte string that is neither empty nor a deposit
var testUserTx = hexutil.Bytes{0x02, 0xc0}
