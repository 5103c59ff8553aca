package rollup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	L1InfoFuncBedrockSignature = "setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,uint256,uint256)"
	L1InfoFuncEcotoneSignature = "setL1BlockValuesEcotone()"

	L1InfoBedrockLen = 4 + 32*8
	L1InfoEcotoneLen = 4 + 32*5

	RegolithSystemTxGas = 1_000_000
	bedrockSystemTxGas  = 150_000_000
)

var (
	L1InfoFuncBedrockBytes4 = crypto.Keccak256([]byte(L1InfoFuncBedrockSignature))[:4]
	L1InfoFuncEcotoneBytes4 = crypto.Keccak256([]byte(L1InfoFuncEcotoneSignature))[:4]

	L1InfoDepositerAddress = common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001")
	L1BlockAddress         = common.HexToAddress("0x4200000000000000000000000000000000000015")
	SequencerFeeVault      = common.HexToAddress("0x4200000000000000000000000000000000000011")

	ErrInvalidL1InfoFormat = errors.New("invalid L1 info deposit format")
)

// L1BlockInfo is the payload of the first transaction of every L2 block.
type L1BlockInfo struct {
	Number         uint64
	Time           uint64
	BaseFee        *big.Int
	BlockHash      common.Hash
	SequenceNumber uint64
	BatcherAddr    common.Address

	// Bedrock only
	L1FeeOverhead [32]byte
	L1FeeScalar   [32]byte

	// Ecotone only
	BlobBaseFee       *big.Int
	BaseFeeScalar     uint32
	BlobBaseFeeScalar uint32
}

// Epoch returns the L1 origin encoded in the info.
func (info *L1BlockInfo) Epoch() Epoch {
	return Epoch{
		Number:         info.Number,
		Hash:           info.BlockHash,
		Timestamp:      info.Time,
		SequenceNumber: info.SequenceNumber,
	}
}

// SystemConfig rebuilds the system config the L2 block carrying info was
// built with. The unsafe block signer is not part of the block.
func (info *L1BlockInfo) SystemConfig(unsafeBlockSigner common.Address, gasLimit uint64) SystemConfig {
	sc := SystemConfig{
		BatcherAddr:       info.BatcherAddr,
		GasLimit:          gasLimit,
		UnsafeBlockSigner: unsafeBlockSigner,
	}
	// only the ecotone format carries a blob base fee
	if info.BlobBaseFee == nil {
		sc.Overhead = common.Hash(info.L1FeeOverhead)
		sc.Scalar = common.Hash(info.L1FeeScalar)
		return sc
	}
	sc.Scalar[0] = L1ScalarEcotone
	binary.BigEndian.PutUint32(sc.Scalar[24:28], info.BlobBaseFeeScalar)
	binary.BigEndian.PutUint32(sc.Scalar[28:32], info.BaseFeeScalar)
	return sc
}

func word(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	b := uint256.MustFromBig(v).Bytes32()
	return b[:]
}

func u64Word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}

// MarshalBinaryBedrock encodes the info as setL1BlockValues calldata.
func (info *L1BlockInfo) MarshalBinaryBedrock() []byte {
	w := bytes.NewBuffer(make([]byte, 0, L1InfoBedrockLen))
	w.Write(L1InfoFuncBedrockBytes4)
	w.Write(u64Word(info.Number))
	w.Write(u64Word(info.Time))
	w.Write(word(info.BaseFee))
	w.Write(info.BlockHash[:])
	w.Write(u64Word(info.SequenceNumber))
	w.Write(common.BytesToHash(info.BatcherAddr.Bytes()).Bytes())
	w.Write(info.L1FeeOverhead[:])
	w.Write(info.L1FeeScalar[:])
	return w.Bytes()
}

// MarshalBinaryEcotone encodes the info as tightly packed setL1BlockValuesEcotone calldata.
func (info *L1BlockInfo) MarshalBinaryEcotone() []byte {
	out := make([]byte, L1InfoEcotoneLen)
	copy(out[0:4], L1InfoFuncEcotoneBytes4)
	binary.BigEndian.PutUint32(out[4:8], info.BaseFeeScalar)
	binary.BigEndian.PutUint32(out[8:12], info.BlobBaseFeeScalar)
	binary.BigEndian.PutUint64(out[12:20], info.SequenceNumber)
	binary.BigEndian.PutUint64(out[20:28], info.Time)
	binary.BigEndian.PutUint64(out[28:36], info.Number)
	copy(out[36:68], word(info.BaseFee))
	blobBaseFee := info.BlobBaseFee
	if blobBaseFee == nil {
		blobBaseFee = big.NewInt(1)
	}
	copy(out[68:100], word(blobBaseFee))
	copy(out[100:132], info.BlockHash[:])
	copy(out[132:164], common.BytesToHash(info.BatcherAddr.Bytes()).Bytes())
	return out
}

// UnmarshalL1BlockInfo decodes either calldata format, selected by its selector.
func UnmarshalL1BlockInfo(data []byte) (*L1BlockInfo, error) {
	if len(data) < 4 { //nolint:mnd
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidL1InfoFormat, len(data))
	}
	switch {
	case bytes.Equal(data[:4], L1InfoFuncBedrockBytes4):
		return unmarshalBedrock(data)
	case bytes.Equal(data[:4], L1InfoFuncEcotoneBytes4):
		return unmarshalEcotone(data)
	default:
		return nil, fmt.Errorf("%w: unknown selector %x", ErrInvalidL1InfoFormat, data[:4])
	}
}

func readU64Word(w []byte) (uint64, error) {
	for _, b := range w[:24] {
		if b != 0 {
			return 0, fmt.Errorf("%w: number does not fit in uint64", ErrInvalidL1InfoFormat)
		}
	}
	return binary.BigEndian.Uint64(w[24:32]), nil
}

func unmarshalBedrock(data []byte) (*L1BlockInfo, error) {
	if len(data) != L1InfoBedrockLen {
		return nil, fmt.Errorf("%w: bedrock data length %d", ErrInvalidL1InfoFormat, len(data))
	}
	info := &L1BlockInfo{}
	words := data[4:]
	var err error
	if info.Number, err = readU64Word(words[0:32]); err != nil {
		return nil, err
	}
	if info.Time, err = readU64Word(words[32:64]); err != nil {
		return nil, err
	}
	info.BaseFee = new(big.Int).SetBytes(words[64:96])
	info.BlockHash = common.BytesToHash(words[96:128])
	if info.SequenceNumber, err = readU64Word(words[128:160]); err != nil {
		return nil, err
	}
	info.BatcherAddr = common.BytesToAddress(words[160:192])
	copy(info.L1FeeOverhead[:], words[192:224])
	copy(info.L1FeeScalar[:], words[224:256])
	return info, nil
}

func unmarshalEcotone(data []byte) (*L1BlockInfo, error) {
	if len(data) != L1InfoEcotoneLen {
		return nil, fmt.Errorf("%w: ecotone data length %d", ErrInvalidL1InfoFormat, len(data))
	}
	return &L1BlockInfo{
		BaseFeeScalar:     binary.BigEndian.Uint32(data[4:8]),
		BlobBaseFeeScalar: binary.BigEndian.Uint32(data[8:12]),
		SequenceNumber:    binary.BigEndian.Uint64(data[12:20]),
		Time:              binary.BigEndian.Uint64(data[20:28]),
		Number:            binary.BigEndian.Uint64(data[28:36]),
		BaseFee:           new(big.Int).SetBytes(data[36:68]),
		BlobBaseFee:       new(big.Int).SetBytes(data[68:100]),
		BlockHash:         common.BytesToHash(data[100:132]),
		BatcherAddr:       common.BytesToAddress(data[132:164]),
	}, nil
}

// L1InfoDeposit builds the L1 attributes deposit transaction of an L2 block.
func L1InfoDeposit(cfg *Config, sysCfg SystemConfig, seqNumber uint64, block L1BlockRef, l2Time uint64) (*DepositTx, error) {
	info := &L1BlockInfo{
		Number:         block.Number,
		Time:           block.Timestamp,
		BaseFee:        block.BaseFee,
		BlockHash:      block.Hash,
		SequenceNumber: seqNumber,
		BatcherAddr:    sysCfg.BatcherAddr,
	}
	var data []byte
	if cfg.IsEcotone(l2Time) && !cfg.IsEcotoneActivationBlock(l2Time) {
		blobBaseFeeScalar, baseFeeScalar, err := sysCfg.EcotoneScalars()
		if err != nil {
			return nil, err
		}
		info.BaseFeeScalar = baseFeeScalar
		info.BlobBaseFeeScalar = blobBaseFeeScalar
		info.BlobBaseFee = big.NewInt(1)
		if block.ExcessBlobGas != nil {
			info.BlobBaseFee = eip4844.CalcBlobFee(*block.ExcessBlobGas)
		}
		data = info.MarshalBinaryEcotone()
	} else {
		info.L1FeeOverhead = sysCfg.Overhead
		info.L1FeeScalar = sysCfg.Scalar
		data = info.MarshalBinaryBedrock()
	}

	to := L1BlockAddress
	tx := &DepositTx{
		SourceHash:          DepositSourceHash(L1InfoDepositSourceDomain, block.Hash, seqNumber),
		From:                L1InfoDepositerAddress,
		To:                  &to,
		Mint:                nil,
		Value:               big.NewInt(0),
		Gas:                 bedrockSystemTxGas,
		IsSystemTransaction: true,
		Data:                data,
	}
	if cfg.IsRegolith(l2Time) {
		tx.IsSystemTransaction = false
		tx.Gas = RegolithSystemTxGas
	}
	return tx, nil
}

// L1InfoDepositBytes returns the encoded L1 info deposit transaction.
func L1InfoDepositBytes(cfg *Config, sysCfg SystemConfig, seqNumber uint64, block L1BlockRef, l2Time uint64) ([]byte, error) {
	tx, err := L1InfoDeposit(cfg, sysCfg, seqNumber, block, l2Time)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 info tx: %w", err)
	}
	return tx.MarshalBinary()
}

// L1BlockInfoFromDepositTx decodes the L1 info carried by the first transaction of an L2 block.
func L1BlockInfoFromDepositTx(raw []byte) (*L1BlockInfo, error) {
	tx, err := UnmarshalDepositTx(raw)
	if err != nil {
		return nil, err
	}
	return UnmarshalL1BlockInfo(tx.Data)
}
