package derive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	ErrTxTypeNotSupported = errors.New("transaction type not supported in span batch")
	ErrChainIDMismatch    = errors.New("protected legacy transaction signed for another chain")
)

// spanBatchTxs holds the transactions of a span batch in columnar form.
type spanBatchTxs struct {
	totalBlockTxCount uint64

	contractCreationBits *big.Int
	yParityBits          *big.Int
	txSigs               []spanBatchSignature
	txTos                []common.Address
	txDatas              [][]byte
	txNonces             []uint64
	txGases              []uint64
	protectedBits        *big.Int

	// derived from txDatas
	txTypes            []int
	totalLegacyTxCount uint64
}

type spanBatchSignature struct {
	r uint256.Int
	s uint256.Int
}

type spanBatchLegacyTxData struct {
	Value    *big.Int
	GasPrice *big.Int
	Data     []byte
}

type spanBatchAccessListTxData struct {
	Value      *big.Int
	GasPrice   *big.Int
	Data       []byte
	AccessList types.AccessList
}

type spanBatchDynamicFeeTxData struct {
	Value      *big.Int
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Data       []byte
	AccessList types.AccessList
}

func (btx *spanBatchTxs) encode(w io.Writer) error {
	if err := encodeSpanBatchBits(w, btx.totalBlockTxCount, btx.contractCreationBits); err != nil {
		return fmt.Errorf("failed to write contract creation bits: %w", err)
	}
	if err := encodeSpanBatchBits(w, btx.totalBlockTxCount, btx.yParityBits); err != nil {
		return fmt.Errorf("failed to write y parity bits: %w", err)
	}
	for _, sig := range btx.txSigs {
		r := sig.r.Bytes32()
		s := sig.s.Bytes32()
		if _, err := w.Write(r[:]); err != nil {
			return err
		}
		if _, err := w.Write(s[:]); err != nil {
			return err
		}
	}
	for _, to := range btx.txTos {
		if _, err := w.Write(to.Bytes()); err != nil {
			return err
		}
	}
	for _, data := range btx.txDatas {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	for _, nonce := range btx.txNonces {
		if err := writeUvarint(w, nonce); err != nil {
			return err
		}
	}
	for _, gas := range btx.txGases {
		if err := writeUvarint(w, gas); err != nil {
			return err
		}
	}
	if err := encodeSpanBatchBits(w, btx.totalLegacyTxCount, btx.protectedBits); err != nil {
		return fmt.Errorf("failed to write protected bits: %w", err)
	}
	return nil
}

func (btx *spanBatchTxs) decode(r *bytes.Reader) error {
	var err error
	n := btx.totalBlockTxCount
	if btx.contractCreationBits, err = decodeSpanBatchBits(r, n); err != nil {
		return fmt.Errorf("contract creation bits: %w", err)
	}
	if btx.yParityBits, err = decodeSpanBatchBits(r, n); err != nil {
		return fmt.Errorf("y parity bits: %w", err)
	}

	btx.txSigs = make([]spanBatchSignature, n)
	var word [32]byte
	for i := range btx.txSigs {
		if _, err := io.ReadFull(r, word[:]); err != nil {
			return fmt.Errorf("failed to read signature r of tx %d: %w", i, err)
		}
		btx.txSigs[i].r.SetBytes32(word[:])
		if _, err := io.ReadFull(r, word[:]); err != nil {
			return fmt.Errorf("failed to read signature s of tx %d: %w", i, err)
		}
		btx.txSigs[i].s.SetBytes32(word[:])
	}

	btx.txTos = make([]common.Address, n-popCount(btx.contractCreationBits, n))
	for i := range btx.txTos {
		if _, err := io.ReadFull(r, btx.txTos[i][:]); err != nil {
			return fmt.Errorf("failed to read to address %d: %w", i, err)
		}
	}

	btx.txDatas = make([][]byte, n)
	btx.txTypes = make([]int, n)
	btx.totalLegacyTxCount = 0
	for i := range btx.txDatas {
		data, txType, err := readTxData(r)
		if err != nil {
			return fmt.Errorf("tx data %d: %w", i, err)
		}
		btx.txDatas[i] = data
		btx.txTypes[i] = txType
		if txType == types.LegacyTxType {
			btx.totalLegacyTxCount++
		}
	}

	btx.txNonces = make([]uint64, n)
	for i := range btx.txNonces {
		if btx.txNonces[i], err = readUvarint(r, "tx nonce"); err != nil {
			return err
		}
	}
	btx.txGases = make([]uint64, n)
	for i := range btx.txGases {
		if btx.txGases[i], err = readUvarint(r, "tx gas"); err != nil {
			return err
		}
	}
	if btx.protectedBits, err = decodeSpanBatchBits(r, btx.totalLegacyTxCount); err != nil {
		return fmt.Errorf("protected bits: %w", err)
	}
	return nil
}

// readTxData reads one typed payload: an optional type byte followed by an RLP list.
func readTxData(r *bytes.Reader) ([]byte, int, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read tx type: %w", err)
	}
	txType := types.LegacyTxType
	var out []byte
	switch first {
	case types.AccessListTxType, types.DynamicFeeTxType:
		txType = int(first)
		out = append(out, first)
	default:
		if err := r.UnreadByte(); err != nil {
			return nil, 0, err
		}
	}
	raw, err := rlp.NewStream(r, MaxSpanBatchElementCount).Raw()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read tx payload: %w", err)
	}
	return append(out, raw...), txType, nil
}

// fullTxs rebuilds the signed transactions, recovering v from the y parity and chainID.
func (btx *spanBatchTxs) fullTxs(chainID *big.Int) ([][]byte, error) {
	txs := make([][]byte, 0, btx.totalBlockTxCount)
	toIdx := 0
	legacyIdx := 0
	for idx := 0; idx < int(btx.totalBlockTxCount); idx++ {
		var to *common.Address
		if btx.contractCreationBits.Bit(idx) == 0 {
			if toIdx >= len(btx.txTos) {
				return nil, fmt.Errorf("tx %d: to address out of range", idx)
			}
			addr := btx.txTos[toIdx]
			to = &addr
			toIdx++
		}
		yParity := uint64(btx.yParityBits.Bit(idx))
		r := btx.txSigs[idx].r.ToBig()
		s := btx.txSigs[idx].s.ToBig()
		nonce := btx.txNonces[idx]
		gas := btx.txGases[idx]

		var inner types.TxData
		switch btx.txTypes[idx] {
		case types.LegacyTxType:
			var d spanBatchLegacyTxData
			if err := rlp.DecodeBytes(btx.txDatas[idx], &d); err != nil {
				return nil, fmt.Errorf("tx %d: legacy payload: %w", idx, err)
			}
			protected := btx.protectedBits.Bit(legacyIdx) == 1
			legacyIdx++
			inner = &types.LegacyTx{
				Nonce:    nonce,
				GasPrice: d.GasPrice,
				Gas:      gas,
				To:       to,
				Value:    d.Value,
				Data:     d.Data,
				V:        legacyV(chainID, yParity, protected),
				R:        r,
				S:        s,
			}
		case types.AccessListTxType:
			var d spanBatchAccessListTxData
			if err := rlp.DecodeBytes(btx.txDatas[idx][1:], &d); err != nil {
				return nil, fmt.Errorf("tx %d: access list payload: %w", idx, err)
			}
			inner = &types.AccessListTx{
				ChainID:    chainID,
				Nonce:      nonce,
				GasPrice:   d.GasPrice,
				Gas:        gas,
				To:         to,
				Value:      d.Value,
				Data:       d.Data,
				AccessList: d.AccessList,
				V:          new(big.Int).SetUint64(yParity),
				R:          r,
				S:          s,
			}
		case types.DynamicFeeTxType:
			var d spanBatchDynamicFeeTxData
			if err := rlp.DecodeBytes(btx.txDatas[idx][1:], &d); err != nil {
				return nil, fmt.Errorf("tx %d: dynamic fee payload: %w", idx, err)
			}
			inner = &types.DynamicFeeTx{
				ChainID:    chainID,
				Nonce:      nonce,
				GasTipCap:  d.GasTipCap,
				GasFeeCap:  d.GasFeeCap,
				Gas:        gas,
				To:         to,
				Value:      d.Value,
				Data:       d.Data,
				AccessList: d.AccessList,
				V:          new(big.Int).SetUint64(yParity),
				R:          r,
				S:          s,
			}
		default:
			return nil, fmt.Errorf("%w: %d", ErrTxTypeNotSupported, btx.txTypes[idx])
		}
		raw, err := types.NewTx(inner).MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", idx, err)
		}
		txs = append(txs, raw)
	}
	return txs, nil
}

func legacyV(chainID *big.Int, yParity uint64, protected bool) *big.Int {
	if !protected {
		return new(big.Int).SetUint64(27 + yParity)
	}
	v := new(big.Int).Mul(chainID, big.NewInt(2))
	return v.Add(v, new(big.Int).SetUint64(35+yParity))
}

// newSpanBatchTxs splits signed transactions into columns.
func newSpanBatchTxs(txs [][]byte, chainID *big.Int) (*spanBatchTxs, error) {
	n := uint64(len(txs))
	btx := &spanBatchTxs{
		totalBlockTxCount:    n,
		contractCreationBits: new(big.Int),
		yParityBits:          new(big.Int),
		protectedBits:        new(big.Int),
		txSigs:               make([]spanBatchSignature, 0, n),
		txDatas:              make([][]byte, 0, n),
		txNonces:             make([]uint64, 0, n),
		txGases:              make([]uint64, 0, n),
		txTypes:              make([]int, 0, n),
	}
	for idx, raw := range txs {
		if len(raw) > 0 && raw[0] == rollup.DepositTxType {
			return nil, fmt.Errorf("tx %d: %w: deposit", idx, ErrTxTypeNotSupported)
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("tx %d: %w", idx, err)
		}
		v, r, s := tx.RawSignatureValues()
		var yParity uint64
		var data []byte
		var err error
		switch tx.Type() {
		case types.LegacyTxType:
			protected := tx.Protected()
			if protected {
				if tx.ChainId().Cmp(chainID) != 0 {
					return nil, fmt.Errorf("tx %d: %w: %s, expected %s", idx, ErrChainIDMismatch, tx.ChainId(), chainID)
				}
				btx.protectedBits.SetBit(btx.protectedBits, int(btx.totalLegacyTxCount), 1)
				// v = chainID*2 + 35 + yParity
				yParity = new(big.Int).Sub(v, new(big.Int).Add(new(big.Int).Mul(chainID, big.NewInt(2)), big.NewInt(35))).Uint64()
			} else {
				yParity = v.Uint64() - 27
			}
			btx.totalLegacyTxCount++
			data, err = rlp.EncodeToBytes(&spanBatchLegacyTxData{
				Value:    tx.Value(),
				GasPrice: tx.GasPrice(),
				Data:     tx.Data(),
			})
		case types.AccessListTxType:
			yParity = v.Uint64()
			data, err = encodeTyped(types.AccessListTxType, &spanBatchAccessListTxData{
				Value:      tx.Value(),
				GasPrice:   tx.GasPrice(),
				Data:       tx.Data(),
				AccessList: tx.AccessList(),
			})
		case types.DynamicFeeTxType:
			yParity = v.Uint64()
			data, err = encodeTyped(types.DynamicFeeTxType, &spanBatchDynamicFeeTxData{
				Value:      tx.Value(),
				GasTipCap:  tx.GasTipCap(),
				GasFeeCap:  tx.GasFeeCap(),
				Data:       tx.Data(),
				AccessList: tx.AccessList(),
			})
		default:
			return nil, fmt.Errorf("tx %d: %w: %d", idx, ErrTxTypeNotSupported, tx.Type())
		}
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", idx, err)
		}
		if yParity > 1 {
			return nil, fmt.Errorf("tx %d: invalid y parity %d", idx, yParity)
		}

		var sig spanBatchSignature
		if overflow := sig.r.SetFromBig(r); overflow {
			return nil, fmt.Errorf("tx %d: signature r overflows 256 bits", idx)
		}
		if overflow := sig.s.SetFromBig(s); overflow {
			return nil, fmt.Errorf("tx %d: signature s overflows 256 bits", idx)
		}

		if tx.To() == nil {
			btx.contractCreationBits.SetBit(btx.contractCreationBits, idx, 1)
		} else {
			btx.txTos = append(btx.txTos, *tx.To())
		}
		btx.yParityBits.SetBit(btx.yParityBits, idx, uint(yParity))
		btx.txSigs = append(btx.txSigs, sig)
		btx.txDatas = append(btx.txDatas, data)
		btx.txTypes = append(btx.txTypes, int(tx.Type()))
		btx.txNonces = append(btx.txNonces, tx.Nonce())
		btx.txGases = append(btx.txGases, tx.Gas())
	}
	return btx, nil
}

func encodeTyped(txType byte, payload interface{}) ([]byte, error) {
	enc, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte{txType}, enc...), nil
}
