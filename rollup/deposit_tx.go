package rollup

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

const (
	// DepositTxType is the EIP-2718 type byte of deposit transactions.
	DepositTxType = byte(0x7E)

	UserDepositSourceDomain   = uint64(0)
	L1InfoDepositSourceDomain = uint64(1)
)

var ErrNotDepositTx = errors.New("not a deposit transaction")

// DepositTx is an L1-originated transaction force-included in L2 blocks.
type DepositTx struct {
	SourceHash          common.Hash
	From                common.Address
	To                  *common.Address `rlp:"nil"`
	Mint                *big.Int        `rlp:"nil"`
	Value               *big.Int
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

// MarshalBinary returns the typed envelope 0x7E ++ rlp(fields).
func (tx *DepositTx) MarshalBinary() ([]byte, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	enc, err := rlp.EncodeToBytes(&DepositTx{
		SourceHash:          tx.SourceHash,
		From:                tx.From,
		To:                  tx.To,
		Mint:                tx.Mint,
		Value:               value,
		Gas:                 tx.Gas,
		IsSystemTransaction: tx.IsSystemTransaction,
		Data:                tx.Data,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{DepositTxType}, enc...), nil
}

// UnmarshalDepositTx decodes a typed deposit transaction envelope.
func UnmarshalDepositTx(data []byte) (*DepositTx, error) {
	if len(data) == 0 || data[0] != DepositTxType {
		return nil, ErrNotDepositTx
	}
	var tx DepositTx
	if err := rlp.DecodeBytes(data[1:], &tx); err != nil {
		return nil, fmt.Errorf("failed to decode deposit tx: %w", err)
	}
	return &tx, nil
}

// DepositSourceHash is keccak256(bytes32(domain) ++ keccak256(l1BlockHash ++ bytes32(index))).
func DepositSourceHash(domain uint64, l1BlockHash common.Hash, index uint64) common.Hash {
	var input [64]byte
	copy(input[:32], l1BlockHash[:])
	copy(input[32:], common.BigToHash(new(big.Int).SetUint64(index)).Bytes())
	depositIDHash := crypto.Keccak256Hash(input[:])

	var domainInput [64]byte
	copy(domainInput[:32], common.BigToHash(new(big.Int).SetUint64(domain)).Bytes())
	copy(domainInput[32:], depositIDHash[:])
	return crypto.Keccak256Hash(domainInput[:])
}
