package db

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.SQLite
	meddler.Register("hash", HashMeddler{})
}

// HashMeddler stores a common.Hash as its 0x-prefixed hex string.
type HashMeddler struct{}

func (HashMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(string), nil
}

// PostRead rejects anything that is not exactly 32 hex encoded bytes, so a
// corrupt row is reported instead of being read as a zero-padded hash.
func (HashMeddler) PostRead(fieldPtr, scanTarget interface{}) error {
	ptr, ok := scanTarget.(*string)
	if !ok || ptr == nil {
		return errors.New("HashMeddler: scan target is not *string")
	}
	field, ok := fieldPtr.(*common.Hash)
	if !ok {
		return errors.New("HashMeddler: field is not *common.Hash")
	}
	b, err := hexutil.Decode(*ptr)
	if err != nil {
		return fmt.Errorf("HashMeddler: %q: %w", *ptr, err)
	}
	if len(b) != common.HashLength {
		return fmt.Errorf("HashMeddler: %q is %d bytes", *ptr, len(b))
	}
	*field = common.BytesToHash(b)
	return nil
}

func (HashMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	h, ok := field.(common.Hash)
	if !ok {
		return nil, errors.New("HashMeddler: field is not common.Hash")
	}
	return h.Hex(), nil
}
