package superpool

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rafamiziara/superpool-sub007/errors"
)

const (
	// AddressLength is the length in bytes of an account address.
	AddressLength = common.AddressLength
	// TxIDLength is the length in bytes of a transaction id.
	TxIDLength = common.HashLength
	// SignatureLength is the length in bytes of a r || s || v signature.
	SignatureLength = 65
)

// TxID is the canonical identifier of a transaction record. It is also the
// message that owners sign.
type TxID = common.Hash

// ParseAddress decodes a 0x prefixed, 20 byte hex encoded address. Unlike
// common.HexToAddress, any malformed input is rejected instead of being
// silently padded or truncated. Hex case does not matter.
func ParseAddress(s string) (common.Address, error) {
	raw, err := decodeFixedHex(s, AddressLength)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "address")
	}
	return common.BytesToAddress(raw), nil
}

// ParseTxID decodes a 0x prefixed, 32 byte hex encoded transaction id.
func ParseTxID(s string) (TxID, error) {
	raw, err := decodeFixedHex(s, TxIDLength)
	if err != nil {
		return TxID{}, errors.Wrap(err, "transaction id")
	}
	return common.BytesToHash(raw), nil
}

// ParseSignature decodes a 0x prefixed, 65 byte hex encoded signature.
func ParseSignature(s string) ([]byte, error) {
	raw, err := decodeFixedHex(s, SignatureLength)
	if err != nil {
		return nil, errors.Wrap(err, "signature")
	}
	return raw, nil
}

// ParseHexBytes decodes a 0x prefixed hex string of any length. An empty
// string and a bare "0x" both decode to an empty slice.
func ParseHexBytes(s string) ([]byte, error) {
	if s == "" || s == "0x" || s == "0X" {
		return []byte{}, nil
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "invalid hex: %s", err)
	}
	return raw, nil
}

func decodeFixedHex(s string, size int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, errors.Wrap(errors.ErrValidation, "missing 0x prefix")
	}
	if len(s) != 2+2*size {
		return nil, errors.Wrapf(errors.ErrValidation, "want %d bytes, got %d hex characters", size, len(s)-2)
	}
	raw, err := hexutil.Decode("0x" + s[2:])
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "invalid hex: %s", err)
	}
	return raw, nil
}
