package batch

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

const (
	operationSize = 1
	targetSize    = common.AddressLength
	wordSize      = 32
	headerSize    = operationSize + targetSize + wordSize + wordSize
)

// MultiSendSelector is the function selector of multiSend(bytes).
var MultiSendSelector = []byte{0x8d, 0x80, 0xff, 0x0a}

var multiSendArgs = func() abi.Arguments {
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "transactions", Type: bytesTy}}
}()

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// SubOperation is a single call executed as part of a batch.
type SubOperation struct {
	Operation superpool.Operation
	Target    common.Address
	Value     *big.Int
	Data      []byte
}

// Validate returns an error if this sub operation cannot be encoded.
func (s SubOperation) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Operation", s.Operation.Validate())
	if s.Value != nil && (s.Value.Sign() < 0 || s.Value.Cmp(maxUint256) > 0) {
		errs = errors.Append(errs, errors.Field("Value", errors.ErrValidation, "must fit in 256 unsigned bits"))
	}
	return errs
}

// Encode packs given sub operations into a single payload. The result
// depends only on the input and its order.
func Encode(ops []SubOperation) ([]byte, error) {
	if len(ops) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "empty batch")
	}

	var buf bytes.Buffer
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, errors.Wrapf(err, "sub operation %d", i)
		}
		value := op.Value
		if value == nil {
			value = new(big.Int)
		}

		buf.WriteByte(byte(op.Operation))
		buf.Write(op.Target.Bytes())
		buf.Write(common.LeftPadBytes(value.Bytes(), wordSize))
		buf.Write(common.LeftPadBytes(big.NewInt(int64(len(op.Data))).Bytes(), wordSize))
		buf.Write(op.Data)
	}
	return buf.Bytes(), nil
}

// Decode is the exact inverse of Encode.
func Decode(payload []byte) ([]SubOperation, error) {
	if len(payload) == 0 {
		return nil, errors.Wrap(errors.ErrValidation, "empty batch")
	}

	var ops []SubOperation
	for pos := 0; pos < len(payload); {
		if len(payload)-pos < headerSize {
			return nil, errors.Wrapf(errors.ErrValidation, "sub operation %d: truncated header", len(ops))
		}
		op := superpool.Operation(payload[pos])
		if err := op.Validate(); err != nil {
			return nil, errors.Wrapf(err, "sub operation %d", len(ops))
		}
		pos += operationSize

		target := common.BytesToAddress(payload[pos : pos+targetSize])
		pos += targetSize

		value := new(big.Int).SetBytes(payload[pos : pos+wordSize])
		pos += wordSize

		size := new(big.Int).SetBytes(payload[pos : pos+wordSize])
		pos += wordSize
		if !size.IsInt64() || size.Int64() > int64(len(payload)-pos) {
			return nil, errors.Wrapf(errors.ErrValidation, "sub operation %d: data length %s exceeds payload", len(ops), size)
		}
		n := int(size.Int64())

		data := make([]byte, n)
		copy(data, payload[pos:pos+n])
		pos += n

		ops = append(ops, SubOperation{
			Operation: op,
			Target:    target,
			Value:     value,
			Data:      data,
		})
	}
	return ops, nil
}

// EncodeCall returns the call data of multiSend(bytes) executing given sub
// operations.
func EncodeCall(ops []SubOperation) ([]byte, error) {
	payload, err := Encode(ops)
	if err != nil {
		return nil, err
	}
	args, err := multiSendArgs.Pack(payload)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrHuman, "abi pack: %s", err)
	}
	return append(append([]byte{}, MultiSendSelector...), args...), nil
}

// DecodeCall reverses EncodeCall.
func DecodeCall(data []byte) ([]SubOperation, error) {
	if len(data) < len(MultiSendSelector) || !bytes.Equal(data[:4], MultiSendSelector) {
		return nil, errors.Wrap(errors.ErrValidation, "not a multiSend call")
	}
	values, err := multiSendArgs.Unpack(data[4:])
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "abi unpack: %s", err)
	}
	payload, ok := values[0].([]byte)
	if !ok {
		return nil, errors.Wrapf(errors.ErrValidation, "unexpected argument type %T", values[0])
	}
	return Decode(payload)
}

type subOperationJSON struct {
	Operation superpool.Operation `json:"operation"`
	Target    string              `json:"to"`
	Value     string              `json:"value"`
	Data      hexutil.Bytes       `json:"data"`
}

// MarshalJSON serializes the value as a decimal string and the data as 0x
// prefixed hex.
func (s SubOperation) MarshalJSON() ([]byte, error) {
	value := "0"
	if s.Value != nil {
		value = s.Value.String()
	}
	data := s.Data
	if data == nil {
		data = []byte{}
	}
	return json.Marshal(subOperationJSON{
		Operation: s.Operation,
		Target:    s.Target.Hex(),
		Value:     value,
		Data:      data,
	})
}

// UnmarshalJSON strictly validates the target address and the value.
func (s *SubOperation) UnmarshalJSON(raw []byte) error {
	var in subOperationJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.Wrapf(errors.ErrValidation, "sub operation: %s", err)
	}
	target, err := superpool.ParseAddress(in.Target)
	if err != nil {
		return errors.Field("to", err, "")
	}
	value, err := ParseValue(in.Value)
	if err != nil {
		return errors.Field("value", err, "")
	}
	data := []byte(in.Data)
	if data == nil {
		data = []byte{}
	}
	*s = SubOperation{
		Operation: in.Operation,
		Target:    target,
		Value:     value,
		Data:      data,
	}
	return nil
}

// ParseValue parses a non negative decimal amount that fits in 256 bits.
// An empty string is zero.
func ParseValue(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Wrapf(errors.ErrValidation, "invalid decimal %q", s)
	}
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return nil, errors.Wrap(errors.ErrValidation, "must fit in 256 unsigned bits")
	}
	return v, nil
}
