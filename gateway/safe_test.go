package gateway

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/stretchr/testify/require"
)

func TestSelectors(t *testing.T) {
	cases := map[string]struct {
		method string
		want   []byte
	}{
		"pause":            {method: "pause", want: multisig.PauseSelector},
		"exec":             {method: "execTransaction", want: common.FromHex("0x6a761202")},
		"nonce":            {method: "nonce", want: common.FromHex("0xaffed0e0")},
		"threshold":        {method: "getThreshold", want: common.FromHex("0xe75235b8")},
		"change threshold": {method: "changeThreshold", want: common.FromHex("0x694e80c3")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m, ok := SafeABI.Methods[tc.method]
			if !ok {
				m, ok = PausableABI.Methods[tc.method]
			}
			require.True(t, ok)
			require.Equal(t, tc.want, m.ID)
		})
	}
}

func TestPackSignatures(t *testing.T) {
	low := common.HexToAddress("0x1000000000000000000000000000000000000000")
	high := common.HexToAddress("0xF000000000000000000000000000000000000000")
	sigLow := bytes.Repeat([]byte{0x11}, 65)
	sigLow[64] = 1
	sigHigh := bytes.Repeat([]byte{0x22}, 65)
	sigHigh[64] = 28

	packed := PackSignatures([]multisig.Signature{
		{Signer: high, Signature: sigHigh},
		{Signer: low, Signature: sigLow},
	})
	require.Len(t, packed, 130)
	require.Equal(t, byte(0x11), packed[0])
	require.Equal(t, byte(28), packed[64])
	require.Equal(t, byte(0x22), packed[65])
	require.Equal(t, byte(28), packed[129])

	// The input is left untouched.
	require.Equal(t, byte(1), sigLow[64])
}

func TestDecodeLog(t *testing.T) {
	account := common.HexToAddress("0x9999")
	txHash := common.HexToHash("0xabcdef")

	data, err := SafeABI.Events["ExecutionSuccess"].Inputs.Pack(txHash, big.NewInt(0))
	require.NoError(t, err)
	ev := DecodeLog(types.Log{
		Address: account,
		Topics:  []common.Hash{SafeABI.Events["ExecutionSuccess"].ID},
		Data:    data,
	})
	require.Equal(t, "ExecutionSuccess", ev.Name)
	require.Equal(t, account, ev.Address)
	require.Equal(t, []multisig.EventArg{
		{Name: "txHash", Value: txHash.Hex()},
		{Name: "payment", Value: "0"},
	}, ev.Args)

	data, err = PausableABI.Events["Paused"].Inputs.Pack(account)
	require.NoError(t, err)
	ev = DecodeLog(types.Log{
		Address: common.HexToAddress("0xAAAA"),
		Topics:  []common.Hash{PausableABI.Events["Paused"].ID},
		Data:    data,
	})
	require.Equal(t, Event(common.HexToAddress("0xAAAA"), "Paused", "account", account), ev)

	unknown := common.HexToHash("0x01")
	ev = DecodeLog(types.Log{Address: account, Topics: []common.Hash{unknown}})
	require.Equal(t, "unknown", ev.Name)
	require.Equal(t, []multisig.EventArg{{Name: "topic0", Value: unknown.Hex()}}, ev.Args)
}

func TestDecodeArgsKeepsPosition(t *testing.T) {
	addrType, err := abi.NewType("address", "", nil)
	require.NoError(t, err)
	uintType, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	def := abi.NewEvent("Moved", "Moved", false, abi.Arguments{
		{Name: "", Type: addrType, Indexed: true},
		{Name: "", Type: uintType},
		{Name: "to", Type: addrType, Indexed: true},
		{Name: "", Type: uintType},
	})

	from := common.HexToAddress("0x1111")
	to := common.HexToAddress("0x2222")
	data, err := def.Inputs.NonIndexed().Pack(big.NewInt(7), big.NewInt(9))
	require.NoError(t, err)
	args, err := decodeArgs(&def, types.Log{
		Topics: []common.Hash{def.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:   data,
	})
	require.NoError(t, err)
	require.Equal(t, []multisig.EventArg{
		{Name: "", Value: from.Hex()},
		{Name: "", Value: "7"},
		{Name: "to", Value: to.Hex()},
		{Name: "", Value: "9"},
	}, args)

	_, err = decodeArgs(&def, types.Log{Topics: []common.Hash{def.ID}, Data: data})
	require.Error(t, err)
}
