/*
Package gateway holds what all multisig.ChainGateway implementations share:
the ABI of the custody account contract and of the pausable contracts that
emergency actions target, and the decoding of their events.

Implementations live in the subpackages. ethgw talks to a real node,
devchain simulates a custody account in process.
*/
package gateway

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

const safeJSON = `[
{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
 {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},
 {"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},
 {"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},
 {"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]},
{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
{"type":"function","name":"isOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"addOwnerWithThreshold","stateMutability":"nonpayable","inputs":[
 {"name":"owner","type":"address"},{"name":"_threshold","type":"uint256"}],"outputs":[]},
{"type":"function","name":"removeOwner","stateMutability":"nonpayable","inputs":[
 {"name":"prevOwner","type":"address"},{"name":"owner","type":"address"},{"name":"_threshold","type":"uint256"}],"outputs":[]},
{"type":"function","name":"changeThreshold","stateMutability":"nonpayable","inputs":[{"name":"_threshold","type":"uint256"}],"outputs":[]},
{"type":"event","name":"ExecutionSuccess","anonymous":false,"inputs":[
 {"name":"txHash","type":"bytes32","indexed":false},{"name":"payment","type":"uint256","indexed":false}]},
{"type":"event","name":"ExecutionFailure","anonymous":false,"inputs":[
 {"name":"txHash","type":"bytes32","indexed":false},{"name":"payment","type":"uint256","indexed":false}]},
{"type":"event","name":"AddedOwner","anonymous":false,"inputs":[{"name":"owner","type":"address","indexed":false}]},
{"type":"event","name":"RemovedOwner","anonymous":false,"inputs":[{"name":"owner","type":"address","indexed":false}]},
{"type":"event","name":"ChangedThreshold","anonymous":false,"inputs":[{"name":"threshold","type":"uint256","indexed":false}]}
]`

const pausableJSON = `[
{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"event","name":"Paused","anonymous":false,"inputs":[{"name":"account","type":"address","indexed":false}]},
{"type":"event","name":"Unpaused","anonymous":false,"inputs":[{"name":"account","type":"address","indexed":false}]}
]`

var (
	// SafeABI is the subset of the custody account contract used by the
	// gateways.
	SafeABI = mustABI(safeJSON)
	// PausableABI describes contracts that emergency actions can pause.
	PausableABI = mustABI(pausableJSON)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackSignatures concatenates owner signatures in the order the custody
// account contract requires: sorted by signer address, ascending. Recovery
// ids 0 and 1 are moved to 27 and 28.
func PackSignatures(sigs []multisig.Signature) []byte {
	sorted := append([]multisig.Signature(nil), sigs...)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Signer.Hex()) < strings.ToLower(sorted[j].Signer.Hex())
	})
	out := make([]byte, 0, 65*len(sorted))
	for _, s := range sorted {
		sig := append([]byte(nil), s.Signature...)
		if len(sig) == 65 && sig[64] < 27 {
			sig[64] += 27
		}
		out = append(out, sig...)
	}
	return out
}

// DecodeLog returns the event described by given log. Logs of unknown
// events are returned with the name "unknown" and their raw topics.
func DecodeLog(l types.Log) multisig.Event {
	ev := multisig.Event{Name: "unknown", Address: l.Address}
	if len(l.Topics) == 0 {
		return ev
	}
	for _, parsed := range []abi.ABI{SafeABI, PausableABI} {
		def, err := parsed.EventByID(l.Topics[0])
		if err != nil {
			continue
		}
		args, err := decodeArgs(def, l)
		if err != nil {
			// A log with the right signature but a malformed payload.
			break
		}
		ev.Name = def.Name
		ev.Args = args
		return ev
	}
	for i, t := range l.Topics {
		ev.Args = append(ev.Args, multisig.EventArg{Name: fmt.Sprintf("topic%d", i), Value: t.Hex()})
	}
	return ev
}

func decodeArgs(def *abi.Event, l types.Log) ([]multisig.EventArg, error) {
	var data []interface{}
	if nonIndexed := def.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		var err error
		if data, err = nonIndexed.Unpack(l.Data); err != nil {
			return nil, errors.Wrapf(errors.ErrValidation, "%s data: %s", def.Name, err)
		}
	}
	topics := l.Topics[1:]
	args := make([]multisig.EventArg, 0, len(def.Inputs))
	for i, in := range def.Inputs {
		var v interface{}
		if in.Indexed {
			if len(topics) == 0 {
				return nil, errors.Wrapf(errors.ErrValidation, "%s topics: missing input %d", def.Name, i)
			}
			// One input at a time under a fixed key, names may be empty or repeated.
			field := in
			field.Name = "value"
			out := make(map[string]interface{}, 1)
			if err := abi.ParseTopicsIntoMap(out, abi.Arguments{field}, topics[:1]); err != nil {
				return nil, errors.Wrapf(errors.ErrValidation, "%s topics: %s", def.Name, err)
			}
			v, topics = out["value"], topics[1:]
		} else {
			v, data = data[0], data[1:]
		}
		args = append(args, multisig.EventArg{Name: in.Name, Value: FormatValue(v)})
	}
	return args, nil
}

// FormatValue renders a decoded ABI value as event argument text.
func FormatValue(v interface{}) string {
	switch v := v.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return common.Hash(v).Hex()
	case *big.Int:
		return v.String()
	case []byte:
		return "0x" + common.Bytes2Hex(v)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Event returns an event emitted by the contract at given address. Args
// are name and value pairs in declaration order.
func Event(address common.Address, name string, args ...interface{}) multisig.Event {
	ev := multisig.Event{Name: name, Address: address}
	for i := 0; i+1 < len(args); i += 2 {
		ev.Args = append(ev.Args, multisig.EventArg{
			Name:  fmt.Sprint(args[i]),
			Value: FormatValue(args[i+1]),
		})
	}
	return ev
}
