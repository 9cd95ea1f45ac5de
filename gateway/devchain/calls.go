package devchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/gateway"
	"github.com/rafamiziara/superpool-sub007/x/batch"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

// revertError is the failure of an inner call. Its text becomes the revert
// reason of the receipt.
type revertError string

func (e revertError) Error() string { return string(e) }

func revert(format string, args ...interface{}) error {
	return revertError(fmt.Sprintf(format, args...))
}

// call executes an operation on behalf of the account. State changes are
// written to the working tree, the caller rolls them back on error.
func (c *Chain) call(op superpool.Operation, target common.Address, value *big.Int, data []byte) ([]multisig.Event, error) {
	if op == superpool.DelegateCall {
		if target != c.multiSend {
			return nil, revert("delegate call to unknown contract %s", target.Hex())
		}
		return c.multiSendCall(value, data)
	}
	return c.exec(target, value, data)
}

// multiSendCall runs every sub operation of a batch in order. The first
// failure fails the whole batch.
func (c *Chain) multiSendCall(value *big.Int, data []byte) ([]multisig.Event, error) {
	if value.Sign() != 0 {
		return nil, revert("MultiSend does not accept value")
	}
	ops, err := batch.DecodeCall(data)
	if err != nil {
		return nil, revert("malformed batch: %s", err)
	}
	var events []multisig.Event
	for i, op := range ops {
		if op.Operation != superpool.Call {
			return nil, revert("sub operation %d: nested delegate call", i)
		}
		v := op.Value
		if v == nil {
			v = new(big.Int)
		}
		evs, err := c.exec(op.Target, v, op.Data)
		if err != nil {
			return nil, revert("sub operation %d: %s", i, err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

// exec performs a single call from the account.
func (c *Chain) exec(target common.Address, value *big.Int, data []byte) ([]multisig.Event, error) {
	if value.Sign() > 0 {
		if err := c.transfer(target, value); err != nil {
			return nil, err
		}
	}
	switch {
	case target == c.account:
		return c.selfCall(data)
	case c.pausable[target]:
		return c.pausableCall(target, data)
	}
	// Externally owned account, any payload succeeds.
	return nil, nil
}

func (c *Chain) transfer(to common.Address, value *big.Int) error {
	from, err := c.balance(c.account)
	if err != nil {
		return err
	}
	if from.Cmp(value) < 0 {
		return revert("insufficient balance: %s < %s", from, value)
	}
	dest, err := c.balance(to)
	if err != nil {
		return err
	}
	if err := c.setBalance(c.account, new(big.Int).Sub(from, value)); err != nil {
		return err
	}
	return c.setBalance(to, new(big.Int).Add(dest, value))
}

// selfCall handles owner management, which the account only allows to
// itself.
func (c *Chain) selfCall(data []byte) ([]multisig.Event, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, revert("function selector not recognized")
	}
	method, err := gateway.SafeABI.MethodById(data[:4])
	if err != nil {
		return nil, revert("function selector not recognized")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, revert("%s: %s", method.Name, err)
	}

	switch method.Name {
	case "addOwnerWithThreshold":
		owner := args[0].(common.Address)
		threshold := args[1].(*big.Int)
		if owner == (common.Address{}) || owner == c.account {
			return nil, revert("GS203: invalid owner address")
		}
		if ok, err := c.isOwner(owner); err != nil {
			return nil, err
		} else if ok {
			return nil, revert("GS204: address is already an owner")
		}
		if err := c.state.Set(ownerKey(owner), []byte{1}); err != nil {
			return nil, err
		}
		events := []multisig.Event{gateway.Event(c.account, "AddedOwner", "owner", owner)}
		return c.changeThreshold(threshold, events)
	case "removeOwner":
		owner := args[1].(common.Address)
		threshold := args[2].(*big.Int)
		if ok, err := c.isOwner(owner); err != nil {
			return nil, err
		} else if !ok {
			return nil, revert("GS205: invalid owner address provided")
		}
		if err := c.state.Delete(ownerKey(owner)); err != nil {
			return nil, err
		}
		events := []multisig.Event{gateway.Event(c.account, "RemovedOwner", "owner", owner)}
		return c.changeThreshold(threshold, events)
	case "changeThreshold":
		return c.changeThreshold(args[0].(*big.Int), nil)
	}
	return nil, revert("%s cannot be called through a transaction", method.Name)
}

func (c *Chain) changeThreshold(threshold *big.Int, events []multisig.Event) ([]multisig.Event, error) {
	owners, err := c.owners()
	if err != nil {
		return nil, err
	}
	if threshold.Sign() <= 0 {
		return nil, revert("GS202: threshold needs to be greater than 0")
	}
	if threshold.Cmp(big.NewInt(int64(len(owners)))) > 0 {
		return nil, revert("GS201: threshold cannot exceed owner count")
	}
	current, err := c.readUint64(thresholdKey)
	if err != nil {
		return nil, err
	}
	if current == threshold.Uint64() {
		return events, nil
	}
	if err := c.state.Set(thresholdKey, uint64Bytes(threshold.Uint64())); err != nil {
		return nil, err
	}
	return append(events, gateway.Event(c.account, "ChangedThreshold", "threshold", threshold)), nil
}

func (c *Chain) pausableCall(target common.Address, data []byte) ([]multisig.Event, error) {
	if len(data) < 4 {
		return nil, revert("function selector not recognized")
	}
	method, err := gateway.PausableABI.MethodById(data[:4])
	if err != nil {
		return nil, revert("function selector not recognized")
	}
	key := append(append([]byte(nil), pausedPfx...), target.Bytes()...)
	paused, err := c.state.Has(key)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "pause":
		if paused {
			return nil, revert("Pausable: paused")
		}
		if err := c.state.Set(key, []byte{1}); err != nil {
			return nil, err
		}
		return []multisig.Event{gateway.Event(target, "Paused", "account", c.account)}, nil
	case "unpause":
		if !paused {
			return nil, revert("Pausable: not paused")
		}
		if err := c.state.Delete(key); err != nil {
			return nil, err
		}
		return []multisig.Event{gateway.Event(target, "Unpaused", "account", c.account)}, nil
	}
	// View functions do not change anything.
	return nil, nil
}
