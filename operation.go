package superpool

import (
	"encoding/json"

	"github.com/rafamiziara/superpool-sub007/errors"
)

// Operation is the kind of call the custody account performs.
type Operation uint8

const (
	// Call is a regular message call.
	Call Operation = 0
	// DelegateCall executes the target code in the context of the custody
	// account.
	DelegateCall Operation = 1
)

var operationNames = map[Operation]string{
	Call:         "call",
	DelegateCall: "delegate_call",
}

// ParseOperation returns the operation with given name.
func ParseOperation(s string) (Operation, error) {
	for op, name := range operationNames {
		if name == s {
			return op, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrValidation, "unknown operation %q", s)
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown"
}

// Validate returns an error if this is not a known operation.
func (o Operation) Validate() error {
	if _, ok := operationNames[o]; !ok {
		return errors.Wrapf(errors.ErrValidation, "unknown operation %d", o)
	}
	return nil
}

// MarshalJSON serializes the operation as its name.
func (o Operation) MarshalJSON() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(o.String())
}

// UnmarshalJSON accepts both the operation name and its numeric value.
func (o *Operation) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		op, err := ParseOperation(name)
		if err != nil {
			return err
		}
		*o = op
		return nil
	}

	var n uint8
	if err := json.Unmarshal(raw, &n); err != nil {
		return errors.Wrap(errors.ErrValidation, "invalid operation format")
	}
	op := Operation(n)
	if err := op.Validate(); err != nil {
		return err
	}
	*o = op
	return nil
}
