package multisig

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// Status is the lifecycle state of a transaction record.
type Status int32

const (
	StatusPendingSignatures Status = iota + 1
	StatusReadyToExecute
	StatusExecuting
	StatusCompleted
	StatusFailed
	StatusExpired
)

var statusNames = map[Status]string{
	StatusPendingSignatures: "pending_signatures",
	StatusReadyToExecute:    "ready_to_execute",
	StatusExecuting:         "executing",
	StatusCompleted:         "completed",
	StatusFailed:            "failed",
	StatusExpired:           "expired",
}

// transitions lists every allowed status change. Anything not listed here is
// rejected.
var transitions = map[Status][]Status{
	StatusPendingSignatures: {StatusReadyToExecute, StatusExpired},
	StatusReadyToExecute:    {StatusExecuting, StatusExpired},
	StatusExecuting:         {StatusCompleted, StatusFailed},
}

// ParseStatus returns the status with given name.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if strings.EqualFold(s, name) {
			return st, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrValidation, "unknown status %q", s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Validate returns an error if this is not a known status.
func (s Status) Validate() error {
	if _, ok := statusNames[s]; !ok {
		return errors.Wrapf(errors.ErrValidation, "unknown status %d", s)
	}
	return nil
}

// IsTerminal returns true for statuses that a record never leaves.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// IsOpen returns true for statuses in which a record holds its nonce.
func (s Status) IsOpen() bool {
	return s == StatusPendingSignatures || s == StatusReadyToExecute || s == StatusExecuting
}

// OpenStatuses lists every status in which a record holds its nonce.
var OpenStatuses = []Status{StatusPendingSignatures, StatusReadyToExecute, StatusExecuting}

// Supersedable is true for terminal statuses that may be replaced by a new
// proposal of the same transaction. Such a record never consumed its nonce
// unless the chain reverted it, and a reverted nonce is never allocated
// again.
func (s Status) Supersedable() bool {
	return s == StatusExpired || s == StatusFailed
}

// CanTransitionTo returns true if a record in this status may be moved to
// the next one.
func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// acceptsSignatures is true while signatures may still be added. Approvals
// beyond the threshold are accepted until execution is claimed.
func (s Status) acceptsSignatures() bool {
	return s == StatusPendingSignatures || s == StatusReadyToExecute
}

// Message returns a human readable description of the status.
func (s Status) Message() string {
	switch s {
	case StatusPendingSignatures:
		return "Waiting for owner signatures"
	case StatusReadyToExecute:
		return "Signature threshold reached, ready to execute"
	case StatusExecuting:
		return "Submitted for execution"
	case StatusCompleted:
		return "Executed successfully"
	case StatusFailed:
		return "Execution failed"
	case StatusExpired:
		return "Expired before execution"
	default:
		return "Unknown status"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return errors.Wrap(errors.ErrValidation, "status must be a string")
	}
	st, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Kind tells how a record was proposed.
type Kind int32

const (
	KindStandard Kind = iota
	KindBatch
	KindEmergency
)

var kindNames = map[Kind]string{
	KindStandard:  "standard",
	KindBatch:     "batch",
	KindEmergency: "emergency",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) Validate() error {
	if _, ok := kindNames[k]; !ok {
		return errors.Wrapf(errors.ErrValidation, "unknown kind %d", k)
	}
	return nil
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return errors.Wrap(errors.ErrValidation, "kind must be a string")
	}
	for kind, n := range kindNames {
		if strings.EqualFold(n, name) {
			*k = kind
			return nil
		}
	}
	return errors.Wrapf(errors.ErrValidation, "unknown kind %q", name)
}

// Signature is a single owner approval of a record.
type Signature struct {
	Signer    common.Address
	Signature []byte
	AddedAt   superpool.UnixTime
}

// EventArg is a single decoded argument of an emitted event. Values are
// rendered as strings so that the event list has a fixed shape.
type EventArg struct {
	Name  string
	Value string
}

// Event is an event emitted while executing a record.
type Event struct {
	Name    string
	Address common.Address
	Args    []EventArg
}

// ExecutionResult describes the submission of a record and, once known, its
// outcome.
type ExecutionResult struct {
	SubmissionHash common.Hash
	BlockNumber    uint64
	BlockHash      common.Hash
	GasUsed        uint64
	Events         []Event
	// Error is set when the execution was rejected or reverted.
	Error       string
	SubmittedAt superpool.UnixTime
}

// Submitted returns true if the submission hash is known.
func (r *ExecutionResult) Submitted() bool {
	return r != nil && r.SubmissionHash != (common.Hash{})
}

// TransactionRecord is the state of a single proposal.
type TransactionRecord struct {
	ID        superpool.TxID
	Target    common.Address
	Value     *big.Int
	Data      []byte
	Operation superpool.Operation
	Nonce     uint64
	Status    Status

	Signatures []Signature
	// RequiredSignatures is the threshold captured at proposal time.
	RequiredSignatures uint32
	CurrentSignatures  uint32

	CreatedBy  common.Address
	CreatedAt  superpool.UnixTime
	UpdatedAt  superpool.UnixTime
	ExecutedAt superpool.UnixTime
	ExpiresAt  superpool.UnixTime

	Description string
	Metadata    map[string]string
	Kind        Kind

	// Version is incremented by every successful store write.
	Version uint64

	NeedsReconciliation bool
	Execution           *ExecutionResult
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Validate checks the record invariants.
func (r *TransactionRecord) Validate() error {
	var errs error
	if r.ID == (superpool.TxID{}) {
		errs = errors.AppendField(errs, "ID", errors.ErrEmpty)
	}
	if r.Target == (common.Address{}) {
		errs = errors.AppendField(errs, "Target", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Value", validateValue(r.Value))
	errs = errors.AppendField(errs, "Operation", r.Operation.Validate())
	errs = errors.AppendField(errs, "Status", r.Status.Validate())
	errs = errors.AppendField(errs, "Kind", r.Kind.Validate())
	if r.RequiredSignatures == 0 {
		errs = errors.AppendField(errs, "RequiredSignatures", errors.ErrEmpty)
	}
	if int(r.CurrentSignatures) != len(r.Signatures) {
		errs = errors.AppendField(errs, "CurrentSignatures",
			errors.Wrapf(errors.ErrValidation, "%d signatures, counter says %d", len(r.Signatures), r.CurrentSignatures))
	}
	seen := make(map[common.Address]struct{}, len(r.Signatures))
	for i, s := range r.Signatures {
		if len(s.Signature) != superpool.SignatureLength {
			errs = errors.AppendField(errs, "Signatures",
				errors.Wrapf(errors.ErrValidation, "signature %d has %d bytes", i, len(s.Signature)))
		}
		if _, ok := seen[s.Signer]; ok {
			errs = errors.AppendField(errs, "Signatures",
				errors.Wrapf(errors.ErrDuplicateSigner, "signer %s", s.Signer.Hex()))
		}
		seen[s.Signer] = struct{}{}
	}
	if r.CreatedAt.IsZero() {
		errs = errors.AppendField(errs, "CreatedAt", errors.ErrEmpty)
	}
	if r.ExpiresAt <= r.CreatedAt {
		errs = errors.AppendField(errs, "ExpiresAt",
			errors.Wrap(errors.ErrValidation, "must be after creation"))
	}
	if r.Description == "" {
		errs = errors.AppendField(errs, "Description", errors.ErrEmpty)
	}
	if r.Version == 0 {
		errs = errors.AppendField(errs, "Version", errors.ErrEmpty)
	}
	if r.NeedsReconciliation && r.Status != StatusExecuting {
		errs = errors.AppendField(errs, "NeedsReconciliation",
			errors.Wrapf(errors.ErrInvalidState, "flag set in %s", r.Status))
	}
	return errs
}

func validateValue(v *big.Int) error {
	switch {
	case v == nil:
		return errors.Wrap(errors.ErrEmpty, "value")
	case v.Sign() < 0:
		return errors.Wrap(errors.ErrValidation, "negative value")
	case v.Cmp(maxUint256) > 0:
		return errors.Wrap(errors.ErrValidation, "value does not fit in 256 bits")
	}
	return nil
}

// HasSigner returns true if given address already signed this record.
func (r *TransactionRecord) HasSigner(addr common.Address) bool {
	for _, s := range r.Signatures {
		if s.Signer == addr {
			return true
		}
	}
	return false
}

// Signers returns the addresses that signed this record, in signing order.
func (r *TransactionRecord) Signers() []common.Address {
	out := make([]common.Address, len(r.Signatures))
	for i, s := range r.Signatures {
		out[i] = s.Signer
	}
	return out
}

// ReadyToExecute returns true once the threshold is reached.
func (r *TransactionRecord) ReadyToExecute() bool {
	return r.Status == StatusReadyToExecute
}

// expirable is true if the record is in a status from which it can expire.
func (r *TransactionRecord) expirable() bool {
	return r.Status.CanTransitionTo(StatusExpired)
}

// setStatus moves the record to the next status. Transitions that are not
// part of the status graph are rejected.
func (r *TransactionRecord) setStatus(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return errors.Wrapf(errors.ErrInvalidState, "cannot move from %s to %s", r.Status, next)
	}
	r.Status = next
	return nil
}

// Copy returns a deep copy of the record.
func (r *TransactionRecord) Copy() *TransactionRecord {
	c := *r
	if r.Value != nil {
		c.Value = new(big.Int).Set(r.Value)
	}
	c.Data = copyBytes(r.Data)
	if r.Signatures != nil {
		c.Signatures = make([]Signature, len(r.Signatures))
		for i, s := range r.Signatures {
			s.Signature = copyBytes(s.Signature)
			c.Signatures[i] = s
		}
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.Execution != nil {
		e := *r.Execution
		if e.Events != nil {
			e.Events = make([]Event, len(r.Execution.Events))
			for i, ev := range r.Execution.Events {
				ev.Args = append([]EventArg(nil), ev.Args...)
				e.Events[i] = ev
			}
		}
		c.Execution = &e
	}
	return &c
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
