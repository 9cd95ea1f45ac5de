package multisig

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gogo/protobuf/proto"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/orm"
)

// The types below are the protobuf wire representation of a record. They
// are kept separate from the domain types so that addresses, hashes and
// amounts can use their natural Go types everywhere else.

type recordMsg struct {
	ID                  []byte            `protobuf:"bytes,1,opt,name=id,proto3"`
	Target              []byte            `protobuf:"bytes,2,opt,name=target,proto3"`
	Value               []byte            `protobuf:"bytes,3,opt,name=value,proto3"`
	Data                []byte            `protobuf:"bytes,4,opt,name=data,proto3"`
	Operation           uint32            `protobuf:"varint,5,opt,name=operation,proto3"`
	Nonce               uint64            `protobuf:"varint,6,opt,name=nonce,proto3"`
	Status              int32             `protobuf:"varint,7,opt,name=status,proto3"`
	Signatures          []*signatureMsg   `protobuf:"bytes,8,rep,name=signatures"`
	RequiredSignatures  uint32            `protobuf:"varint,9,opt,name=required_signatures,proto3"`
	CurrentSignatures   uint32            `protobuf:"varint,10,opt,name=current_signatures,proto3"`
	CreatedBy           []byte            `protobuf:"bytes,11,opt,name=created_by,proto3"`
	CreatedAt           int64             `protobuf:"varint,12,opt,name=created_at,proto3"`
	UpdatedAt           int64             `protobuf:"varint,13,opt,name=updated_at,proto3"`
	ExecutedAt          int64             `protobuf:"varint,14,opt,name=executed_at,proto3"`
	ExpiresAt           int64             `protobuf:"varint,15,opt,name=expires_at,proto3"`
	Description         string            `protobuf:"bytes,16,opt,name=description,proto3"`
	Metadata            map[string]string `protobuf:"bytes,17,rep,name=metadata" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	Kind                int32             `protobuf:"varint,18,opt,name=kind,proto3"`
	Version             uint64            `protobuf:"varint,19,opt,name=version,proto3"`
	NeedsReconciliation bool              `protobuf:"varint,20,opt,name=needs_reconciliation,proto3"`
	Execution           *executionMsg     `protobuf:"bytes,21,opt,name=execution"`
}

func (m *recordMsg) Reset()         { *m = recordMsg{} }
func (m *recordMsg) String() string { return proto.CompactTextString(m) }
func (*recordMsg) ProtoMessage()    {}

type signatureMsg struct {
	Signer    []byte `protobuf:"bytes,1,opt,name=signer,proto3"`
	Signature []byte `protobuf:"bytes,2,opt,name=signature,proto3"`
	AddedAt   int64  `protobuf:"varint,3,opt,name=added_at,proto3"`
}

func (m *signatureMsg) Reset()         { *m = signatureMsg{} }
func (m *signatureMsg) String() string { return proto.CompactTextString(m) }
func (*signatureMsg) ProtoMessage()    {}

type executionMsg struct {
	SubmissionHash []byte      `protobuf:"bytes,1,opt,name=submission_hash,proto3"`
	BlockNumber    uint64      `protobuf:"varint,2,opt,name=block_number,proto3"`
	BlockHash      []byte      `protobuf:"bytes,3,opt,name=block_hash,proto3"`
	GasUsed        uint64      `protobuf:"varint,4,opt,name=gas_used,proto3"`
	Events         []*eventMsg `protobuf:"bytes,5,rep,name=events"`
	Error          string      `protobuf:"bytes,6,opt,name=error,proto3"`
	SubmittedAt    int64       `protobuf:"varint,7,opt,name=submitted_at,proto3"`
}

func (m *executionMsg) Reset()         { *m = executionMsg{} }
func (m *executionMsg) String() string { return proto.CompactTextString(m) }
func (*executionMsg) ProtoMessage()    {}

type eventMsg struct {
	Name    string         `protobuf:"bytes,1,opt,name=name,proto3"`
	Address []byte         `protobuf:"bytes,2,opt,name=address,proto3"`
	Args    []*eventArgMsg `protobuf:"bytes,3,rep,name=args"`
}

func (m *eventMsg) Reset()         { *m = eventMsg{} }
func (m *eventMsg) String() string { return proto.CompactTextString(m) }
func (*eventMsg) ProtoMessage()    {}

type eventArgMsg struct {
	Name  string `protobuf:"bytes,1,opt,name=name,proto3"`
	Value string `protobuf:"bytes,2,opt,name=value,proto3"`
}

func (m *eventArgMsg) Reset()         { *m = eventArgMsg{} }
func (m *eventArgMsg) String() string { return proto.CompactTextString(m) }
func (*eventArgMsg) ProtoMessage()    {}

var _ orm.Model = (*TransactionRecord)(nil)

// Marshal serializes the record using protobuf.
func (r *TransactionRecord) Marshal() ([]byte, error) {
	return proto.Marshal(r.toMsg())
}

// Unmarshal loads the record from its protobuf serialization.
func (r *TransactionRecord) Unmarshal(raw []byte) error {
	var m recordMsg
	if err := proto.Unmarshal(raw, &m); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	rec, err := fromMsg(&m)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

func (r *TransactionRecord) toMsg() *recordMsg {
	m := &recordMsg{
		ID:                  r.ID.Bytes(),
		Target:              r.Target.Bytes(),
		Data:                r.Data,
		Operation:           uint32(r.Operation),
		Nonce:               r.Nonce,
		Status:              int32(r.Status),
		RequiredSignatures:  r.RequiredSignatures,
		CurrentSignatures:   r.CurrentSignatures,
		CreatedBy:           r.CreatedBy.Bytes(),
		CreatedAt:           int64(r.CreatedAt),
		UpdatedAt:           int64(r.UpdatedAt),
		ExecutedAt:          int64(r.ExecutedAt),
		ExpiresAt:           int64(r.ExpiresAt),
		Description:         r.Description,
		Metadata:            r.Metadata,
		Kind:                int32(r.Kind),
		Version:             r.Version,
		NeedsReconciliation: r.NeedsReconciliation,
	}
	if r.Value != nil {
		m.Value = r.Value.Bytes()
	}
	for _, s := range r.Signatures {
		m.Signatures = append(m.Signatures, &signatureMsg{
			Signer:    s.Signer.Bytes(),
			Signature: s.Signature,
			AddedAt:   int64(s.AddedAt),
		})
	}
	if e := r.Execution; e != nil {
		em := &executionMsg{
			SubmissionHash: e.SubmissionHash.Bytes(),
			BlockNumber:    e.BlockNumber,
			BlockHash:      e.BlockHash.Bytes(),
			GasUsed:        e.GasUsed,
			Error:          e.Error,
			SubmittedAt:    int64(e.SubmittedAt),
		}
		for _, ev := range e.Events {
			evm := &eventMsg{Name: ev.Name, Address: ev.Address.Bytes()}
			for _, a := range ev.Args {
				evm.Args = append(evm.Args, &eventArgMsg{Name: a.Name, Value: a.Value})
			}
			em.Events = append(em.Events, evm)
		}
		m.Execution = em
	}
	return m
}

func fromMsg(m *recordMsg) (*TransactionRecord, error) {
	if len(m.ID) != superpool.TxIDLength {
		return nil, errors.Wrapf(errors.ErrDatabase, "id has %d bytes", len(m.ID))
	}
	r := &TransactionRecord{
		ID:                  common.BytesToHash(m.ID),
		Target:              common.BytesToAddress(m.Target),
		Value:               new(big.Int).SetBytes(m.Value),
		Data:                m.Data,
		Operation:           superpool.Operation(m.Operation),
		Nonce:               m.Nonce,
		Status:              Status(m.Status),
		RequiredSignatures:  m.RequiredSignatures,
		CurrentSignatures:   m.CurrentSignatures,
		CreatedBy:           common.BytesToAddress(m.CreatedBy),
		CreatedAt:           superpool.UnixTime(m.CreatedAt),
		UpdatedAt:           superpool.UnixTime(m.UpdatedAt),
		ExecutedAt:          superpool.UnixTime(m.ExecutedAt),
		ExpiresAt:           superpool.UnixTime(m.ExpiresAt),
		Description:         m.Description,
		Metadata:            m.Metadata,
		Kind:                Kind(m.Kind),
		Version:             m.Version,
		NeedsReconciliation: m.NeedsReconciliation,
	}
	for _, s := range m.Signatures {
		r.Signatures = append(r.Signatures, Signature{
			Signer:    common.BytesToAddress(s.Signer),
			Signature: s.Signature,
			AddedAt:   superpool.UnixTime(s.AddedAt),
		})
	}
	if em := m.Execution; em != nil {
		e := &ExecutionResult{
			SubmissionHash: common.BytesToHash(em.SubmissionHash),
			BlockNumber:    em.BlockNumber,
			BlockHash:      common.BytesToHash(em.BlockHash),
			GasUsed:        em.GasUsed,
			Error:          em.Error,
			SubmittedAt:    superpool.UnixTime(em.SubmittedAt),
		}
		for _, evm := range em.Events {
			ev := Event{Name: evm.Name, Address: common.BytesToAddress(evm.Address)}
			for _, a := range evm.Args {
				ev.Args = append(ev.Args, EventArg{Name: a.Name, Value: a.Value})
			}
			e.Events = append(e.Events, ev)
		}
		r.Execution = e
	}
	return r, nil
}
