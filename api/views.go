package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/batch"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
)

// ProposeRequest is the body of POST /transactions.
type ProposeRequest struct {
	To          string              `json:"to"`
	Value       string              `json:"value"`
	Data        hexutil.Bytes       `json:"data"`
	Operation   superpool.Operation `json:"operation"`
	Description string              `json:"description"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
}

func (r ProposeRequest) proposal() (multisig.ProposalRequest, error) {
	var errs error
	to, err := superpool.ParseAddress(r.To)
	errs = errors.AppendField(errs, "To", err)
	value, err := batch.ParseValue(r.Value)
	errs = errors.AppendField(errs, "Value", err)
	if errs != nil {
		return multisig.ProposalRequest{}, errs
	}
	return multisig.ProposalRequest{
		Target:      to,
		Value:       value,
		Data:        r.Data,
		Operation:   r.Operation,
		Description: r.Description,
		Metadata:    r.Metadata,
	}, nil
}

// ProposeBatchRequest is the body of POST /transactions/batch.
type ProposeBatchRequest struct {
	Operations  []batch.SubOperation `json:"operations"`
	Description string               `json:"description"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
}

// EmergencyRequest is the body of POST /transactions/emergency.
type EmergencyRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// ProposalView is returned by every proposing endpoint.
type ProposalView struct {
	ID                 superpool.TxID     `json:"id"`
	Nonce              uint64             `json:"nonce"`
	Status             multisig.Status    `json:"status"`
	RequiredSignatures uint32             `json:"requiredSignatures"`
	CurrentSignatures  uint32             `json:"currentSignatures"`
	ExpiresAt          superpool.UnixTime `json:"expiresAt"`
}

func newProposalView(rec *multisig.TransactionRecord) ProposalView {
	return ProposalView{
		ID:                 rec.ID,
		Nonce:              rec.Nonce,
		Status:             rec.Status,
		RequiredSignatures: rec.RequiredSignatures,
		CurrentSignatures:  rec.CurrentSignatures,
		ExpiresAt:          rec.ExpiresAt,
	}
}

// SignatureRequest is the body of POST /transactions/{id}/signatures.
type SignatureRequest struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// SignatureView is returned after a signature was added.
type SignatureView struct {
	CurrentSignatures  uint32 `json:"currentSignatures"`
	RequiredSignatures uint32 `json:"requiredSignatures"`
	ReadyToExecute     bool   `json:"readyToExecute"`
}

// ExecutionView describes the submission of a record.
type ExecutionView struct {
	Success        bool               `json:"success"`
	SubmissionHash *common.Hash       `json:"submissionHash,omitempty"`
	BlockNumber    uint64             `json:"blockNumber,omitempty"`
	BlockHash      *common.Hash       `json:"blockHash,omitempty"`
	GasUsed        uint64             `json:"gasUsed,omitempty"`
	Events         []EventView        `json:"events,omitempty"`
	Error          string             `json:"error,omitempty"`
	SubmittedAt    superpool.UnixTime `json:"submittedAt,omitempty"`
}

// EventView is an event emitted during execution.
type EventView struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
	Args    []EventArgView `json:"args,omitempty"`
}

// EventArgView is one event argument. Args are listed in declaration
// order and an unnamed argument keeps its position with an empty name.
type EventArgView struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

func newExecutionView(res *multisig.ExecutionResult, success bool) *ExecutionView {
	if res == nil {
		return nil
	}
	v := &ExecutionView{
		Success:     success,
		BlockNumber: res.BlockNumber,
		GasUsed:     res.GasUsed,
		Error:       res.Error,
		SubmittedAt: res.SubmittedAt,
	}
	if res.Submitted() {
		h := res.SubmissionHash
		v.SubmissionHash = &h
	}
	if res.BlockHash != (common.Hash{}) {
		h := res.BlockHash
		v.BlockHash = &h
	}
	for _, ev := range res.Events {
		e := EventView{Name: ev.Name, Address: ev.Address}
		for _, a := range ev.Args {
			e.Args = append(e.Args, EventArgView{Name: a.Name, Value: a.Value})
		}
		v.Events = append(v.Events, e)
	}
	return v
}

// RecordView is the full state of a record.
type RecordView struct {
	ID                  superpool.TxID      `json:"id"`
	To                  common.Address      `json:"to"`
	Value               string              `json:"value"`
	Data                hexutil.Bytes       `json:"data"`
	Operation           superpool.Operation `json:"operation"`
	Nonce               uint64              `json:"nonce"`
	Kind                multisig.Kind       `json:"kind"`
	Status              multisig.Status     `json:"status"`
	StatusMessage       string              `json:"statusMessage"`
	RequiredSignatures  uint32              `json:"requiredSignatures"`
	CurrentSignatures   uint32              `json:"currentSignatures"`
	Signatures          []SignatureEntry    `json:"signatures"`
	CreatedBy           common.Address      `json:"createdBy"`
	CreatedAt           superpool.UnixTime  `json:"createdAt"`
	UpdatedAt           superpool.UnixTime  `json:"updatedAt"`
	ExecutedAt          superpool.UnixTime  `json:"executedAt,omitempty"`
	ExpiresAt           superpool.UnixTime  `json:"expiresAt"`
	Description         string              `json:"description"`
	Metadata            map[string]string   `json:"metadata,omitempty"`
	NeedsReconciliation bool                `json:"needsReconciliation,omitempty"`
	Execution           *ExecutionView      `json:"execution,omitempty"`
}

// SignatureEntry is a single approval of a record.
type SignatureEntry struct {
	Signer    common.Address     `json:"signer"`
	Signature hexutil.Bytes      `json:"signature"`
	AddedAt   superpool.UnixTime `json:"addedAt"`
}

func newRecordView(rec *multisig.TransactionRecord) RecordView {
	v := RecordView{
		ID:                  rec.ID,
		To:                  rec.Target,
		Value:               "0",
		Data:                rec.Data,
		Operation:           rec.Operation,
		Nonce:               rec.Nonce,
		Kind:                rec.Kind,
		Status:              rec.Status,
		StatusMessage:       rec.Status.Message(),
		RequiredSignatures:  rec.RequiredSignatures,
		CurrentSignatures:   rec.CurrentSignatures,
		Signatures:          make([]SignatureEntry, 0, len(rec.Signatures)),
		CreatedBy:           rec.CreatedBy,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
		ExecutedAt:          rec.ExecutedAt,
		ExpiresAt:           rec.ExpiresAt,
		Description:         rec.Description,
		Metadata:            rec.Metadata,
		NeedsReconciliation: rec.NeedsReconciliation,
		Execution:           newExecutionView(rec.Execution, rec.Status == multisig.StatusCompleted),
	}
	if rec.Value != nil {
		v.Value = rec.Value.String()
	}
	if rec.NeedsReconciliation {
		v.StatusMessage += ", outcome unknown and awaiting reconciliation"
	}
	for _, s := range rec.Signatures {
		v.Signatures = append(v.Signatures, SignatureEntry{Signer: s.Signer, Signature: s.Signature, AddedAt: s.AddedAt})
	}
	return v
}

// ListView is a page of records.
type ListView struct {
	Records    []RecordView `json:"records"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	HasNext    bool         `json:"hasNext"`
	HasPrev    bool         `json:"hasPrev"`
}

// InfoView describes the service and the custody account.
type InfoView struct {
	Version   string           `json:"version"`
	ChainID   string           `json:"chainId"`
	Account   common.Address   `json:"account"`
	Threshold uint32           `json:"threshold"`
	Nonce     uint64           `json:"nonce"`
	Owners    []common.Address `json:"owners"`
}
