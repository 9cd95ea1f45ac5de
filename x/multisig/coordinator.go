package multisig

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/x/batch"
)

// PauseSelector is the selector of the pause() call proposed by emergency
// actions.
var PauseSelector = []byte{0x84, 0x56, 0xcb, 0x59}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Coordinator is the entry point to all operations on transaction records.
// It authorizes the caller found in the context and delegates to the
// components.
type Coordinator struct {
	Deps

	builder    *ProposalBuilder
	collector  *SignatureCollector
	executor   *ExecutionCoordinator
	reconciler *Reconciler
	sweeper    *ExpirySweeper
}

// NewCoordinator returns a coordinator using given collaborators.
func NewCoordinator(d Deps) (*Coordinator, error) {
	if d.Store == nil {
		return nil, errors.Wrap(errors.ErrHuman, "record store required")
	}
	if d.Gateway == nil {
		return nil, errors.Wrap(errors.ErrHuman, "chain gateway required")
	}
	if err := d.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if d.Domain.Account != d.Gateway.Account() {
		return nil, errors.Wrapf(errors.ErrValidation, "domain account %s does not match gateway account %s",
			d.Domain.Account.Hex(), d.Gateway.Account().Hex())
	}
	return &Coordinator{
		Deps:       d,
		builder:    NewProposalBuilder(d),
		collector:  NewSignatureCollector(d),
		executor:   NewExecutionCoordinator(d),
		reconciler: NewReconciler(d),
		sweeper:    NewExpirySweeper(d),
	}, nil
}

// Sweeper returns the expiry sweeper sharing this coordinator's
// collaborators.
func (c *Coordinator) Sweeper() *ExpirySweeper { return c.sweeper }

// Reconciler returns the reconciler sharing this coordinator's
// collaborators.
func (c *Coordinator) Reconciler() *Reconciler { return c.reconciler }

// Propose creates a new record. Any authenticated caller may propose.
func (c *Coordinator) Propose(ctx context.Context, req ProposalRequest) (*TransactionRecord, error) {
	return c.builder.Propose(ctx, req)
}

// ProposeBatch proposes several operations that are executed all or
// nothing. The batch is delegated to the configured MultiSend contract.
func (c *Coordinator) ProposeBatch(ctx context.Context, ops []batch.SubOperation, description string, metadata map[string]string) (*TransactionRecord, error) {
	if c.Config.MultiSend == (common.Address{}) {
		err := errors.Wrap(errors.ErrValidation, "batch execution is not configured")
		c.report(ctx, attempt{action: "propose", to: StatusPendingSignatures}, err)
		return nil, err
	}
	data, err := batch.EncodeCall(ops)
	if err != nil {
		c.report(ctx, attempt{action: "propose", to: StatusPendingSignatures}, err)
		return nil, errors.Wrap(err, "batch")
	}
	return c.builder.Propose(ctx, ProposalRequest{
		Target: c.Config.MultiSend,
		Value:  new(big.Int),
		Data:   data,
		// MultiSend must run in the context of the custody account for
		// the batch to be atomic.
		Operation:   superpool.DelegateCall,
		Description: description,
		Metadata:    metadata,
		Kind:        KindBatch,
	})
}

// EmergencyAction proposes pausing given contract.
func (c *Coordinator) EmergencyAction(ctx context.Context, target common.Address, reason string) (*TransactionRecord, error) {
	if reason == "" {
		err := errors.Field("Reason", errors.ErrValidation, "emergency action requires a reason")
		c.report(ctx, attempt{action: "propose", to: StatusPendingSignatures}, err)
		return nil, err
	}
	return c.builder.Propose(ctx, ProposalRequest{
		Target:      target,
		Value:       new(big.Int),
		Data:        append([]byte(nil), PauseSelector...),
		Operation:   superpool.Call,
		Description: "Emergency pause: " + reason,
		Metadata:    map[string]string{"reason": reason},
		Kind:        KindEmergency,
	})
}

// AddSignature adds an owner signature. The caller must be an owner.
func (c *Coordinator) AddSignature(ctx context.Context, id superpool.TxID, signer common.Address, sig []byte) (*TransactionRecord, error) {
	if err := c.requireOwner(ctx, "add_signature", id); err != nil {
		return nil, err
	}
	return c.collector.AddSignature(ctx, id, signer, sig)
}

// Execute executes a ready record. The caller must be an owner.
func (c *Coordinator) Execute(ctx context.Context, id superpool.TxID) (*ExecutionResult, error) {
	if err := c.requireOwner(ctx, "execute", id); err != nil {
		return nil, err
	}
	return c.executor.Execute(ctx, id)
}

// Reconcile resolves a record with an unknown execution outcome. The caller
// must be an owner.
func (c *Coordinator) Reconcile(ctx context.Context, id superpool.TxID) (*TransactionRecord, error) {
	if err := c.requireOwner(ctx, "reconcile", id); err != nil {
		return nil, err
	}
	return c.reconciler.Reconcile(ctx, id)
}

// GetStatus returns the record with given id. A record past its expiration
// time is expired first.
func (c *Coordinator) GetStatus(ctx context.Context, id superpool.TxID) (*TransactionRecord, error) {
	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.expirable() && superpool.IsExpired(ctx, rec.ExpiresAt) {
		if _, err := expire(ctx, c.Deps, id); err != nil {
			logger(ctx).Error("cannot expire record", "tx", id.Hex(), "err", err)
			return rec, nil
		}
		return c.Store.Get(ctx, id)
	}
	return rec, nil
}

// ListRequest selects a page of records.
type ListRequest struct {
	Status    *Status
	CreatedBy *common.Address
	// Page numbering starts at 1.
	Page  int
	Limit int
}

// ListPage is a single page of records, newest first.
type ListPage struct {
	Records    []*TransactionRecord
	TotalCount int
	Page       int
	Limit      int
	HasNext    bool
	HasPrev    bool
}

// List returns a page of records matching the request.
func (c *Coordinator) List(ctx context.Context, req ListRequest) (*ListPage, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = DefaultPageLimit
	}
	var errs error
	if req.Page < 1 {
		errs = errors.AppendField(errs, "Page", errors.Wrap(errors.ErrValidation, "must be at least 1"))
	}
	if req.Limit < 1 || req.Limit > MaxPageLimit {
		errs = errors.AppendField(errs, "Limit",
			errors.Wrapf(errors.ErrValidation, "must be between 1 and %d", MaxPageLimit))
	}
	if req.Status != nil {
		errs = errors.AppendField(errs, "Status", req.Status.Validate())
	}
	if errs != nil {
		return nil, errs
	}

	q := ListQuery{
		CreatedBy: req.CreatedBy,
		Offset:    (req.Page - 1) * req.Limit,
		Limit:     req.Limit,
	}
	if req.Status != nil {
		q.Statuses = []Status{*req.Status}
	}
	recs, total, err := c.Store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return &ListPage{
		Records:    recs,
		TotalCount: total,
		Page:       req.Page,
		Limit:      req.Limit,
		HasNext:    q.Offset+len(recs) < total,
		HasPrev:    req.Page > 1,
	}, nil
}

// AccountInfo describes the custody account.
type AccountInfo struct {
	ChainID   *big.Int
	Account   common.Address
	Threshold uint32
	Nonce     uint64
	Owners    []common.Address
}

// Info returns the current state of the custody account.
func (c *Coordinator) Info(ctx context.Context) (*AccountInfo, error) {
	qctx, cancel := withTimeout(ctx, c.Config.QueryTimeout)
	defer cancel()
	threshold, err := c.Gateway.Threshold(qctx)
	if err != nil {
		return nil, chainErr(err, "threshold")
	}
	nonce, err := c.Gateway.Nonce(qctx)
	if err != nil {
		return nil, chainErr(err, "nonce")
	}
	owners, err := c.Gateway.Owners(qctx)
	if err != nil {
		return nil, chainErr(err, "owners")
	}
	return &AccountInfo{
		ChainID:   c.Domain.ChainID,
		Account:   c.Domain.Account,
		Threshold: threshold,
		Nonce:     nonce,
		Owners:    owners,
	}, nil
}

// requireOwner returns an error unless the caller is a current owner of the
// custody account. Ownership is checked against the chain on every call.
func (c *Coordinator) requireOwner(ctx context.Context, action string, id superpool.TxID) error {
	err := c.checkOwner(ctx)
	if err != nil {
		c.report(ctx, attempt{action: action, id: id}, err)
	}
	return err
}

func (c *Coordinator) checkOwner(ctx context.Context) error {
	caller, ok := superpool.GetCaller(ctx)
	if !ok {
		return errors.Wrap(errors.ErrUnauthorized, "caller not authenticated")
	}
	qctx, cancel := withTimeout(ctx, c.Config.QueryTimeout)
	defer cancel()
	switch ok, err := c.Gateway.IsOwner(qctx, caller); {
	case err != nil:
		return chainErr(err, "owner check")
	case !ok:
		return errors.Wrapf(errors.ErrNotAuthorizedSigner, "caller %s is not an owner", caller.Hex())
	}
	return nil
}
