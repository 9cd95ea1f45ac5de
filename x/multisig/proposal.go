package multisig

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

const (
	maxDescriptionLength = 1024
	maxMetadataEntries   = 32
)

// ProposalRequest describes an operation to be proposed.
type ProposalRequest struct {
	Target      common.Address
	Value       *big.Int
	Data        []byte
	Operation   superpool.Operation
	Description string
	Metadata    map[string]string
	Kind        Kind
}

// Validate checks the request without consulting any external state.
func (r ProposalRequest) Validate() error {
	var errs error
	if r.Target == (common.Address{}) {
		errs = errors.AppendField(errs, "Target",
			errors.Wrap(errors.ErrValidation, "zero address"))
	}
	if r.Value != nil {
		errs = errors.AppendField(errs, "Value", validateValue(r.Value))
	}
	errs = errors.AppendField(errs, "Operation", r.Operation.Validate())
	switch n := len(r.Description); {
	case n == 0:
		errs = errors.AppendField(errs, "Description", errors.Wrap(errors.ErrValidation, "required"))
	case n > maxDescriptionLength:
		errs = errors.AppendField(errs, "Description",
			errors.Wrapf(errors.ErrValidation, "longer than %d characters", maxDescriptionLength))
	}
	if len(r.Metadata) > maxMetadataEntries {
		errs = errors.AppendField(errs, "Metadata",
			errors.Wrapf(errors.ErrValidation, "more than %d entries", maxMetadataEntries))
	}
	for k := range r.Metadata {
		if k == "" {
			errs = errors.AppendField(errs, "Metadata",
				errors.Wrap(errors.ErrValidation, "empty key"))
			break
		}
	}
	errs = errors.AppendField(errs, "Kind", r.Kind.Validate())
	return errs
}

// ProposalBuilder creates new transaction records.
type ProposalBuilder struct {
	Deps

	// mu serializes nonce allocation within this process. The store
	// rejects a nonce held by another open record, which covers
	// instances sharing a database.
	mu sync.Mutex
}

// NewProposalBuilder returns a builder using given collaborators.
func NewProposalBuilder(d Deps) *ProposalBuilder {
	return &ProposalBuilder{Deps: d}
}

// Propose validates the request, reads the threshold and nonce of the
// custody account and stores a new record awaiting signatures. The caller
// must be authenticated. Nothing is stored if any step fails.
func (b *ProposalBuilder) Propose(ctx context.Context, req ProposalRequest) (*TransactionRecord, error) {
	rec, err := b.propose(ctx, req)
	a := attempt{action: "propose", to: StatusPendingSignatures}
	if rec != nil {
		a.id = rec.ID
	}
	b.report(ctx, a, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (b *ProposalBuilder) propose(ctx context.Context, req ProposalRequest) (*TransactionRecord, error) {
	creator, ok := superpool.GetCaller(ctx)
	if !ok {
		return nil, errors.Wrap(errors.ErrUnauthorized, "proposer not authenticated")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	qctx, cancel := withTimeout(ctx, b.Config.QueryTimeout)
	defer cancel()
	threshold, err := b.Gateway.Threshold(qctx)
	if err != nil {
		return nil, chainErr(err, "threshold")
	}
	if threshold == 0 {
		return nil, errors.Wrap(errors.ErrInvalidState, "custody account has no threshold")
	}
	chainNonce, err := b.Gateway.Nonce(qctx)
	if err != nil {
		return nil, chainErr(err, "nonce")
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	now := superpool.AsUnixTime(superpool.Now(ctx))
	rec := &TransactionRecord{
		Target:             req.Target,
		Value:              new(big.Int).Set(value),
		Data:               copyBytes(req.Data),
		Operation:          req.Operation,
		Status:             StatusPendingSignatures,
		RequiredSignatures: threshold,
		CreatedBy:          creator,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          now.Add(b.Config.ProposalTTL),
		Description:        req.Description,
		Metadata:           req.Metadata,
		Kind:               req.Kind,
		Version:            1,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	retries := b.Config.MaxCASRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for i := 0; i < retries; i++ {
		nonce, err := b.nextNonce(ctx, chainNonce)
		if err != nil {
			return nil, err
		}
		rec.Nonce = nonce
		rec.ID = rec.hash(b.Domain)
		switch err := b.place(ctx, rec); {
		case err == nil:
			logger(ctx).Info("proposal created",
				"tx", rec.ID.Hex(), "nonce", rec.Nonce, "required", rec.RequiredSignatures, "kind", rec.Kind)
			return rec, nil
		case errors.ErrConflict.Is(err):
			lastErr = err
			logger(ctx).Debug("nonce taken", "nonce", nonce, "attempt", i+1)
		default:
			return nil, errors.Wrapf(err, "nonce %d", nonce)
		}
	}
	return nil, errors.Wrapf(lastErr, "gave up after %d attempts", retries)
}

// place stores rec under its id. An earlier proposal of the same
// transaction that expired or failed is superseded: the id is the same, the
// record starts a new lifecycle and no signature of the earlier one is
// carried over.
func (b *ProposalBuilder) place(ctx context.Context, rec *TransactionRecord) error {
	err := b.Store.Create(ctx, rec)
	if !errors.ErrAlreadyExists.Is(err) {
		return err
	}
	prev, gerr := b.Store.Get(ctx, rec.ID)
	if gerr != nil {
		return gerr
	}
	switch {
	case prev.Status.Supersedable():
	case prev.Status.IsOpen():
		// Opened by another instance after the nonce was chosen.
		return errors.Wrapf(errors.ErrConflict, "record %s is %s", rec.ID.Hex(), prev.Status)
	default:
		return err
	}
	if err := b.Store.Supersede(ctx, prev.Version, rec); err != nil {
		return err
	}
	logger(ctx).Info("earlier proposal superseded", "tx", rec.ID.Hex(), "previous", prev.Status)
	return nil
}

// nextNonce returns the lowest nonce, starting at the chain nonce, that no
// open record holds. The chain reports the nonce of the next executed
// transaction only. Nonces of expired or failed proposals are allocated
// again, so that no open record waits behind a nonce nothing will execute.
func (b *ProposalBuilder) nextNonce(ctx context.Context, chainNonce uint64) (uint64, error) {
	open, _, err := b.Store.List(ctx, ListQuery{Statuses: OpenStatuses})
	if err != nil {
		return 0, errors.Wrap(err, "open records")
	}
	held := make(map[uint64]bool, len(open))
	for _, r := range open {
		held[r.Nonce] = true
	}
	next := chainNonce
	for held[next] {
		next++
	}
	return next, nil
}
