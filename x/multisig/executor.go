package multisig

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// ExecutionCoordinator submits ready records to the chain.
type ExecutionCoordinator struct {
	Deps
}

// NewExecutionCoordinator returns a coordinator using given collaborators.
func NewExecutionCoordinator(d Deps) *ExecutionCoordinator {
	return &ExecutionCoordinator{Deps: d}
}

// Execute claims a ready record and submits it to the chain. The claim is
// stored before anything is submitted, so of many concurrent callers only
// one ever reaches the gateway. The others get ErrInvalidState or
// ErrConflict.
//
// An explicit rejection moves the record to failed and ErrExecutionFailed
// is returned together with the result. If the outcome cannot be
// determined, the record stays executing, is flagged for reconciliation and
// ErrChainUnavailable is returned. The submission hash is part of the
// returned result whenever it is known.
func (e *ExecutionCoordinator) Execute(ctx context.Context, id superpool.TxID) (*ExecutionResult, error) {
	rec, err := e.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	// Once claimed the record must reach a well defined state even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	l := logger(ctx).With("tx", id.Hex(), "nonce", rec.Nonce)

	sctx, cancel := withTimeout(ctx, e.Config.SubmitTimeout)
	hash, err := e.Gateway.Submit(sctx, rec)
	cancel()
	if err != nil {
		if isRejection(err) {
			l.Info("submission rejected", "err", err)
			res, ferr := e.finalize(ctx, id, nil, err.Error())
			if ferr != nil {
				return nil, ferr
			}
			return res, errors.Wrap(errors.ErrExecutionFailed, err.Error())
		}
		l.Error("submission outcome unknown", "err", err)
		res, ferr := e.flag(ctx, id, common.Hash{})
		if ferr != nil {
			return nil, ferr
		}
		return res, errors.Wrapf(errors.ErrChainUnavailable, "submission outcome unknown, reconciliation needed: %s", err)
	}
	l.Info("submitted", "hash", hash.Hex())

	if _, err := updateRecord(ctx, e.Store, id, e.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
		if rec.Status != StatusExecuting {
			return false, errors.Wrapf(errors.ErrInvalidState, "record is %s", rec.Status)
		}
		rec.Execution.SubmissionHash = hash
		return true, nil
	}); err != nil {
		// Not fatal, the hash is stored again with the final outcome.
		l.Error("cannot store submission hash", "hash", hash.Hex(), "err", err)
	}

	cctx, cancel := withTimeout(ctx, e.Config.ConfirmTimeout)
	receipt, err := e.Gateway.AwaitConfirmation(cctx, hash)
	cancel()
	if err != nil {
		l.Error("confirmation not received", "hash", hash.Hex(), "err", err)
		res, ferr := e.flag(ctx, id, hash)
		if ferr != nil {
			return nil, ferr
		}
		return res, errors.Wrapf(errors.ErrChainUnavailable,
			"submitted as %s, confirmation not received, reconciliation needed: %s", hash.Hex(), err)
	}

	var failure string
	if !receipt.Success {
		failure = receipt.RevertReason
		if failure == "" {
			failure = "execution reverted"
		}
	}
	res, err := e.finalize(ctx, id, receipt, failure)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return res, errors.Wrapf(errors.ErrExecutionFailed, "%s reverted: %s", hash.Hex(), failure)
	}
	return res, nil
}

// claim moves a ready record to executing.
func (e *ExecutionCoordinator) claim(ctx context.Context, id superpool.TxID) (*TransactionRecord, error) {
	a := attempt{action: "execute", id: id, to: StatusExecuting}
	rec, err := e.Store.Get(ctx, id)
	if err == nil {
		a.from = rec.Status
		err = e.checkExecutable(ctx, rec)
	}
	if err == nil {
		// The nonce check consults the chain and so must not be part of
		// the compare and swap cycle.
		err = e.checkNonce(ctx, rec)
	}
	if err == nil {
		now := superpool.AsUnixTime(superpool.Now(ctx))
		rec, err = updateRecord(ctx, e.Store, id, e.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
			a.from = rec.Status
			if err := e.checkExecutable(ctx, rec); err != nil {
				return false, err
			}
			if err := rec.setStatus(StatusExecuting); err != nil {
				return false, err
			}
			rec.Execution = &ExecutionResult{SubmittedAt: now}
			return true, nil
		})
	}
	if errors.ErrExpired.Is(err) {
		a.to = StatusExpired
		expireLazily(ctx, e.Deps, id)
	}
	e.report(ctx, a, err)
	if err != nil {
		return nil, err
	}
	logger(ctx).Info("execution claimed", "tx", id.Hex())
	return rec, nil
}

func (e *ExecutionCoordinator) checkExecutable(ctx context.Context, rec *TransactionRecord) error {
	if rec.Status == StatusExpired || (rec.expirable() && superpool.IsExpired(ctx, rec.ExpiresAt)) {
		return errors.Wrapf(errors.ErrExpired, "expired at %s", rec.ExpiresAt)
	}
	if rec.Status != StatusReadyToExecute {
		return errors.Wrapf(errors.ErrInvalidState, "record is %s", rec.Status)
	}
	if rec.CurrentSignatures < rec.RequiredSignatures {
		return errors.Wrapf(errors.ErrInsufficientSignatures, "%d of %d", rec.CurrentSignatures, rec.RequiredSignatures)
	}
	return nil
}

// checkNonce makes sure the custody account executes this record next.
// Records are executed in nonce order, so a record queued behind another
// one is not ready yet, and a record whose nonce was consumed by a
// different transaction can never be executed.
func (e *ExecutionCoordinator) checkNonce(ctx context.Context, rec *TransactionRecord) error {
	qctx, cancel := withTimeout(ctx, e.Config.QueryTimeout)
	defer cancel()
	current, err := e.Gateway.Nonce(qctx)
	if err != nil {
		return chainErr(err, "nonce")
	}
	switch {
	case rec.Nonce > current:
		return errors.Wrapf(errors.ErrInvalidState, "queued behind nonce %d", current)
	case rec.Nonce < current:
		return errors.Wrapf(errors.ErrInvalidState, "nonce %d already used", rec.Nonce)
	}
	return nil
}

// finalize moves an executing record to completed or, when failure is not
// empty, to failed.
func (e *ExecutionCoordinator) finalize(ctx context.Context, id superpool.TxID, receipt *Receipt, failure string) (*ExecutionResult, error) {
	return finalize(ctx, e.Deps, "finalize", id, receipt, failure)
}

func finalize(ctx context.Context, d Deps, action string, id superpool.TxID, receipt *Receipt, failure string) (*ExecutionResult, error) {
	next := StatusCompleted
	if failure != "" {
		next = StatusFailed
	}
	a := attempt{action: action, id: id, from: StatusExecuting, to: next}
	now := superpool.AsUnixTime(superpool.Now(ctx))
	rec, err := updateRecord(ctx, d.Store, id, d.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
		a.from = rec.Status
		if err := rec.setStatus(next); err != nil {
			return false, err
		}
		if rec.Execution == nil {
			rec.Execution = &ExecutionResult{}
		}
		if receipt != nil {
			rec.Execution.SubmissionHash = receipt.TxHash
			rec.Execution.BlockNumber = receipt.BlockNumber
			rec.Execution.BlockHash = receipt.BlockHash
			rec.Execution.GasUsed = receipt.GasUsed
			rec.Execution.Events = receipt.Events
		}
		rec.Execution.Error = failure
		rec.NeedsReconciliation = false
		rec.ExecutedAt = now
		return true, nil
	})
	d.report(ctx, a, err)
	if err != nil {
		return nil, err
	}
	logger(ctx).Info("execution finalized", "tx", id.Hex(), "status", rec.Status)
	res := *rec.Execution
	return &res, nil
}

// flag marks an executing record as needing reconciliation.
func (e *ExecutionCoordinator) flag(ctx context.Context, id superpool.TxID, hash common.Hash) (*ExecutionResult, error) {
	a := attempt{action: "flag_reconciliation", id: id, from: StatusExecuting, to: StatusExecuting}
	rec, err := updateRecord(ctx, e.Store, id, e.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
		if rec.Status != StatusExecuting {
			return false, errors.Wrapf(errors.ErrInvalidState, "record is %s", rec.Status)
		}
		if rec.Execution == nil {
			rec.Execution = &ExecutionResult{}
		}
		if hash != (common.Hash{}) {
			rec.Execution.SubmissionHash = hash
		}
		rec.NeedsReconciliation = true
		return true, nil
	})
	e.report(ctx, a, err)
	if err != nil {
		return nil, err
	}
	res := *rec.Execution
	return &res, nil
}

// isRejection returns true if the gateway declared that the submission was
// not accepted.
func isRejection(err error) bool {
	return errors.ErrExecutionFailed.Is(err) || errors.ErrInsufficientSignatures.Is(err)
}
