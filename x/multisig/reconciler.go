package multisig

import (
	"context"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// Reconciler resolves executing records whose outcome is unknown.
type Reconciler struct {
	Deps
}

// NewReconciler returns a reconciler using given collaborators.
func NewReconciler(d Deps) *Reconciler {
	return &Reconciler{Deps: d}
}

// Reconcile looks up the submission of an executing record and finalizes
// the record if the chain knows the outcome. A record is eligible when it is
// flagged for reconciliation or when it has been executing for longer than
// the confirmation timeout, which happens when the executing process died.
//
// A record without a submission hash cannot be resolved automatically. It
// stays flagged for manual investigation.
func (r *Reconciler) Reconcile(ctx context.Context, id superpool.TxID) (*TransactionRecord, error) {
	rec, err := r.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusExecuting {
		return nil, errors.Wrapf(errors.ErrInvalidState, "record is %s", rec.Status)
	}
	if !rec.NeedsReconciliation && !r.stale(ctx, rec) {
		return nil, errors.Wrap(errors.ErrInvalidState, "execution in progress")
	}

	l := logger(ctx).With("tx", id.Hex())
	if !rec.Execution.Submitted() {
		if rec.NeedsReconciliation {
			l.Info("no submission hash, manual investigation needed")
			return rec, nil
		}
		return r.markFlagged(ctx, id)
	}

	hash := rec.Execution.SubmissionHash
	qctx, cancel := withTimeout(ctx, r.Config.QueryTimeout)
	receipt, err := r.Gateway.Receipt(qctx, hash)
	cancel()
	switch {
	case errors.ErrNotFound.Is(err):
		l.Info("submission not included yet", "hash", hash.Hex())
		if rec.NeedsReconciliation {
			return rec, nil
		}
		return r.markFlagged(ctx, id)
	case err != nil:
		return nil, chainErr(err, "receipt")
	}

	var failure string
	if !receipt.Success {
		failure = receipt.RevertReason
		if failure == "" {
			failure = "execution reverted"
		}
	}
	if _, err := finalize(ctx, r.Deps, "reconcile", id, receipt, failure); err != nil {
		return nil, err
	}
	l.Info("record reconciled", "hash", hash.Hex(), "success", receipt.Success)
	return r.Store.Get(ctx, id)
}

// ReconcileAll tries to reconcile every eligible record and returns the
// number of records that reached a final status.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	recs, _, err := r.Store.List(ctx, ListQuery{Statuses: []Status{StatusExecuting}})
	if err != nil {
		return 0, errors.Wrap(err, "executing records")
	}
	var done int
	var errs error
	for _, rec := range recs {
		if !rec.NeedsReconciliation && !r.stale(ctx, rec) {
			continue
		}
		got, err := r.Reconcile(ctx, rec.ID)
		if err != nil {
			// Conflicts and chain failures are retried on the next run.
			if !errors.IsRetryable(err) {
				errs = errors.Append(errs, errors.Wrapf(err, "reconcile %s", rec.ID.Hex()))
			}
			continue
		}
		if got.Status.IsTerminal() {
			done++
		}
	}
	return done, errs
}

// Run implements cron.Task.
func (r *Reconciler) Run(ctx context.Context) error {
	n, err := r.ReconcileAll(ctx)
	if n > 0 {
		logger(ctx).Info("reconciled records", "count", n)
	}
	return err
}

// stale returns true if an unflagged record has been executing for longer
// than the confirmation wait allows.
func (r *Reconciler) stale(ctx context.Context, rec *TransactionRecord) bool {
	if rec.Execution == nil {
		return false
	}
	deadline := rec.Execution.SubmittedAt.Add(r.Config.SubmitTimeout + r.Config.ConfirmTimeout)
	return superpool.IsExpired(ctx, deadline)
}

func (r *Reconciler) markFlagged(ctx context.Context, id superpool.TxID) (*TransactionRecord, error) {
	a := attempt{action: "flag_reconciliation", id: id, from: StatusExecuting, to: StatusExecuting}
	rec, err := updateRecord(ctx, r.Store, id, r.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
		if rec.Status != StatusExecuting {
			return false, errors.Wrapf(errors.ErrInvalidState, "record is %s", rec.Status)
		}
		if rec.NeedsReconciliation {
			return false, nil
		}
		rec.NeedsReconciliation = true
		return true, nil
	})
	r.report(ctx, a, err)
	return rec, err
}
