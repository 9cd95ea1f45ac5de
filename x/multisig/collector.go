package multisig

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/crypto"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// SignatureCollector verifies owner signatures and adds them to records.
type SignatureCollector struct {
	Deps
}

// NewSignatureCollector returns a collector using given collaborators.
func NewSignatureCollector(d Deps) *SignatureCollector {
	return &SignatureCollector{Deps: d}
}

// AddSignature adds the signature of claimed signer to the record. The
// signature must recover to the claimed signer over the record id and the
// signer must currently be an owner of the custody account.
//
// The write that first reaches the required number of signatures also moves
// the record to ready to execute. Signatures beyond the threshold are
// accepted until execution is claimed.
func (c *SignatureCollector) AddSignature(ctx context.Context, id superpool.TxID, signer common.Address, sig []byte) (*TransactionRecord, error) {
	a := attempt{action: "add_signature", id: id, signer: signer}
	rec, err := c.addSignature(ctx, id, signer, sig, &a)
	c.report(ctx, a, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *SignatureCollector) addSignature(ctx context.Context, id superpool.TxID, signer common.Address, sig []byte, a *attempt) (*TransactionRecord, error) {
	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.from, a.to = rec.Status, rec.Status
	if err := checkCollecting(ctx, rec, signer); err != nil {
		if errors.ErrExpired.Is(err) {
			a.to = StatusExpired
			expireLazily(ctx, c.Deps, id)
		}
		return nil, err
	}

	if err := crypto.Verify(id, signer, sig); err != nil {
		return nil, err
	}

	qctx, cancel := withTimeout(ctx, c.Config.QueryTimeout)
	defer cancel()
	switch ok, err := c.Gateway.IsOwner(qctx, signer); {
	case err != nil:
		return nil, chainErr(err, "owner check")
	case !ok:
		return nil, errors.Wrapf(errors.ErrNotAuthorizedSigner, "%s is not an owner", signer.Hex())
	}

	now := superpool.AsUnixTime(superpool.Now(ctx))
	rec, err = updateRecord(ctx, c.Store, id, c.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
		// State may have changed since the first read.
		a.from, a.to = rec.Status, rec.Status
		if err := checkCollecting(ctx, rec, signer); err != nil {
			return false, err
		}
		rec.Signatures = append(rec.Signatures, Signature{
			Signer:    signer,
			Signature: copyBytes(sig),
			AddedAt:   now,
		})
		rec.CurrentSignatures = uint32(len(rec.Signatures))
		if rec.Status == StatusPendingSignatures && rec.CurrentSignatures >= rec.RequiredSignatures {
			if err := rec.setStatus(StatusReadyToExecute); err != nil {
				return false, err
			}
		}
		a.to = rec.Status
		return true, nil
	})
	if err != nil {
		if errors.ErrExpired.Is(err) {
			a.to = StatusExpired
			expireLazily(ctx, c.Deps, id)
		}
		return nil, err
	}

	l := logger(ctx).With("tx", id.Hex(), "signer", signer.Hex())
	l.Info("signature added", "current", rec.CurrentSignatures, "required", rec.RequiredSignatures)
	if a.from != a.to {
		l.Info("threshold reached", "status", rec.Status)
	}
	return rec, nil
}

// checkCollecting returns an error if the record cannot accept a signature
// from given signer.
func checkCollecting(ctx context.Context, rec *TransactionRecord, signer common.Address) error {
	if rec.Status == StatusExpired || (rec.expirable() && superpool.IsExpired(ctx, rec.ExpiresAt)) {
		return errors.Wrapf(errors.ErrExpired, "expired at %s", rec.ExpiresAt)
	}
	if !rec.Status.acceptsSignatures() {
		return errors.Wrapf(errors.ErrInvalidState, "record is %s", rec.Status)
	}
	if rec.HasSigner(signer) {
		return errors.Wrapf(errors.ErrDuplicateSigner, "%s already signed", signer.Hex())
	}
	return nil
}

// expireLazily moves a record past its expiration time to the expired
// status. Failure is only logged, the sweeper picks the record up later.
func expireLazily(ctx context.Context, d Deps, id superpool.TxID) {
	if _, err := expire(ctx, d, id); err != nil {
		logger(ctx).Error("cannot expire record", "tx", id.Hex(), "err", err)
	}
}

// expire moves the record to the expired status if it is past its
// expiration time and still expirable. It returns true if the record was
// changed by this call.
func expire(ctx context.Context, d Deps, id superpool.TxID) (bool, error) {
	var from Status
	var changed bool
	_, err := updateRecord(ctx, d.Store, id, d.Config.MaxCASRetries, func(rec *TransactionRecord) (bool, error) {
		from = rec.Status
		changed = rec.expirable() && superpool.IsExpired(ctx, rec.ExpiresAt)
		if !changed {
			return false, nil
		}
		return true, rec.setStatus(StatusExpired)
	})
	if err != nil {
		return false, err
	}
	if changed {
		d.report(ctx, attempt{action: "expire", id: id, from: from, to: StatusExpired}, nil)
		logger(ctx).Info("record expired", "tx", id.Hex(), "from", from)
	}
	return changed, nil
}
