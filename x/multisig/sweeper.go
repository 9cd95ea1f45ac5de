package multisig

import (
	"context"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// ExpirySweeper moves records past their expiration time to the expired
// status. Records are also expired lazily when accessed, the sweeper makes
// sure that records nobody touches do not stay open forever.
type ExpirySweeper struct {
	Deps
}

// NewExpirySweeper returns a sweeper using given collaborators.
func NewExpirySweeper(d Deps) *ExpirySweeper {
	return &ExpirySweeper{Deps: d}
}

// Sweep expires all eligible records and returns how many were changed.
// A record that conflicts with a concurrent writer is skipped and picked up
// by a later sweep.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	recs, _, err := s.Store.List(ctx, ListQuery{
		Statuses: []Status{StatusPendingSignatures, StatusReadyToExecute},
	})
	if err != nil {
		return 0, errors.Wrap(err, "open records")
	}
	var n int
	var errs error
	for _, rec := range recs {
		if !superpool.IsExpired(ctx, rec.ExpiresAt) {
			continue
		}
		changed, err := expire(ctx, s.Deps, rec.ID)
		switch {
		case errors.ErrConflict.Is(err):
			logger(ctx).Debug("expiry skipped", "tx", rec.ID.Hex(), "err", err)
		case err != nil:
			errs = errors.Append(errs, errors.Wrapf(err, "expire %s", rec.ID.Hex()))
		case changed:
			n++
		}
	}
	return n, errs
}

// Run implements cron.Task.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	n, err := s.Sweep(ctx)
	if n > 0 {
		logger(ctx).Info("expired records", "count", n)
	}
	return err
}
