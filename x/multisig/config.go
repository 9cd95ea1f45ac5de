package multisig

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// Config holds the coordinator settings. It is loaded from the "multisig"
// configuration section.
type Config struct {
	// ProposalTTL is how long a proposal may collect signatures and wait
	// for execution before it expires.
	ProposalTTL time.Duration `mapstructure:"proposal_ttl"`
	// MaxCASRetries bounds the read, verify and mutate cycle of a single
	// operation.
	MaxCASRetries int `mapstructure:"max_cas_retries"`

	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`

	// MultiSend is the address of the contract batches are delegated to.
	MultiSend common.Address `mapstructure:"multi_send"`
}

// DefaultConfig returns the configuration used when nothing else is
// declared.
func DefaultConfig() Config {
	return Config{
		ProposalTTL:    7 * 24 * time.Hour,
		MaxCASRetries:  5,
		QueryTimeout:   30 * time.Second,
		SubmitTimeout:  60 * time.Second,
		ConfirmTimeout: 5 * time.Minute,
	}
}

func (c Config) Validate() error {
	var errs error
	if c.ProposalTTL < time.Second {
		errs = errors.AppendField(errs, "ProposalTTL",
			errors.Wrap(errors.ErrValidation, "must be at least one second"))
	}
	if c.MaxCASRetries < 1 {
		errs = errors.AppendField(errs, "MaxCASRetries",
			errors.Wrap(errors.ErrValidation, "must be positive"))
	}
	if c.QueryTimeout <= 0 {
		errs = errors.AppendField(errs, "QueryTimeout", errors.ErrEmpty)
	}
	if c.SubmitTimeout <= 0 {
		errs = errors.AppendField(errs, "SubmitTimeout", errors.ErrEmpty)
	}
	if c.ConfirmTimeout <= 0 {
		errs = errors.AppendField(errs, "ConfirmTimeout", errors.ErrEmpty)
	}
	return errs
}
