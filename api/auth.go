package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafamiziara/superpool-sub007/errors"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	// Authenticate returns the address of the caller. It returns
	// ErrUnauthorized if the request carries invalid credentials and
	// ErrEmpty if it carries none.
	Authenticate(r *http.Request) (common.Address, error)
}

// KeyConfig binds an API key to the address its holder acts as.
type KeyConfig struct {
	Key     string         `mapstructure:"key"`
	Address common.Address `mapstructure:"address"`
}

// AuthConfig is the "auth" configuration section.
type AuthConfig struct {
	Keys []KeyConfig `mapstructure:"keys"`
}

func (c *AuthConfig) Validate() error {
	var errs error
	seen := make(map[string]bool)
	for i, k := range c.Keys {
		if len(k.Key) < 16 {
			errs = errors.AppendField(errs, "Keys",
				errors.Wrapf(errors.ErrValidation, "key %d must have at least 16 characters", i))
		}
		if seen[k.Key] {
			errs = errors.AppendField(errs, "Keys",
				errors.Wrapf(errors.ErrValidation, "key %d is not unique", i))
		}
		seen[k.Key] = true
		if k.Address == (common.Address{}) {
			errs = errors.AppendField(errs, "Keys",
				errors.Wrapf(errors.ErrEmpty, "address of key %d", i))
		}
	}
	return errs
}

// StaticKeyAuthenticator accepts bearer API keys from a fixed list.
type StaticKeyAuthenticator struct {
	keys map[[sha256.Size]byte]common.Address
}

var _ Authenticator = (*StaticKeyAuthenticator)(nil)

// NewStaticKeyAuthenticator returns an authenticator accepting the
// configured keys.
func NewStaticKeyAuthenticator(conf AuthConfig) *StaticKeyAuthenticator {
	a := &StaticKeyAuthenticator{keys: make(map[[sha256.Size]byte]common.Address, len(conf.Keys))}
	for _, k := range conf.Keys {
		a.keys[sha256.Sum256([]byte(k.Key))] = k.Address
	}
	return a
}

func (a *StaticKeyAuthenticator) Authenticate(r *http.Request) (common.Address, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return common.Address{}, errors.Wrap(errors.ErrEmpty, "no credentials")
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return common.Address{}, errors.Wrap(errors.ErrUnauthorized, "bearer token expected")
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(header[len(prefix):])))
	for digest, addr := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], sum[:]) == 1 {
			return addr, nil
		}
	}
	return common.Address{}, errors.Wrap(errors.ErrUnauthorized, "unknown API key")
}
