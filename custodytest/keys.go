package custodytest

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/crypto"
)

// NewKey returns a random secp256k1 key.
func NewKey() *crypto.Secp256k1 {
	k, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return k
}

// SeededKey returns a key derived from given name. The same name always
// returns the same key.
func SeededKey(name string) *crypto.Secp256k1 {
	return crypto.KeyFromSeed([]byte(name))
}

// Addresses returns addresses of all given keys.
func Addresses(keys ...crypto.Signer) []common.Address {
	out := make([]common.Address, len(keys))
	for i, k := range keys {
		out[i] = k.Address()
	}
	return out
}

// Sign returns the signature of given key over id, failing the test on
// error.
func Sign(t testing.TB, k crypto.Signer, id common.Hash) []byte {
	t.Helper()
	sig, err := k.Sign(id)
	if err != nil {
		t.Fatalf("cannot sign %s: %s", id.Hex(), err)
	}
	return sig
}

// AsCaller returns a context authenticated as given address.
func AsCaller(ctx context.Context, addr common.Address) context.Context {
	return superpool.WithCaller(ctx, addr)
}
