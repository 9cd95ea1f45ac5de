/*
Package crypto implements signing and recovery of owner approvals.

An approval is a 65 byte r || s || v secp256k1 signature over the 32 byte
transaction id. Two encodings of v are accepted:

  0, 1, 27, 28  plain ECDSA signature over the id
  31, 32        eth_sign signature, the signed digest is
                keccak256("\x19Ethereum Signed Message:\n32" || id)

This matches the signature types accepted by Safe style custody accounts.
*/
package crypto

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rafamiziara/superpool-sub007/errors"
)

// SignatureLength is the length of a r || s || v signature.
const SignatureLength = 65

const ethSignPrefix = "\x19Ethereum Signed Message:\n32"

// Signer is the functionality we use from a private key
// No serializing to support hardware devices as well.
type Signer interface {
	// Sign returns a 65 byte signature over given transaction id.
	Sign(id common.Hash) ([]byte, error)
	// Address returns the account address of the signing key.
	Address() common.Address
}

// Secp256k1 is an in-memory secp256k1 private key.
type Secp256k1 struct {
	key     *ecdsa.PrivateKey
	ethSign bool
}

var _ Signer = (*Secp256k1)(nil)

// GenerateKey returns a random new private key.
func GenerateKey() (*Secp256k1, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrHuman, "generate key: %s", err)
	}
	return &Secp256k1{key: key}, nil
}

// KeyFromSeed will deterministically generate a private key from a given
// seed. Use it for deterministic keys in test cases.
func KeyFromSeed(seed []byte) *Secp256k1 {
	key, err := crypto.ToECDSA(crypto.Keccak256(seed))
	if err != nil {
		// A keccak digest is a valid key with overwhelming probability.
		panic(err)
	}
	return &Secp256k1{key: key}
}

// KeyFromHex decodes a hex encoded private key, with or without 0x prefix.
func KeyFromHex(s string) (*Secp256k1, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "private key: %s", err)
	}
	return &Secp256k1{key: key}, nil
}

// Hex returns the hex encoded private key without 0x prefix.
func (k *Secp256k1) Hex() string {
	return common.Bytes2Hex(crypto.FromECDSA(k.key))
}

// ECDSA returns the underlying key.
func (k *Secp256k1) ECDSA() *ecdsa.PrivateKey {
	return k.key
}

// Address returns the account address of this key.
func (k *Secp256k1) Address() common.Address {
	return crypto.PubkeyToAddress(k.key.PublicKey)
}

// EthSign returns a signer that produces eth_sign style signatures, as
// created by most wallets when asked to sign a message.
func (k *Secp256k1) EthSign() *Secp256k1 {
	return &Secp256k1{key: k.key, ethSign: true}
}

// Sign returns a matching signature for this private key.
func (k *Secp256k1) Sign(id common.Hash) ([]byte, error) {
	digest := id.Bytes()
	if k.ethSign {
		digest = ethSignDigest(id)
	}
	sig, err := crypto.Sign(digest, k.key)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrHuman, "sign: %s", err)
	}
	if k.ethSign {
		sig[64] += 31
	} else {
		sig[64] += 27
	}
	return sig, nil
}

// Recover returns the address of the key that created given signature over
// the transaction id. It fails with ErrInvalidSignature when the signature
// is malformed.
func Recover(id common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, errors.Wrapf(errors.ErrInvalidSignature, "want %d bytes, got %d", SignatureLength, len(sig))
	}

	digest := id.Bytes()
	v := sig[64]
	switch v {
	case 0, 1:
	case 27, 28:
		v -= 27
	case 31, 32:
		v -= 31
		digest = ethSignDigest(id)
	default:
		return common.Address{}, errors.Wrapf(errors.ErrInvalidSignature, "unsupported v value %d", sig[64])
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, errors.Wrap(errors.ErrInvalidSignature, "signature values out of range")
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	normalized[64] = v

	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, errors.Wrapf(errors.ErrInvalidSignature, "recover: %s", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify returns nil if given signature over id was created by signer.
func Verify(id common.Hash, signer common.Address, sig []byte) error {
	got, err := Recover(id, sig)
	if err != nil {
		return err
	}
	if got != signer {
		return errors.Wrapf(errors.ErrInvalidSignature, "recovered %s, claimed %s", got.Hex(), signer.Hex())
	}
	return nil
}

func ethSignDigest(id common.Hash) []byte {
	return crypto.Keccak256([]byte(ethSignPrefix), id.Bytes())
}
