package piv

import (
	"crypto/rsa"
	"math/big"
)

// KeyMaterial is the operator-supplied credential: an RSA private key
// and its DER-encoded X.509 certificate, extracted once from a PKCS#12
// bundle by internal/credential. It is read-only for the life of the
// process (spec.md §3).
type KeyMaterial struct {
	PrivateKey *rsa.PrivateKey
	CertDER    []byte
}

// ModulusLen returns the RSA modulus size in bytes, the length every
// raw-RSA signature and input must equal.
func (k *KeyMaterial) ModulusLen() int {
	return (k.PrivateKey.N.BitLen() + 7) / 8
}

// RSASigner performs the raw RSA primitive the card handler uses for
// GENERAL AUTHENTICATE (spec.md §4.5, §9 "Pluggable crypto"): no
// PKCS#1 padding is added or stripped, and the caller is responsible
// for supplying a correctly padded challenge.
type RSASigner interface {
	// Sign computes data^d mod n and returns a signature exactly
	// ModulusLen() bytes long. It fails if len(data) != ModulusLen().
	Sign(key *KeyMaterial, data []byte) ([]byte, error)
}

// rawRSASigner is the default RSASigner, doing plain modular
// exponentiation with the private exponent.
type rawRSASigner struct{}

// DefaultRSASigner is the signer used when a handler is constructed
// without an explicit override.
var DefaultRSASigner RSASigner = rawRSASigner{}

func (rawRSASigner) Sign(key *KeyMaterial, data []byte) ([]byte, error) {
	modLen := key.ModulusLen()
	if len(data) != modLen {
		return nil, newErr(SigningPrecondition, "signing input length %d does not match modulus length %d", len(data), modLen)
	}

	c := new(big.Int).SetBytes(data)
	sig := new(big.Int).Exp(c, key.PrivateKey.D, key.PrivateKey.N)

	out := make([]byte, modLen)
	sigBytes := sig.Bytes()
	copy(out[modLen-len(sigBytes):], sigBytes)
	return out, nil
}
