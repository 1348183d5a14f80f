package blindsig

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

// PublicKey is the part of the authority key handed to verifiers.
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// PrivateKey is held only by the signing authority.
type PrivateKey struct {
	PublicKey
	D *big.Int
}

// GenerateKey creates an RSA key pair of the given modulus size.
func GenerateKey(bits int) (*PrivateKey, error) {
	return GenerateKeyFrom(rand.Reader, bits)
}

// GenerateKeyFrom is GenerateKey with an explicit entropy source.
func GenerateKeyFrom(rnd io.Reader, bits int) (*PrivateKey, error) {
	k, err := rsa.GenerateKey(rnd, bits)
	if err != nil {
		return nil, errors.Wrapf(err, "blindsig: generate %d-bit key", bits)
	}
	return &PrivateKey{
		PublicKey: PublicKey{
			N: new(big.Int).Set(k.N),
			E: big.NewInt(int64(k.E)),
		},
		D: new(big.Int).Set(k.D),
	}, nil
}

// Public returns a copy of the public half.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{N: new(big.Int).Set(k.N), E: new(big.Int).Set(k.E)}
}

// Equal reports whether two public keys carry the same parameters.
func (p *PublicKey) Equal(o *PublicKey) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.N.Cmp(o.N) == 0 && p.E.Cmp(o.E) == 0
}
