// blindsig.go - RSA blind signatures (Chaum).
//
// A requester hashes a message to an integer m, blinds it as m*r^e mod N
// with a secret factor r, and sends the result to the signer. The signer
// raises it to d, and the requester divides r back out to obtain the plain
// RSA signature m^d mod N.
//
// Parameters travel in explicit request structs; nothing here keeps state.

package blindsig

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

var (
	ErrMessageTooLarge = errors.New("blindsig: message hash is not smaller than the modulus")
	ErrBadFactor       = errors.New("blindsig: blinding factor is not invertible modulo N")
	ErrMissingParam    = errors.New("blindsig: missing parameter")
)

var one = big.NewInt(1)

// BlindRequest carries the inputs to Blind.
type BlindRequest struct {
	MessageHash *big.Int
	N           *big.Int
	E           *big.Int
}

// Blinded is the output of Blind. Factor stays with the requester.
type Blinded struct {
	Blinded *big.Int
	Factor  *big.Int
}

// UnblindRequest carries the inputs to Unblind.
type UnblindRequest struct {
	Signed *big.Int
	N      *big.Int
	Factor *big.Int
}

// VerifyRequest carries the inputs to Verify.
type VerifyRequest struct {
	Unblinded   *big.Int
	MessageHash *big.Int
	N           *big.Int
	E           *big.Int
}

// HashMessage maps a message to the integer that gets blinded and signed:
// the big-endian value of its SHA-256 digest.
func HashMessage(message string) *big.Int {
	sum := sha256.Sum256([]byte(message))
	return new(big.Int).SetBytes(sum[:])
}

// Blind draws a fresh factor from crypto/rand and blinds req.MessageHash.
func Blind(req BlindRequest) (*Blinded, error) {
	return BlindFrom(rand.Reader, req)
}

// BlindFrom is Blind with an explicit entropy source.
func BlindFrom(rnd io.Reader, req BlindRequest) (*Blinded, error) {
	if req.N == nil || req.E == nil || req.MessageHash == nil {
		return nil, ErrMissingParam
	}
	gcd := new(big.Int)
	for {
		r, err := rand.Int(rnd, req.N)
		if err != nil {
			return nil, errors.Wrap(err, "blindsig: draw factor")
		}
		if r.Sign() == 0 || gcd.GCD(nil, nil, r, req.N).Cmp(one) != 0 {
			continue
		}
		blinded, err := BlindWith(req, r)
		if err != nil {
			return nil, err
		}
		return &Blinded{Blinded: blinded, Factor: r}, nil
	}
}

// BlindWith applies the blinding transform with a known factor. It is
// deterministic, so a verifier holding (message, factor) can rebuild a
// blinded value it was shown earlier.
func BlindWith(req BlindRequest, factor *big.Int) (*big.Int, error) {
	if req.N == nil || req.E == nil || req.MessageHash == nil || factor == nil {
		return nil, ErrMissingParam
	}
	if req.MessageHash.Cmp(req.N) >= 0 {
		return nil, ErrMessageTooLarge
	}
	re := new(big.Int).Exp(factor, req.E, req.N)
	out := re.Mul(re, req.MessageHash)
	return out.Mod(out, req.N), nil
}

// Sign raises a blinded value to the private exponent.
func Sign(blinded *big.Int, key *PrivateKey) (*big.Int, error) {
	if blinded == nil || key == nil {
		return nil, ErrMissingParam
	}
	if blinded.Sign() < 0 || blinded.Cmp(key.N) >= 0 {
		return nil, ErrMessageTooLarge
	}
	return new(big.Int).Exp(blinded, key.D, key.N), nil
}

// Unblind removes the blinding factor from a blind signature.
func Unblind(req UnblindRequest) (*big.Int, error) {
	if req.Signed == nil || req.N == nil || req.Factor == nil {
		return nil, ErrMissingParam
	}
	inv := new(big.Int).ModInverse(req.Factor, req.N)
	if inv == nil {
		return nil, ErrBadFactor
	}
	s := inv.Mul(inv, req.Signed)
	return s.Mod(s, req.N), nil
}

// Verify reports whether req.Unblinded is a signature over req.MessageHash.
func Verify(req VerifyRequest) bool {
	if req.Unblinded == nil || req.MessageHash == nil || req.N == nil || req.E == nil {
		return false
	}
	if req.Unblinded.Sign() <= 0 || req.Unblinded.Cmp(req.N) >= 0 {
		return false
	}
	m := new(big.Int).Exp(req.Unblinded, req.E, req.N)
	return m.Cmp(new(big.Int).Mod(req.MessageHash, req.N)) == 0
}
