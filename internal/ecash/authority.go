// authority.go - The signing authority (bank).
//
// An Authority owns the private blind-signing key. It is an explicit value:
// whoever constructs it passes it by reference to the components that sign.

package ecash

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"blindcash/internal/blindsig"
)

// Authority blind-signs coins and documents without seeing their contents.
type Authority struct {
	Name string
	key  *blindsig.PrivateKey
	log  zerolog.Logger
}

// AuthorityOption configures an Authority.
type AuthorityOption func(*Authority)

// WithAuthorityLogger routes the authority's events to log.
func WithAuthorityLogger(log zerolog.Logger) AuthorityOption {
	return func(a *Authority) { a.log = log }
}

// NewAuthority generates a fresh key of the given size.
func NewAuthority(name string, bits int, opts ...AuthorityOption) (*Authority, error) {
	key, err := blindsig.GenerateKey(bits)
	if err != nil {
		return nil, err
	}
	return NewAuthorityFromKey(name, key, opts...)
}

// NewAuthorityFromKey wraps an existing key.
func NewAuthorityFromKey(name string, key *blindsig.PrivateKey, opts ...AuthorityOption) (*Authority, error) {
	if key == nil || key.N == nil || key.E == nil || key.D == nil {
		return nil, errors.Wrap(ErrInvalidInput, "authority key is incomplete")
	}
	a := &Authority{Name: name, key: key, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With().Str("authority", name).Logger()
	return a, nil
}

// PublicKey returns the parameters verifiers need.
func (a *Authority) PublicKey() *blindsig.PublicKey {
	return a.key.Public()
}

// SignBlinded returns the blind signature over a blinded value. The
// authority learns nothing about the underlying message.
func (a *Authority) SignBlinded(blinded *big.Int) (*big.Int, error) {
	sig, err := blindsig.Sign(blinded, a.key)
	if err != nil {
		return nil, errors.Wrap(err, "authority sign")
	}
	a.log.Debug().Int("bits", blinded.BitLen()).Msg("blind signature issued")
	return sig, nil
}

// Logger exposes the authority's logger to the protocols built on it.
func (a *Authority) Logger() zerolog.Logger {
	return a.log
}
