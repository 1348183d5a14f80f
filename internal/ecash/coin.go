// coin.go - Coin type, RIS construction and the issuance exchange.
//
// A Coin is created once by its payer, signed once by the authority and then
// only read. Its canonical string is
//
//	BANK-<amount>-<guid>-<left hashes, comma-joined>-<right hashes, comma-joined>
//
// and is exactly the message the authority signs.

package ecash

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"blindcash/internal/blindsig"
	"blindcash/internal/otp"
	"blindcash/internal/random"
)

const (
	// BankMarker opens every canonical coin string.
	BankMarker = "BANK"
	// IdentMarker prefixes the payer id inside every pad, so a recovered
	// plaintext can be told apart from XOR noise.
	IdentMarker = "IDENT"
	// DefaultRISLength is the number of challenge slots per coin.
	DefaultRISLength = 32
)

// Side selects one half of a slot's pad.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// MarkIdentity returns the plaintext padded into every slot.
func MarkIdentity(payer string) string {
	return IdentMarker + ":" + payer
}

// Coin is an anonymous bearer coin.
type Coin struct {
	GUID        string
	Amount      uint64
	LeftHashes  []string
	RightHashes []string
	// PublicKey is the authority key the coin is issued under.
	PublicKey *blindsig.PublicKey

	identity string
	pads     []otp.Pad
	src      *random.Source

	// transient issuance state
	blinded *big.Int
	factor  *big.Int

	signature atomic.Pointer[big.Int]
}

type coinConfig struct {
	src      *random.Source
	hashName string
}

// CoinOption configures NewCoin.
type CoinOption func(*coinConfig)

// WithSource draws pads and guid from src instead of random.Default.
func WithSource(src *random.Source) CoinOption {
	return func(c *coinConfig) { c.src = src }
}

// WithShareHash selects the share commitment hash by name.
func WithShareHash(name string) CoinOption {
	return func(c *coinConfig) { c.hashName = name }
}

// NewCoin builds an unsigned coin for payer: risLength independent pads of
// the marked identity, and the hash of each half.
func NewCoin(payer string, amount uint64, risLength int, pub *blindsig.PublicKey, opts ...CoinOption) (*Coin, error) {
	cfg := coinConfig{src: random.Default, hashName: HashSHA256}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case payer == "":
		return nil, errors.Wrap(ErrInvalidInput, "empty payer identity")
	case amount == 0:
		return nil, errors.Wrap(ErrInvalidInput, "amount must be positive")
	case risLength < 1:
		return nil, errors.Wrapf(ErrInvalidInput, "ris length %d", risLength)
	case pub == nil:
		return nil, errors.Wrap(ErrInvalidInput, "missing authority key")
	}
	hash, err := LookupHash(cfg.hashName)
	if err != nil {
		return nil, err
	}
	guid, err := cfg.src.GUID()
	if err != nil {
		return nil, errors.Wrap(err, "coin guid")
	}

	c := &Coin{
		GUID:        guid,
		Amount:      amount,
		LeftHashes:  make([]string, risLength),
		RightHashes: make([]string, risLength),
		PublicKey:   pub,
		identity:    MarkIdentity(payer),
		pads:        make([]otp.Pad, risLength),
		src:         cfg.src,
	}
	for i := 0; i < risLength; i++ {
		pad, err := otp.SplitWith(cfg.src, []byte(c.identity))
		if err != nil {
			return nil, errors.Wrapf(err, "slot %d", i)
		}
		if c.LeftHashes[i], err = hash(pad.Key); err != nil {
			return nil, err
		}
		if c.RightHashes[i], err = hash(pad.Ciphertext); err != nil {
			return nil, err
		}
		c.pads[i] = pad
	}
	return c, nil
}

// RISLength is the number of challenge slots.
func (c *Coin) RISLength() int {
	return len(c.LeftHashes)
}

// GetShare returns a copy of one half of slot i's pad: the key on the left,
// the ciphertext on the right.
func (c *Coin) GetShare(side Side, i int) ([]byte, error) {
	if i < 0 || i >= len(c.pads) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, len(c.pads))
	}
	share := c.pads[i].Key
	if side == Right {
		share = c.pads[i].Ciphertext
	}
	return append([]byte(nil), share...), nil
}

// String returns the canonical string the authority signs.
func (c *Coin) String() string {
	return fmt.Sprintf("%s-%d-%s-%s-%s",
		BankMarker,
		c.Amount,
		c.GUID,
		strings.Join(c.LeftHashes, ","),
		strings.Join(c.RightHashes, ","),
	)
}

// Hash is the message hash of the canonical string.
func (c *Coin) Hash() *big.Int {
	return blindsig.HashMessage(c.String())
}

// Blind prepares the coin for signing and returns the value to hand to the
// authority. The blinding factor is drawn from the coin's source and never
// leaves the coin.
func (c *Coin) Blind() (*big.Int, error) {
	if c.Signature() != nil {
		return nil, ErrSignatureAlreadySet
	}
	b, err := blindsig.BlindFrom(c.src, blindsig.BlindRequest{
		MessageHash: c.Hash(),
		N:           c.PublicKey.N,
		E:           c.PublicKey.E,
	})
	if err != nil {
		return nil, errors.Wrap(err, "blind coin")
	}
	c.blinded, c.factor = b.Blinded, b.Factor
	return b.Blinded, nil
}

// Blinded returns the pending blinded form, or nil.
func (c *Coin) Blinded() *big.Int {
	return c.blinded
}

// Unblind turns the authority's blind signature into the coin's signature.
// The result must verify before it is stored, and it can be stored once.
func (c *Coin) Unblind(blindSig *big.Int) error {
	if c.factor == nil {
		return ErrNotBlinded
	}
	sig, err := blindsig.Unblind(blindsig.UnblindRequest{
		Signed: blindSig,
		N:      c.PublicKey.N,
		Factor: c.factor,
	})
	if err != nil {
		return errors.Wrap(err, "unblind coin")
	}
	if !c.verify(sig) {
		return ErrInvalidSignature
	}
	if !c.signature.CompareAndSwap(nil, sig) {
		return ErrSignatureAlreadySet
	}
	c.blinded, c.factor = nil, nil
	return nil
}

// Signature returns the authority's signature, or nil before issuance.
func (c *Coin) Signature() *big.Int {
	return c.signature.Load()
}

// VerifySignature checks the stored signature against the canonical string
// under pub.
func (c *Coin) VerifySignature(pub *blindsig.PublicKey) bool {
	sig := c.Signature()
	if sig == nil || pub == nil {
		return false
	}
	return blindsig.Verify(blindsig.VerifyRequest{
		Unblinded:   sig,
		MessageHash: c.Hash(),
		N:           pub.N,
		E:           pub.E,
	})
}

func (c *Coin) verify(sig *big.Int) bool {
	return blindsig.Verify(blindsig.VerifyRequest{
		Unblinded:   sig,
		MessageHash: c.Hash(),
		N:           c.PublicKey.N,
		E:           c.PublicKey.E,
	})
}

// IssueCoin runs the whole issuance exchange against a: build, blind, sign,
// unblind.
func IssueCoin(a *Authority, payer string, amount uint64, risLength int, opts ...CoinOption) (*Coin, error) {
	c, err := NewCoin(payer, amount, risLength, a.PublicKey(), opts...)
	if err != nil {
		return nil, err
	}
	blinded, err := c.Blind()
	if err != nil {
		return nil, err
	}
	blindSig, err := a.SignBlinded(blinded)
	if err != nil {
		return nil, err
	}
	if err := c.Unblind(blindSig); err != nil {
		return nil, err
	}
	a.log.Info().Str("guid", c.GUID).Uint64("amount", c.Amount).Int("slots", c.RISLength()).Msg("coin issued")
	return c, nil
}

// CoinString is a parsed canonical string.
type CoinString struct {
	Amount      uint64
	GUID        string
	LeftHashes  []string
	RightHashes []string
}

// ParseCoinString splits a canonical string back into its fields. A string
// that does not open with BankMarker, or does not have the canonical shape,
// fails with ErrInvalidIdentityString.
func ParseCoinString(s string) (*CoinString, error) {
	fields := strings.Split(s, "-")
	if len(fields) != 5 {
		return nil, errors.Wrapf(ErrInvalidIdentityString, "expected 5 fields, got %d", len(fields))
	}
	if fields[0] != BankMarker {
		return nil, errors.Wrapf(ErrInvalidIdentityString, "marker %q", fields[0])
	}
	amount, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidIdentityString, "amount %q", fields[1])
	}
	left, right := strings.Split(fields[3], ","), strings.Split(fields[4], ",")
	if len(left) != len(right) {
		return nil, errors.Wrapf(ErrInvalidIdentityString, "%d left hashes, %d right", len(left), len(right))
	}
	return &CoinString{
		Amount:      amount,
		GUID:        fields[2],
		LeftHashes:  left,
		RightHashes: right,
	}, nil
}
