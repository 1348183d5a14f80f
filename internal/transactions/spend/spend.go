// spend.go - Merchant-side coin acceptance.
//
// A merchant checks the authority's signature over the coin's canonical
// string, then challenges every slot with an independent fair bit and checks
// the disclosed share against the signed commitment. The disclosed shares
// form the RIS the merchant later deposits.
//
// Acceptance only reads the coin, so any number of merchants may accept the
// same coin concurrently.

package spend

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"blindcash/internal/blindsig"
	"blindcash/internal/ecash"
	"blindcash/internal/random"
)

// Merchant accepts coins issued under one authority key.
type Merchant struct {
	Name    string
	bankKey *blindsig.PublicKey
	hash    ecash.HashFunc
	src     *random.Source
	log     zerolog.Logger
}

// Option configures a Merchant.
type Option func(*Merchant) error

// WithShareHash selects the commitment hash; it must match the payers'.
func WithShareHash(name string) Option {
	return func(m *Merchant) error {
		h, err := ecash.LookupHash(name)
		if err != nil {
			return err
		}
		m.hash = h
		return nil
	}
}

// WithSource draws challenge bits from src.
func WithSource(src *random.Source) Option {
	return func(m *Merchant) error {
		m.src = src
		return nil
	}
}

// WithLogger routes acceptance events to log.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Merchant) error {
		m.log = log
		return nil
	}
}

// NewMerchant returns a merchant trusting bankKey.
func NewMerchant(name string, bankKey *blindsig.PublicKey, opts ...Option) (*Merchant, error) {
	if bankKey == nil {
		return nil, errors.Wrap(ecash.ErrInvalidInput, "merchant needs the authority key")
	}
	h, _ := ecash.LookupHash(ecash.HashSHA256)
	m := &Merchant{Name: name, bankKey: bankKey, hash: h, src: random.Default, log: zerolog.Nop()}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.log = m.log.With().Str("merchant", name).Logger()
	return m, nil
}

// AcceptCoin verifies coin and collects one share per slot.
//
// Failures: ecash.ErrInvalidSignature if the signature does not verify,
// ecash.ErrInvalidIdentityString if the canonical string is malformed, and
// *ecash.HashMismatchError for the first slot whose share fails its
// commitment.
func (m *Merchant) AcceptCoin(coin *ecash.Coin) (*ecash.RIS, error) {
	if coin == nil {
		return nil, errors.Wrap(ecash.ErrInvalidInput, "nil coin")
	}
	if !coin.VerifySignature(m.bankKey) {
		m.log.Warn().Str("guid", coin.GUID).Msg("rejected coin with invalid signature")
		return nil, ecash.ErrInvalidSignature
	}
	parsed, err := ecash.ParseCoinString(coin.String())
	if err != nil {
		return nil, err
	}

	ris := &ecash.RIS{
		GUID:        parsed.GUID,
		Disclosures: make([]ecash.Disclosure, len(parsed.LeftHashes)),
	}
	for i := range parsed.LeftHashes {
		left, err := m.src.Bit()
		if err != nil {
			return nil, errors.Wrap(err, "challenge bit")
		}
		side, expected := ecash.Left, parsed.LeftHashes[i]
		if !left {
			side, expected = ecash.Right, parsed.RightHashes[i]
		}
		share, err := coin.GetShare(side, i)
		if err != nil {
			return nil, err
		}
		got, err := m.hash(share)
		if err != nil {
			return nil, err
		}
		if got != expected {
			m.log.Warn().Str("guid", coin.GUID).Int("slot", i).Msg("rejected coin with bad share")
			return nil, &ecash.HashMismatchError{Index: i, Side: side}
		}
		ris.Disclosures[i] = ecash.Disclosure{Side: side, Share: share}
	}
	m.log.Info().Str("guid", coin.GUID).Uint64("amount", parsed.Amount).Msg("coin accepted")
	return ris, nil
}

// Result pairs a merchant with the outcome of its acceptance.
type Result struct {
	Merchant *Merchant
	RIS      *ecash.RIS
	Err      error
}

// AcceptConcurrently has every merchant accept coin in parallel, at most
// limit at a time (no limit if limit <= 0). Individual rejections are
// reported in the results; the returned error is only set when ctx ends
// first.
func AcceptConcurrently(ctx context.Context, coin *ecash.Coin, merchants []*Merchant, limit int) ([]Result, error) {
	results := make([]Result, len(merchants))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, m := range merchants {
		i, m := i, m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ris, err := m.AcceptCoin(coin)
			results[i] = Result{Merchant: m, RIS: ris, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
