// ledger.go - The bank's append-only deposit ledger.
//
// The Ledger records every deposited transcript by coin guid. A transcript
// is accepted only if each disclosed share opens the coin's signed
// commitment. The first deposit of a guid is credited; every later deposit
// of the same guid is compared with all the earlier ones to tell who
// cheated.
//
// The ledger lives in memory only. It is safe for concurrent use.

package deposit

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"blindcash/internal/blindsig"
	"blindcash/internal/ecash"
)

var (
	ErrDuplicateDeposit = errors.New("deposit: transcript already deposited")
	ErrGUIDMismatch     = errors.New("deposit: transcript belongs to a different coin")
)

// Deposit is one merchant's redemption of a coin.
type Deposit struct {
	Merchant  string
	Coin      *ecash.Coin
	RIS       *ecash.RIS
	Timestamp time.Time
}

// Receipt is what the bank answers to a deposit. Verdict is nil unless the
// guid had been deposited before.
type Receipt struct {
	GUID     string
	Amount   uint64
	Credited bool
	Verdict  *ecash.Verdict
	Previous string
}

// Ledger is the bank's deposit record.
type Ledger struct {
	mu       sync.RWMutex
	bankKey  *blindsig.PublicKey
	hash     ecash.HashFunc
	deposits map[string][]*Deposit
	order    []string
	log      zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger routes deposit events to log.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithShareHash checks disclosed shares with h. It must be the hash the
// coins were built with; the default is SHA-256.
func WithShareHash(h ecash.HashFunc) Option {
	return func(l *Ledger) { l.hash = h }
}

// NewLedger creates an empty ledger accepting coins signed under bankKey.
func NewLedger(bankKey *blindsig.PublicKey, opts ...Option) *Ledger {
	sha, _ := ecash.LookupHash(ecash.HashSHA256)
	l := &Ledger{
		bankKey:  bankKey,
		hash:     sha,
		deposits: make(map[string][]*Deposit),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deposit verifies the coin signature and every disclosed share, then
// records the transcript.
//
// A share that does not open its commitment is refused with
// *ecash.HashMismatchError. A transcript identical to one the same merchant
// already deposited is refused with ErrDuplicateDeposit. Otherwise the
// deposit is recorded, and if the guid was seen before the receipt carries
// the verdict against the earlier transcripts: a recovered payer wins over
// any other outcome. The coin is credited only on its first deposit.
func (l *Ledger) Deposit(merchant string, coin *ecash.Coin, ris *ecash.RIS) (*Receipt, error) {
	if coin == nil || ris == nil {
		return nil, errors.Wrap(ecash.ErrInvalidInput, "deposit needs a coin and a transcript")
	}
	if !coin.VerifySignature(l.bankKey) {
		return nil, ecash.ErrInvalidSignature
	}
	if ris.GUID != coin.GUID {
		return nil, errors.Wrapf(ErrGUIDMismatch, "%s != %s", ris.GUID, coin.GUID)
	}
	if err := ecash.CheckRIS(coin, ris, l.hash); err != nil {
		l.log.Warn().Str("merchant", merchant).Str("guid", coin.GUID).Err(err).Msg("deposit refused")
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prior := l.deposits[coin.GUID]
	for _, d := range prior {
		if d.Merchant == merchant && d.RIS.Equal(ris) {
			return nil, errors.Wrapf(ErrDuplicateDeposit, "merchant %s, coin %s", merchant, coin.GUID)
		}
	}

	dep := &Deposit{Merchant: merchant, Coin: coin, RIS: ris, Timestamp: time.Now()}
	if len(prior) == 0 {
		l.order = append(l.order, coin.GUID)
	}
	l.deposits[coin.GUID] = append(prior, dep)

	receipt := &Receipt{GUID: coin.GUID, Amount: coin.Amount, Credited: len(prior) == 0}
	if len(prior) > 0 {
		v, previous := judge(coin.GUID, prior, ris)
		receipt.Verdict = &v
		receipt.Previous = previous
		l.logVerdict(merchant, previous, v)
	} else {
		l.log.Info().Str("merchant", merchant).Str("guid", coin.GUID).Uint64("amount", coin.Amount).Msg("deposit credited")
	}
	return receipt, nil
}

// judge compares ris with every earlier deposit. The first PayerIdentified
// verdict is returned; failing that the first MerchantCheated; failing that
// the inconclusive verdict against the oldest deposit.
func judge(guid string, prior []*Deposit, ris *ecash.RIS) (ecash.Verdict, string) {
	var cheated *ecash.Verdict
	var cheatedWith string
	for _, d := range prior {
		v := ecash.DetermineCheater(guid, d.RIS, ris)
		switch v.Kind {
		case ecash.PayerIdentified:
			return v, d.Merchant
		case ecash.MerchantCheated:
			if cheated == nil {
				cheated, cheatedWith = &v, d.Merchant
			}
		}
	}
	if cheated != nil {
		return *cheated, cheatedWith
	}
	return ecash.DetermineCheater(guid, prior[0].RIS, ris), prior[0].Merchant
}

func (l *Ledger) logVerdict(merchant, previous string, v ecash.Verdict) {
	ev := l.log.Warn().
		Str("merchant", merchant).
		Str("previous", previous).
		Str("guid", v.GUID).
		Str("verdict", v.Kind.String()).
		Int("slot", v.Slot)
	if v.Kind == ecash.PayerIdentified {
		ev = ev.Str("payer", v.Payer)
	}
	ev.Msg("coin deposited twice")
}

// HasCoin reports whether guid was deposited.
func (l *Ledger) HasCoin(guid string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.deposits[guid]) > 0
}

// Deposits returns the deposits recorded for guid, oldest first.
func (l *Ledger) Deposits(guid string) []*Deposit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Deposit(nil), l.deposits[guid]...)
}

// GUIDs returns every deposited guid in first-deposit order.
func (l *Ledger) GUIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Credited returns the total face value credited so far.
func (l *Ledger) Credited() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, guid := range l.order {
		total += l.deposits[guid][0].Coin.Amount
	}
	return total
}
