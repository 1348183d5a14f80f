// fairsign.go - Cut-and-choose blind signing.
//
// A requester submits k blinded documents. The signer picks one at random,
// then demands the blinding factor and plaintext of every other document and
// rebuilds each blinded value. Only if all of them match does it sign the
// picked one, which it never sees in the clear. A requester hiding one bad
// document among k is caught with probability (k-1)/k.
//
// Flow:
//  1. Submit: Collecting -> Selected
//  2. VerifyAndSign: Selected -> Verifying -> Signed | Aborted
//
// A batch is owned by one goroutine and is never retried.

package fairsign

import (
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"blindcash/internal/blindsig"
	"blindcash/internal/ecash"
	"blindcash/internal/random"
)

var (
	ErrInvalidInput          = errors.New("fairsign: invalid input")
	ErrCutAndChooseViolation = errors.New("fairsign: disclosure does not reconstruct the submitted document")
	ErrBatchState            = errors.New("fairsign: operation not allowed in current batch state")
)

// ViolationError names the first index whose disclosure failed. It matches
// ErrCutAndChooseViolation under errors.Is.
type ViolationError struct {
	Index  int
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("fairsign: cut-and-choose violation at index %d: %s", e.Index, e.Reason)
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrCutAndChooseViolation
}

// State is the lifecycle of a Batch.
type State int

const (
	Collecting State = iota
	Selected
	Verifying
	Signed
	Aborted
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Selected:
		return "selected"
	case Verifying:
		return "verifying"
	case Signed:
		return "signed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DocumentPolicy inspects a revealed plaintext. A non-nil error aborts the
// batch.
type DocumentPolicy func(document string) error

// Observer is told how each batch ended.
type Observer interface {
	BatchFinished(state State, size int, elapsed time.Duration)
}

// Signer runs cut-and-choose batches on behalf of an Authority.
type Signer struct {
	authority *ecash.Authority
	pub       *blindsig.PublicKey
	src       *random.Source
	policy    DocumentPolicy
	observer  Observer
	log       zerolog.Logger
}

// Option configures a Signer.
type Option func(*Signer)

// WithSource draws selection indices from src.
func WithSource(src *random.Source) Option {
	return func(s *Signer) { s.src = src }
}

// WithDocumentPolicy runs p over every revealed document.
func WithDocumentPolicy(p DocumentPolicy) Option {
	return func(s *Signer) { s.policy = p }
}

// WithObserver reports batch outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Signer) { s.observer = o }
}

// WithLogger overrides the authority's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Signer) { s.log = log }
}

// NewSigner returns a Signer backed by a.
func NewSigner(a *ecash.Authority, opts ...Option) *Signer {
	s := &Signer{
		authority: a,
		pub:       a.PublicKey(),
		src:       random.Default,
		log:       a.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "fairsign").Logger()
	return s
}

// PublicKey returns the key requesters blind against.
func (s *Signer) PublicKey() *blindsig.PublicKey {
	return s.pub
}

// Batch is one cut-and-choose exchange.
type Batch struct {
	signer   *Signer
	blinded  []*big.Int
	selected int
	state    State
	started  time.Time
}

// Submit records the blinded documents and picks the one to be signed.
// At least two documents are required, and at most random.MaxRange.
func (s *Signer) Submit(blinded []*big.Int) (*Batch, error) {
	b := &Batch{signer: s, state: Collecting, selected: -1, started: time.Now()}
	if len(blinded) < 2 {
		return nil, errors.Wrapf(ErrInvalidInput, "batch of %d documents", len(blinded))
	}
	for i, d := range blinded {
		if d == nil || d.Sign() <= 0 || d.Cmp(s.pub.N) >= 0 {
			return nil, errors.Wrapf(ErrInvalidInput, "blinded document %d out of range", i)
		}
		b.blinded = append(b.blinded, new(big.Int).Set(d))
	}
	idx, err := s.src.Intn(len(blinded))
	if err != nil {
		return nil, errors.Wrap(err, "select document")
	}
	b.selected = idx
	b.state = Selected
	s.log.Debug().Int("size", len(blinded)).Msg("batch submitted")
	return b, nil
}

// Selected is the index the signer will sign. The requester withholds the
// disclosures for it.
func (b *Batch) Selected() int {
	return b.selected
}

// State returns the batch's current state.
func (b *Batch) State() State {
	return b.state
}

// Size is the number of submitted documents.
func (b *Batch) Size() int {
	return len(b.blinded)
}

// VerifyAndSign checks the disclosures for every index except Selected and,
// if all of them rebuild the submitted blinded values, returns the blind
// signature over the selected document. factors and documents are indexed
// like the submitted batch; their entries at Selected are ignored.
//
// Any failure aborts the batch for good.
func (b *Batch) VerifyAndSign(factors []*big.Int, documents []string) (*big.Int, error) {
	if b.state != Selected {
		return nil, errors.Wrapf(ErrBatchState, "batch is %s", b.state)
	}
	b.state = Verifying

	sig, err := b.verifyAndSign(factors, documents)
	if err != nil {
		b.finish(Aborted)
		b.signer.log.Warn().Err(err).Int("size", len(b.blinded)).Msg("batch aborted")
		return nil, err
	}
	b.finish(Signed)
	b.signer.log.Info().Int("size", len(b.blinded)).Int("selected", b.selected).Msg("batch signed")
	return sig, nil
}

func (b *Batch) verifyAndSign(factors []*big.Int, documents []string) (*big.Int, error) {
	k := len(b.blinded)
	if len(factors) != k || len(documents) != k {
		return nil, errors.Wrapf(ErrInvalidInput, "got %d factors and %d documents for %d submissions",
			len(factors), len(documents), k)
	}
	pub := b.signer.pub
	for i := 0; i < k; i++ {
		if i == b.selected {
			continue
		}
		if factors[i] == nil {
			return nil, &ViolationError{Index: i, Reason: "missing blinding factor"}
		}
		rebuilt, err := blindsig.BlindWith(blindsig.BlindRequest{
			MessageHash: blindsig.HashMessage(documents[i]),
			N:           pub.N,
			E:           pub.E,
		}, factors[i])
		if err != nil {
			return nil, &ViolationError{Index: i, Reason: err.Error()}
		}
		if rebuilt.Cmp(b.blinded[i]) != 0 {
			return nil, &ViolationError{Index: i, Reason: "blinded value mismatch"}
		}
		if b.signer.policy != nil {
			if err := b.signer.policy(documents[i]); err != nil {
				return nil, &ViolationError{Index: i, Reason: "policy: " + err.Error()}
			}
		}
	}
	return b.signer.authority.SignBlinded(b.blinded[b.selected])
}

func (b *Batch) finish(state State) {
	b.state = state
	if b.signer.observer != nil {
		b.signer.observer.BatchFinished(state, len(b.blinded), time.Since(b.started))
	}
}
