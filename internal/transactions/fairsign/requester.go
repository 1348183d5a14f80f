package fairsign

import (
	"math/big"

	"github.com/pkg/errors"

	"blindcash/internal/blindsig"
)

// Requester holds the requester's side of a batch: the plaintexts and the
// blinding factors that must stay secret until the signer asks for them.
type Requester struct {
	pub       *blindsig.PublicKey
	documents []string
	factors   []*big.Int
	blinded   []*big.Int
}

// NewRequester hashes and blinds every document against pub.
func NewRequester(pub *blindsig.PublicKey, documents []string) (*Requester, error) {
	r := &Requester{pub: pub}
	for i, doc := range documents {
		b, err := blindsig.Blind(blindsig.BlindRequest{
			MessageHash: blindsig.HashMessage(doc),
			N:           pub.N,
			E:           pub.E,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "blind document %d", i)
		}
		r.documents = append(r.documents, doc)
		r.factors = append(r.factors, b.Factor)
		r.blinded = append(r.blinded, b.Blinded)
	}
	return r, nil
}

// Blinded returns the values to submit.
func (r *Requester) Blinded() []*big.Int {
	return r.blinded
}

// Disclose returns the factors and documents for every index except
// selected, with nil/empty placeholders at selected.
func (r *Requester) Disclose(selected int) ([]*big.Int, []string) {
	factors := make([]*big.Int, len(r.factors))
	docs := make([]string, len(r.documents))
	for i := range r.factors {
		if i == selected {
			continue
		}
		factors[i] = r.factors[i]
		docs[i] = r.documents[i]
	}
	return factors, docs
}

// Finish unblinds the signer's answer for document selected and checks it.
func (r *Requester) Finish(selected int, blindSig *big.Int) (*big.Int, error) {
	if selected < 0 || selected >= len(r.documents) {
		return nil, errors.Wrapf(ErrInvalidInput, "selected index %d", selected)
	}
	sig, err := blindsig.Unblind(blindsig.UnblindRequest{
		Signed: blindSig,
		N:      r.pub.N,
		Factor: r.factors[selected],
	})
	if err != nil {
		return nil, err
	}
	ok := blindsig.Verify(blindsig.VerifyRequest{
		Unblinded:   sig,
		MessageHash: blindsig.HashMessage(r.documents[selected]),
		N:           r.pub.N,
		E:           r.pub.E,
	})
	if !ok {
		return nil, errors.New("fairsign: unblinded signature does not verify")
	}
	return sig, nil
}

// Document returns the plaintext at i.
func (r *Requester) Document(i int) string {
	return r.documents[i]
}
