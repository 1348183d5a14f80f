package ecash

import (
	"bytes"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Disclosure is the share a payer revealed for one slot.
type Disclosure struct {
	Side  Side
	Share []byte
}

// RIS (revealed identity sequence) is the transcript of one spend: one
// disclosed share per slot, in slot order.
type RIS struct {
	GUID        string
	Disclosures []Disclosure
}

// Len returns the number of slots.
func (r *RIS) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Disclosures)
}

// Hex returns the disclosed shares hex-encoded, in slot order.
func (r *RIS) Hex() []string {
	out := make([]string, r.Len())
	for i, d := range r.Disclosures {
		out[i] = hex.EncodeToString(d.Share)
	}
	return out
}

// Challenges returns the side challenged at each slot.
func (r *RIS) Challenges() []Side {
	out := make([]Side, r.Len())
	for i, d := range r.Disclosures {
		out[i] = d.Side
	}
	return out
}

// Equal reports whether both transcripts disclosed identical values.
func (r *RIS) Equal(o *RIS) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i := range r.Disclosures {
		if !bytes.Equal(r.Disclosures[i].Share, o.Disclosures[i].Share) {
			return false
		}
	}
	return true
}

// CheckRIS verifies that every disclosed share in ris opens the commitment
// the coin carries for that slot and side. The first failing slot is
// reported as a *HashMismatchError.
func CheckRIS(c *Coin, ris *RIS, hash HashFunc) error {
	if c == nil || ris == nil || hash == nil {
		return errors.Wrap(ErrInvalidInput, "check needs a coin, a transcript and a hash")
	}
	if ris.Len() != c.RISLength() {
		return errors.Wrapf(ErrInvalidInput, "transcript has %d slots, coin has %d", ris.Len(), c.RISLength())
	}
	for i, d := range ris.Disclosures {
		expected := c.LeftHashes[i]
		if d.Side == Right {
			expected = c.RightHashes[i]
		}
		got, err := hash(d.Share)
		if err != nil {
			return err
		}
		if got != expected {
			return &HashMismatchError{Index: i, Side: d.Side}
		}
	}
	return nil
}
