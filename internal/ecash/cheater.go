// cheater.go - Double-spend and double-deposit detection.

package ecash

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"blindcash/internal/otp"
)

// VerdictKind classifies the outcome of comparing two transcripts.
type VerdictKind int

const (
	// Inconclusive: the transcripts never disagree.
	Inconclusive VerdictKind = iota
	// PayerIdentified: the coin was spent twice and the payer is known.
	PayerIdentified
	// MerchantCheated: a merchant reused or fabricated a transcript.
	MerchantCheated
)

func (k VerdictKind) String() string {
	switch k {
	case PayerIdentified:
		return "payer_identified"
	case MerchantCheated:
		return "merchant_cheated"
	default:
		return "inconclusive"
	}
}

// Verdict is the result of DetermineCheater. Slot is the first slot where
// the transcripts disagree, or -1.
type Verdict struct {
	Kind  VerdictKind
	GUID  string
	Payer string
	Slot  int
}

func (v Verdict) String() string {
	switch v.Kind {
	case PayerIdentified:
		return fmt.Sprintf("Coin %s was double-spent by purchaser: %s", v.GUID, v.Payer)
	case MerchantCheated:
		return fmt.Sprintf("Coin %s was faked or reused by merchant.", v.GUID)
	default:
		return fmt.Sprintf("Coin %s: RIS strings identical. Possible mistake or reuse.", v.GUID)
	}
}

// DetermineCheater compares two transcripts of coin guid.
//
// At the first slot where the disclosed shares differ the two spends drew
// opposite sides, so their XOR is the marked identity. If the XOR does not
// carry IdentMarker (including anything that is not valid UTF-8) the shares
// cannot be the two halves of one pad and a merchant is blamed. Transcripts
// of different lengths, or whose differing shares have different lengths,
// were not produced by honest challenges of the same coin and are blamed on
// the merchant as well.
func DetermineCheater(guid string, a, b *RIS) Verdict {
	if a.Len() != b.Len() {
		return Verdict{Kind: MerchantCheated, GUID: guid, Slot: -1}
	}
	for i := 0; i < a.Len(); i++ {
		x, y := a.Disclosures[i].Share, b.Disclosures[i].Share
		if bytes.Equal(x, y) {
			continue
		}
		plain, err := otp.Combine(x, y)
		if err != nil {
			return Verdict{Kind: MerchantCheated, GUID: guid, Slot: i}
		}
		if payer, ok := recoverPayer(plain); ok {
			return Verdict{Kind: PayerIdentified, GUID: guid, Payer: payer, Slot: i}
		}
		return Verdict{Kind: MerchantCheated, GUID: guid, Slot: i}
	}
	return Verdict{Kind: Inconclusive, GUID: guid, Slot: -1}
}

func recoverPayer(plain []byte) (string, bool) {
	if !utf8.Valid(plain) {
		return "", false
	}
	payer, ok := strings.CutPrefix(string(plain), IdentMarker+":")
	if !ok || payer == "" {
		return "", false
	}
	return payer, true
}
