package ecash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"blindcash/internal/blindsig"
	"blindcash/internal/random"
)

var (
	authOnce sync.Once
	testAuth *Authority
	authErr  error
)

func authority(t *testing.T) *Authority {
	t.Helper()
	authOnce.Do(func() {
		testAuth, authErr = NewAuthority("test-bank", 1024)
	})
	if authErr != nil {
		t.Fatalf("NewAuthority failed: %v", authErr)
	}
	return testAuth
}

// spendAs builds the transcript a merchant would collect with the given
// challenge sides.
func spendAs(t *testing.T, c *Coin, sides []Side) *RIS {
	t.Helper()
	ris := &RIS{GUID: c.GUID}
	for i, side := range sides {
		share, err := c.GetShare(side, i)
		if err != nil {
			t.Fatalf("GetShare(%s, %d) failed: %v", side, i, err)
		}
		ris.Disclosures = append(ris.Disclosures, Disclosure{Side: side, Share: share})
	}
	return ris
}

func allSides(n int, side Side) []Side {
	out := make([]Side, n)
	for i := range out {
		out[i] = side
	}
	return out
}

func TestNewCoinCommitsToShares(t *testing.T) {
	a := authority(t)
	c, err := NewCoin("alice", 20, 8, a.PublicKey())
	if err != nil {
		t.Fatalf("NewCoin failed: %v", err)
	}
	if c.RISLength() != 8 || len(c.RightHashes) != 8 {
		t.Fatalf("expected 8 slots, got %d/%d", len(c.LeftHashes), len(c.RightHashes))
	}
	if len(c.GUID) != 96 {
		t.Errorf("guid length %d, want 96", len(c.GUID))
	}
	hash, _ := LookupHash(HashSHA256)
	for i := 0; i < c.RISLength(); i++ {
		left, _ := c.GetShare(Left, i)
		right, _ := c.GetShare(Right, i)
		if h, _ := hash(left); h != c.LeftHashes[i] {
			t.Errorf("left hash mismatch at %d", i)
		}
		if h, _ := hash(right); h != c.RightHashes[i] {
			t.Errorf("right hash mismatch at %d", i)
		}
		plain := make([]byte, len(left))
		for j := range left {
			plain[j] = left[j] ^ right[j]
		}
		if string(plain) != "IDENT:alice" {
			t.Errorf("slot %d reconstructs %q", i, plain)
		}
	}
}

func TestNewCoinRejectsBadInput(t *testing.T) {
	pub := authority(t).PublicKey()
	cases := []struct {
		name   string
		payer  string
		amount uint64
		slots  int
		pub    *blindsig.PublicKey
	}{
		{"empty payer", "", 1, 4, pub},
		{"zero amount", "alice", 0, 4, pub},
		{"no slots", "alice", 1, 0, pub},
		{"no key", "alice", 1, 4, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCoin(tc.payer, tc.amount, tc.slots, tc.pub); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if _, err := NewCoin("alice", 1, 1, pub, WithShareHash("md5")); !errors.Is(err, ErrUnknownHash) {
		t.Fatalf("expected ErrUnknownHash, got %v", err)
	}
}

func TestGetShareOutOfRange(t *testing.T) {
	c, err := NewCoin("alice", 5, 4, authority(t).PublicKey())
	if err != nil {
		t.Fatalf("NewCoin failed: %v", err)
	}
	for _, i := range []int{-1, 4, 100} {
		if _, err := c.GetShare(Left, i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("GetShare(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
	share, _ := c.GetShare(Left, 0)
	share[0] ^= 0xff
	again, _ := c.GetShare(Left, 0)
	if bytes.Equal(share, again) {
		t.Error("GetShare must return a copy")
	}
}

func TestCanonicalStringRoundTrip(t *testing.T) {
	c, err := NewCoin("alice", 20, 4, authority(t).PublicKey())
	if err != nil {
		t.Fatalf("NewCoin failed: %v", err)
	}
	s := c.String()
	if !strings.HasPrefix(s, "BANK-20-"+c.GUID+"-") {
		t.Fatalf("unexpected canonical string %q", s)
	}
	parsed, err := ParseCoinString(s)
	if err != nil {
		t.Fatalf("ParseCoinString failed: %v", err)
	}
	if parsed.Amount != 20 || parsed.GUID != c.GUID {
		t.Errorf("parsed %+v", parsed)
	}
	for i := range c.LeftHashes {
		if parsed.LeftHashes[i] != c.LeftHashes[i] || parsed.RightHashes[i] != c.RightHashes[i] {
			t.Fatalf("hash %d differs after parse", i)
		}
	}
}

func TestParseCoinStringRejectsForeignMarker(t *testing.T) {
	c, _ := NewCoin("alice", 20, 2, authority(t).PublicKey())
	forged := "MINT" + strings.TrimPrefix(c.String(), BankMarker)
	for _, s := range []string{forged, "BANK-1-guid", "BANK-x-guid-a-b", "BANK-1-guid-a,b-c"} {
		if _, err := ParseCoinString(s); !errors.Is(err, ErrInvalidIdentityString) {
			t.Errorf("ParseCoinString(%q): expected ErrInvalidIdentityString, got %v", s, err)
		}
	}
}

func TestIssueCoin(t *testing.T) {
	a := authority(t)
	c, err := IssueCoin(a, "alice", 20, 16)
	if err != nil {
		t.Fatalf("IssueCoin failed: %v", err)
	}
	if !c.VerifySignature(a.PublicKey()) {
		t.Fatal("issued coin does not verify")
	}
	if c.Blinded() != nil {
		t.Error("transient blinding state should be cleared")
	}
	if _, err := c.Blind(); !errors.Is(err, ErrSignatureAlreadySet) {
		t.Errorf("expected ErrSignatureAlreadySet, got %v", err)
	}
	if err := c.Unblind(big.NewInt(1)); !errors.Is(err, ErrNotBlinded) {
		t.Errorf("expected ErrNotBlinded, got %v", err)
	}

	c.LeftHashes[3] = strings.Repeat("0", 64)
	if c.VerifySignature(a.PublicKey()) {
		t.Error("mutated coin must not verify")
	}
}

func TestUnblindRejectsForeignSignature(t *testing.T) {
	a := authority(t)
	c, _ := NewCoin("alice", 20, 2, a.PublicKey())
	if _, err := c.Blind(); err != nil {
		t.Fatalf("Blind failed: %v", err)
	}
	if err := c.Unblind(big.NewInt(12345)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if c.Signature() != nil {
		t.Fatal("signature must stay unset")
	}
}

func TestShareHashes(t *testing.T) {
	data := bytes.Repeat([]byte("IDENT:alice"), 10)
	seen := map[string]bool{}
	for _, name := range HashNames() {
		h, err := LookupHash(name)
		if err != nil {
			t.Fatalf("LookupHash(%s) failed: %v", name, err)
		}
		d1, err := h(data)
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		d2, _ := h(data)
		if d1 != d2 {
			t.Errorf("%s is not deterministic", name)
		}
		other, _ := h(append([]byte{0}, data...))
		if other == d1 {
			t.Errorf("%s ignores a leading zero byte", name)
		}
		seen[d1] = true
	}
	if len(seen) != len(HashNames()) {
		t.Error("algorithms produced identical digests")
	}
}

func TestCoinWithMiMCShares(t *testing.T) {
	c, err := NewCoin("bob", 7, 4, authority(t).PublicKey(), WithShareHash(HashMiMC))
	if err != nil {
		t.Fatalf("NewCoin failed: %v", err)
	}
	h, _ := LookupHash(HashMiMC)
	share, _ := c.GetShare(Right, 2)
	if got, _ := h(share); got != c.RightHashes[2] {
		t.Fatal("mimc commitment mismatch")
	}
}

func TestDetermineCheater(t *testing.T) {
	c, err := NewCoin("alice", 20, 8, authority(t).PublicKey())
	if err != nil {
		t.Fatalf("NewCoin failed: %v", err)
	}
	left := allSides(8, Left)
	mixed := allSides(8, Left)
	mixed[5] = Right

	t.Run("double spend", func(t *testing.T) {
		v := DetermineCheater(c.GUID, spendAs(t, c, left), spendAs(t, c, mixed))
		if v.Kind != PayerIdentified || v.Payer != "alice" || v.Slot != 5 {
			t.Fatalf("unexpected verdict %+v", v)
		}
		if !strings.Contains(v.String(), "double-spent by purchaser: alice") {
			t.Errorf("unexpected message %q", v.String())
		}
	})

	t.Run("same transcript twice", func(t *testing.T) {
		ris := spendAs(t, c, mixed)
		v := DetermineCheater(c.GUID, ris, ris)
		if v.Kind != Inconclusive || v.Slot != -1 {
			t.Fatalf("unexpected verdict %+v", v)
		}
	})

	t.Run("forged share", func(t *testing.T) {
		a, b := spendAs(t, c, left), spendAs(t, c, left)
		b.Disclosures[2].Share = bytes.Repeat([]byte{0x80}, len(b.Disclosures[2].Share))
		v := DetermineCheater(c.GUID, a, b)
		if v.Kind != MerchantCheated || v.Slot != 2 {
			t.Fatalf("unexpected verdict %+v", v)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		a, b := spendAs(t, c, left), spendAs(t, c, left[:4])
		if v := DetermineCheater(c.GUID, a, b); v.Kind != MerchantCheated {
			t.Fatalf("unexpected verdict %+v", v)
		}
		b = spendAs(t, c, left)
		b.Disclosures[0].Share = b.Disclosures[0].Share[:3]
		if v := DetermineCheater(c.GUID, a, b); v.Kind != MerchantCheated || v.Slot != 0 {
			t.Fatalf("unexpected verdict %+v", v)
		}
	})
}

func TestDetermineCheaterKeepsColonsInPayer(t *testing.T) {
	c, err := NewCoin("acct:42", 1, 2, authority(t).PublicKey())
	if err != nil {
		t.Fatalf("NewCoin failed: %v", err)
	}
	v := DetermineCheater(c.GUID, spendAs(t, c, []Side{Left, Left}), spendAs(t, c, []Side{Left, Right}))
	if v.Kind != PayerIdentified || v.Payer != "acct:42" {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestCheckRIS(t *testing.T) {
	c, err := IssueCoin(authority(t), "alice", 20, 6)
	if err != nil {
		t.Fatalf("IssueCoin failed: %v", err)
	}
	sha, _ := LookupHash(HashSHA256)
	sides := []Side{Left, Right, Left, Left, Right, Right}
	ris := spendAs(t, c, sides)
	if err := CheckRIS(c, ris, sha); err != nil {
		t.Fatalf("honest transcript rejected: %v", err)
	}
	if got := ris.Hex(); len(got) != 6 || got[1] != hex.EncodeToString(ris.Disclosures[1].Share) {
		t.Fatalf("Hex = %v", got)
	}

	// claim the other side for slot 4
	ris.Disclosures[4].Side = Left
	err = CheckRIS(c, ris, sha)
	var hm *HashMismatchError
	if !errors.As(err, &hm) || hm.Index != 4 || hm.Side != Left {
		t.Fatalf("expected mismatch at slot 4, got %v", err)
	}

	ris.Disclosures = ris.Disclosures[:5]
	if err := CheckRIS(c, ris, sha); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short transcript, got %v", err)
	}
}

func TestBlindDrawsFromCoinSource(t *testing.T) {
	a := authority(t)
	blindOnce := func() *big.Int {
		c, err := NewCoin("alice", 20, 4, a.PublicKey(), WithSource(random.New(newStream("seed"))))
		if err != nil {
			t.Fatalf("NewCoin failed: %v", err)
		}
		b, err := c.Blind()
		if err != nil {
			t.Fatalf("Blind failed: %v", err)
		}
		return b
	}
	if blindOnce().Cmp(blindOnce()) != 0 {
		t.Fatal("coins built from the same source blinded differently")
	}
}

// stream is a deterministic SHA-256 counter-mode byte stream.
type stream struct {
	seed []byte
	ctr  uint64
	buf  []byte
}

func newStream(seed string) *stream {
	return &stream{seed: []byte(seed)}
}

func (s *stream) Read(p []byte) (int, error) {
	for len(s.buf) < len(p) {
		var block [8]byte
		binary.BigEndian.PutUint64(block[:], s.ctr)
		s.ctr++
		sum := sha256.Sum256(append(append([]byte(nil), s.seed...), block[:]...))
		s.buf = append(s.buf, sum[:]...)
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}
