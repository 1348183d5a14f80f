// random.go - Secure randomness for the blindcash protocols.
//
// Every protocol draw (OTP keys, coin guids, cut-and-choose selection and
// per-slot challenge bits) goes through a Source. Integers are sampled with
// Intn, which rejects out-of-band samples instead of reducing them modulo n.

package random

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

// MaxRange is the largest range Intn accepts. Samples are single bytes.
const MaxRange = 256

// GUIDBytes is the number of random bytes behind a coin guid.
const GUIDBytes = 48

// ErrRangeExceeded is returned when a caller asks for a range wider than the
// generator's native output.
var ErrRangeExceeded = errors.New("random: requested range exceeds generator output")

// Source draws uniform values from an underlying byte stream.
// The zero value is not usable; use New or Default.
type Source struct {
	r io.Reader
}

// Default reads from crypto/rand and is shared by the whole process.
var Default = New(rand.Reader)

// New returns a Source reading from r. Passing anything other than a CSPRNG
// outside of tests breaks cut-and-choose and challenge unpredictability.
func New(r io.Reader) *Source {
	return &Source{r: r}
}

func (s *Source) sample() (int, error) {
	var b [1]byte
	if _, err := io.ReadFull(s.r, b[:]); err != nil {
		return 0, errors.Wrap(err, "random: read sample")
	}
	return int(b[0]), nil
}

// Intn returns a uniform integer in [0, n).
//
// A sample is accepted only if it falls below the largest multiple of n not
// exceeding MaxRange, so the result carries no modulo bias. The expected
// number of draws is below two for every n in [1, MaxRange].
func (s *Source) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, errors.Errorf("random: invalid range %d", n)
	}
	if n > MaxRange {
		return 0, errors.Wrapf(ErrRangeExceeded, "range %d > %d", n, MaxRange)
	}
	limit := (MaxRange / n) * n
	for {
		v, err := s.sample()
		if err != nil {
			return 0, err
		}
		if v < limit {
			return v % n, nil
		}
	}
}

// Bit returns a fair coin flip.
func (s *Source) Bit() (bool, error) {
	v, err := s.Intn(2)
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

// Bytes returns n uniform bytes, each one Intn(MaxRange) draw.
func (s *Source) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	for i := range b {
		v, err := s.Intn(MaxRange)
		if err != nil {
			return nil, err
		}
		b[i] = byte(v)
	}
	return b, nil
}

// Read fills p from Bytes, so a Source can feed APIs that take an io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	b, err := s.Bytes(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, b), nil
}

// GUID returns a fresh hex-encoded identifier of GUIDBytes random bytes.
func (s *Source) GUID() (string, error) {
	b, err := s.Bytes(GUIDBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
