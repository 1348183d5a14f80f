// Package otp splits byte strings into one-time-pad share pairs.
//
// A Pad holds a uniformly random Key and Ciphertext = plaintext XOR Key.
// Either half alone is independent of the plaintext; both halves XOR back to
// it exactly.
package otp

import (
	"github.com/pkg/errors"

	"blindcash/internal/random"
)

var (
	ErrInvalidInput   = errors.New("otp: empty plaintext")
	ErrLengthMismatch = errors.New("otp: key and ciphertext lengths differ")
)

// Pad is a share pair produced by Split.
type Pad struct {
	Key        []byte
	Ciphertext []byte
}

// Split draws a fresh key from random.Default and pads plaintext with it.
func Split(plaintext []byte) (Pad, error) {
	return SplitWith(random.Default, plaintext)
}

// SplitWith is Split with an explicit randomness source.
func SplitWith(src *random.Source, plaintext []byte) (Pad, error) {
	if len(plaintext) == 0 {
		return Pad{}, ErrInvalidInput
	}
	key, err := src.Bytes(len(plaintext))
	if err != nil {
		return Pad{}, errors.Wrap(err, "otp: draw key")
	}
	return Pad{Key: key, Ciphertext: xor(plaintext, key)}, nil
}

// Combine XORs the two halves of a pad back together.
func Combine(key, ciphertext []byte) ([]byte, error) {
	if len(key) != len(ciphertext) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d != %d", len(key), len(ciphertext))
	}
	return xor(key, ciphertext), nil
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
