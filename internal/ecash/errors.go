package ecash

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInput          = errors.New("ecash: invalid input")
	ErrIndexOutOfRange       = errors.New("ecash: slot index out of range")
	ErrInvalidSignature      = errors.New("ecash: invalid coin signature")
	ErrHashMismatch          = errors.New("ecash: share does not match its commitment")
	ErrInvalidIdentityString = errors.New("ecash: invalid identity string")
	ErrSignatureAlreadySet   = errors.New("ecash: coin is already signed")
	ErrNotBlinded            = errors.New("ecash: coin has not been blinded")
	ErrUnknownHash           = errors.New("ecash: unknown share hash algorithm")
)

// HashMismatchError reports the first slot whose disclosed share failed its
// commitment check. It matches ErrHashMismatch under errors.Is.
type HashMismatchError struct {
	Index int
	Side  Side
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("ecash: hash mismatch at index %d (%s share)", e.Index, e.Side)
}

func (e *HashMismatchError) Is(target error) bool {
	return target == ErrHashMismatch
}
