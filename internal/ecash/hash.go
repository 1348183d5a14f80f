// hash.go - Share commitment hashes.
//
// A coin commits to every share by a hex digest. The algorithm is a system
// parameter shared by payers and merchants; it is not part of the signed
// canonical string.

package ecash

import (
	"encoding/binary"
	"encoding/hex"

	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	HashSHA256  = "sha256"
	HashBlake2b = "blake2b"
	HashMiMC    = "mimc"
)

// HashFunc digests a share to the hex string stored in a coin.
type HashFunc func(data []byte) (string, error)

var hashes = map[string]HashFunc{
	HashSHA256:  sha256Hex,
	HashBlake2b: blake2bHex,
	HashMiMC:    mimcHex,
}

// LookupHash returns the share hash registered under name.
func LookupHash(name string) (HashFunc, error) {
	h, ok := hashes[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHash, "%q", name)
	}
	return h, nil
}

// HashNames lists the registered algorithms.
func HashNames() []string {
	return []string{HashSHA256, HashBlake2b, HashMiMC}
}

func sha256Hex(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func blake2bHex(data []byte) (string, error) {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// mimcChunk is one byte short of the MiMC block so a zero-padded chunk is
// always a canonical field element.
const mimcChunk = mimcNative.BlockSize - 1

// mimcHex hashes arbitrary bytes with BW6-761 MiMC. The input length is
// absorbed first, then the data in zero-prefixed chunks.
func mimcHex(data []byte) (string, error) {
	h := mimcNative.NewMiMC()
	block := make([]byte, mimcNative.BlockSize)
	binary.BigEndian.PutUint64(block[len(block)-8:], uint64(len(data)))
	if _, err := h.Write(block); err != nil {
		return "", errors.Wrap(err, "mimc: absorb length")
	}
	for start := 0; start < len(data); start += mimcChunk {
		end := start + mimcChunk
		if end > len(data) {
			end = len(data)
		}
		for i := range block {
			block[i] = 0
		}
		copy(block[len(block)-(end-start):], data[start:end])
		if _, err := h.Write(block); err != nil {
			return "", errors.Wrap(err, "mimc: absorb chunk")
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
