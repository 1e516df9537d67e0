// Package fairness derives the auditable number sequence behind every round.
//
// A sequence is a pure function of one public block hash: the AES-256 key is
// SHA-256 of the hash string, and entry i is the first four bytes (little
// endian) of AES-256-CBC(zero IV, PKCS#7) over the four little-endian bytes
// of i. Anyone holding the hash can recompute any entry with At.
package fairness

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// SequenceLength is the number of entries derived per anchor.
const SequenceLength = 5000

// Generator derives sequences of a fixed length.
type Generator struct {
	length int
}

func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = SequenceLength
	}
	return &Generator{length: length}
}

func (g *Generator) Length() int {
	return g.length
}

// Generate returns the full sequence for hash. Generation is all-or-nothing:
// a failure on any index returns an error and no partial sequence.
func (g *Generator) Generate(hash string) ([]uint32, error) {
	block, err := newBlock(hash)
	if err != nil {
		return nil, err
	}

	out := make([]uint32, g.length)
	for i := 0; i < g.length; i++ {
		v, err := encryptIndex(block, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("derive index %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// At recomputes a single entry of the sequence for hash.
func At(hash string, seq int) (uint32, error) {
	if seq < 0 {
		return 0, fmt.Errorf("negative sequence index %d", seq)
	}
	block, err := newBlock(hash)
	if err != nil {
		return 0, err
	}
	return encryptIndex(block, uint32(seq))
}

// Verify reports whether value is entry seq of the sequence derived from hash.
func Verify(hash string, seq int, value uint32) (bool, error) {
	got, err := At(hash, seq)
	if err != nil {
		return false, err
	}
	return got == value, nil
}

// Key is the AES-256 key derived from an anchor hash.
func Key(hash string) []byte {
	sum := sha256.Sum256([]byte(hash))
	return sum[:]
}

func newBlock(hash string) (cipher.Block, error) {
	if hash == "" {
		return nil, fmt.Errorf("empty anchor hash")
	}
	block, err := aes.NewCipher(Key(hash))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return block, nil
}

func encryptIndex(block cipher.Block, i uint32) (uint32, error) {
	plain := make([]byte, 4)
	binary.LittleEndian.PutUint32(plain, i)
	plain = pkcs7Pad(plain, block.BlockSize())
	if len(plain)%block.BlockSize() != 0 {
		return 0, fmt.Errorf("plaintext not block aligned")
	}

	iv := make([]byte, block.BlockSize())
	sealed := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(sealed, plain)

	return binary.LittleEndian.Uint32(sealed[:4]), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
