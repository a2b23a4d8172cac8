// Package palette packs palette indices into dense arrays of 64-bit words.
//
// Entries never span a word boundary: each word holds floor(64/bits) entries
// starting at bit 0, and any remaining high bits are left as zero.
package palette

import (
	"errors"
	"math/bits"
)

// MaxBits is the widest entry the packing supports.
const MaxBits = 32

var ErrInvalidBits = errors.New("palette: bits per entry out of range")
var ErrShortInput = errors.New("palette: packed array too short")

// BitsFor returns the number of bits needed to address a palette of the
// given size. It is never less than one.
func BitsFor(paletteSize int) int {
	if paletteSize <= 2 {
		return 1
	}
	return bits.Len(uint(paletteSize - 1))
}

// WordCount returns how many words Pack produces for n entries.
func WordCount(n, bitsPerEntry int) int {
	perWord := 64 / bitsPerEntry
	return (n + perWord - 1) / perWord
}

// BitsFromWords recovers the bit width of a packed array from its length,
// the way archive readers always have.
func BitsFromWords(wordCount, n int) int {
	if n == 0 {
		return 0
	}
	return wordCount * 64 / n
}

// ResolveBits picks the bit width to unpack a stored array with. The width
// implied by the palette size wins whenever it accounts for the stored word
// count; otherwise the width is recovered from the word count alone.
func ResolveBits(paletteSize, wordCount, n int) int {
	if b := BitsFor(paletteSize); WordCount(n, b) == wordCount {
		return b
	}
	return BitsFromWords(wordCount, n)
}

// Pack stores each value in bitsPerEntry bits. Values wider than that are
// masked.
func Pack(values []uint32, bitsPerEntry int) ([]uint64, error) {
	if bitsPerEntry < 1 || bitsPerEntry > MaxBits {
		return nil, ErrInvalidBits
	}
	perWord := 64 / bitsPerEntry
	words := make([]uint64, WordCount(len(values), bitsPerEntry))
	mask := uint64(1)<<bitsPerEntry - 1
	for i, v := range values {
		words[i/perWord] |= (uint64(v) & mask) << ((i % perWord) * bitsPerEntry)
	}
	return words, nil
}

// Unpack fills out from words. len(out) decides how many entries are read.
func Unpack(out []uint32, words []uint64, bitsPerEntry int) error {
	if bitsPerEntry < 1 || bitsPerEntry > MaxBits {
		return ErrInvalidBits
	}
	if WordCount(len(out), bitsPerEntry) > len(words) {
		return ErrShortInput
	}
	perWord := 64 / bitsPerEntry
	mask := uint64(1)<<bitsPerEntry - 1
	for i := range out {
		out[i] = uint32(words[i/perWord] >> ((i % perWord) * bitsPerEntry) & mask)
	}
	return nil
}
