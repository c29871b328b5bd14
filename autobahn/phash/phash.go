// Package phash implements perceptual image hashing and fuzzy comparison of
// hash fingerprints.
//
// Hashes are hex-encoded strings. Two hashes are "similar" when their Hamming
// distance (over the decoded bits) is at or below a caller-supplied tolerance;
// visually similar images produce hashes with small bit-distance.
package phash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

// Returned when two hash encodings can not be compared (length mismatch or
// non-hex input). This indicates corrupt blacklist data and must not be
// swallowed as a non-match.
var ErrMalformedHash = errors.New("malformed perceptual hash")

// DefaultTolerance is the bit-distance threshold used by the matcher pipeline.
const DefaultTolerance = 2

var hexNibbles = "0123456789abcdef"

func nibble(c byte) (uint8, bool) {
	idx := strings.IndexByte(hexNibbles, c)
	if idx < 0 {
		return 0, false
	}
	return uint8(idx), true
}

// Distance computes the Hamming distance between two hex-encoded hashes of
// equal length.
func Distance(a, b string) (int, error) {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: length mismatch (%d != %d)", ErrMalformedHash, len(a), len(b))
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		na, ok := nibble(a[i])
		if !ok {
			return 0, fmt.Errorf("%w: invalid hex character %q", ErrMalformedHash, a[i])
		}
		nb, ok := nibble(b[i])
		if !ok {
			return 0, fmt.Errorf("%w: invalid hex character %q", ErrMalformedHash, b[i])
		}
		dist += bits.OnesCount8(na ^ nb)
	}
	return dist, nil
}

// Similar reports whether two hashes are within tolerance bits of each other.
func Similar(a, b string, tolerance int) (bool, error) {
	dist, err := Distance(a, b)
	if err != nil {
		return false, err
	}
	return dist <= tolerance, nil
}

// HashImage decodes raw image bytes (JPEG, PNG, or GIF) and returns the
// hex-encoded average-hash fingerprint, in the same encoding the comparator
// consumes.
func HashImage(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", fmt.Errorf("computing average hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}
