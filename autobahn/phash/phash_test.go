package phash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	assert := assert.New(t)

	d, err := Distance("00000000", "00000000")
	assert.NoError(err)
	assert.Equal(0, d)

	// one flipped bit
	d, err = Distance("00000001", "00000000")
	assert.NoError(err)
	assert.Equal(1, d)

	// 0x3 vs 0x0 flips two bits
	d, err = Distance("30000000", "00000000")
	assert.NoError(err)
	assert.Equal(2, d)

	// full nibble flip
	d, err = Distance("f0000000", "00000000")
	assert.NoError(err)
	assert.Equal(4, d)

	// case-insensitive
	d, err = Distance("ABCD", "abcd")
	assert.NoError(err)
	assert.Equal(0, d)
}

func TestSimilarTolerance(t *testing.T) {
	assert := assert.New(t)

	// distance exactly 2 matches under tolerance 2
	ok, err := Similar("30000000", "00000000", 2)
	assert.NoError(err)
	assert.True(ok)

	// distance 3 does not
	ok, err = Similar("70000000", "00000000", 2)
	assert.NoError(err)
	assert.False(ok)
}

func TestSimilarSymmetric(t *testing.T) {
	assert := assert.New(t)

	pairs := [][2]string{
		{"30000000", "00000000"},
		{"ffffffff", "00000000"},
		{"deadbeef", "deadbeee"},
	}
	for _, p := range pairs {
		for _, tol := range []int{0, 1, 2, 8} {
			ab, err := Similar(p[0], p[1], tol)
			assert.NoError(err)
			ba, err := Similar(p[1], p[0], tol)
			assert.NoError(err)
			assert.Equal(ab, ba)
		}
	}
}

func TestSimilarMonotonic(t *testing.T) {
	assert := assert.New(t)

	a, b := "deadbeefcafe0123", "deadbeefcafe0120"
	for tol := 0; tol < 8; tol++ {
		lo, err := Similar(a, b, tol)
		assert.NoError(err)
		hi, err := Similar(a, b, tol+1)
		assert.NoError(err)
		if lo {
			assert.True(hi, "similar at tolerance %d but not %d", tol, tol+1)
		}
	}
}

func TestMalformedHash(t *testing.T) {
	assert := assert.New(t)

	_, err := Similar("abcd", "abcdef", 2)
	assert.ErrorIs(err, ErrMalformedHash)

	_, err = Similar("xyzw", "abcd", 2)
	assert.ErrorIs(err, ErrMalformedHash)

	_, err = Distance("", "00")
	assert.ErrorIs(err, ErrMalformedHash)
}

func TestHashImage(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	solid := func(c color.Color) []byte {
		img := image.NewRGBA(image.Rect(0, 0, 32, 32))
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				img.Set(x, y, c)
			}
		}
		buf := new(bytes.Buffer)
		require.NoError(png.Encode(buf, img))
		return buf.Bytes()
	}

	white := solid(color.White)
	h1, err := HashImage(white)
	require.NoError(err)
	assert.Len(h1, 16)

	// hashing is deterministic
	h2, err := HashImage(white)
	require.NoError(err)
	assert.Equal(h1, h2)

	// identical images are similar at any tolerance
	ok, err := Similar(h1, h2, 0)
	require.NoError(err)
	assert.True(ok)

	_, err = HashImage([]byte("not an image"))
	assert.Error(err)
}
