package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetloc(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("example.com", Netloc("https://example.com/path?q=1"))
	assert.Equal("example.com", Netloc("example.com/path"))
	assert.Equal("example.com", Netloc("EXAMPLE.com"))
	assert.Equal("t.me", Netloc("t.me/spamchannel"))
	assert.Equal("", Netloc(""))
	assert.Equal("", Netloc("://nope"))
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	out, err := normalize("Example.COM/a/../b/")
	assert.NoError(err)
	assert.Equal("http://example.com/b", out)

	out, err = normalize("https://example.com:443/x")
	assert.NoError(err)
	assert.Equal("https://example.com/x", out)
}
