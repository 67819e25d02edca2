package compressor

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdRoundTrip(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	src := bytes.Repeat([]byte("[12:00:00] alice : hello everyone\n"), 64)
	packed, err := c.Compress(nil, src)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(src))

	plain, err := c.Decompress(nil, packed)
	require.NoError(t, err)
	assert.Equal(t, src, plain)
}

func TestZstdCorrupt(t *testing.T) {
	c, err := NewZstdCompressorWithConcurrency(1)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress(nil, []byte("not zstd at all"))
	assert.Error(t, err)
}

func TestZstdClosed(t *testing.T) {
	c, err := NewZstdCompressorWithConcurrency(1)
	require.NoError(t, err)
	c.Close()
	c.Close()

	_, err = c.Compress(nil, []byte("x"))
	assert.ErrorIs(t, err, zstd.ErrEncoderClosed)
	_, err = c.Decompress(nil, []byte("x"))
	assert.ErrorIs(t, err, zstd.ErrDecoderClosed)
}

func TestNew(t *testing.T) {
	c, err := New("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(NameNone)
	assert.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(NameZstd)
	require.NoError(t, err)
	assert.IsType(t, &ZstdCompressor{}, c)

	_, err = New("lz4")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	src := []byte("abc")
	out, err := NopCompressor{}.Compress(nil, src)
	require.NoError(t, err)
	assert.Equal(t, src, out)
	out, err = NopCompressor{}.Decompress(nil, src)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}
