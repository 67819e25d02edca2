package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRoundTrip(t *testing.T) {
	a, err := NewFromSecret([]byte("lobby-secret"))
	require.NoError(t, err)
	b, err := NewFromSecret([]byte("lobby-secret"))
	require.NoError(t, err)

	aad := []byte("op=4,seq=7")
	packet, err := a.Encrypt([]byte("[10:00:00] alice : hi\n"), aad)
	require.NoError(t, err)

	plain, err := b.Decrypt(packet, aad)
	require.NoError(t, err)
	assert.Equal(t, "[10:00:00] alice : hi\n", string(plain))
}

func TestNoncesDiffer(t *testing.T) {
	c, err := NewFromSecret([]byte("s"))
	require.NoError(t, err)
	p1, err := c.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	p2, err := c.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestWrongSecret(t *testing.T) {
	a, err := NewFromSecret([]byte("one"))
	require.NoError(t, err)
	b, err := NewFromSecret([]byte("two"))
	require.NoError(t, err)

	packet, err := a.Encrypt([]byte("hello"), nil)
	require.NoError(t, err)
	_, err = b.Decrypt(packet, nil)
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestTamperedAAD(t *testing.T) {
	c, err := NewFromSecret([]byte("s"))
	require.NoError(t, err)
	packet, err := c.Encrypt([]byte("hello"), []byte("seq=1"))
	require.NoError(t, err)
	_, err = c.Decrypt(packet, []byte("seq=2"))
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestTamperedPacket(t *testing.T) {
	c, err := NewFromSecret([]byte("s"))
	require.NoError(t, err)
	packet, err := c.Encrypt([]byte("hello"), nil)
	require.NoError(t, err)
	packet[len(packet)/2] ^= 0xff
	_, err = c.Decrypt(packet, nil)
	assert.ErrorIs(t, err, ErrInvalidMAC)
}

func TestShortPacket(t *testing.T) {
	c, err := NewFromSecret([]byte("s"))
	require.NoError(t, err)
	_, err = c.Decrypt([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrPacketTooShort)
}

func TestInvalidKeys(t *testing.T) {
	_, err := NewFromSecret(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewAESGCMHMACCodec(make([]byte, 16), []byte("mac"))
	assert.Error(t, err)

	_, err = NewAESGCMHMACCodec(make([]byte, 32), nil)
	assert.Error(t, err)
}
