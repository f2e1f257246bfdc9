package aead

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestCiphers(t *testing.T) {
	for _, name := range []string{"aes-gcm", "xchacha20"} {
		t.Run(name, func(t *testing.T) {
			c, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())
			assert.GreaterOrEqual(t, c.NonceSize(), 12)

			key := randBytes(t, KeySize)
			nonce := randBytes(t, c.NonceSize())
			plain := []byte(`{"content":"x","type":"short-term"}`)

			ct, err := c.Seal(key, nonce, plain)
			require.NoError(t, err)
			assert.False(t, bytes.Contains(ct, plain))

			got, err := c.Open(key, nonce, ct)
			require.NoError(t, err)
			assert.Equal(t, plain, got)

			tampered := append([]byte(nil), ct...)
			tampered[0] ^= 0xff
			_, err = c.Open(key, nonce, tampered)
			assert.ErrorIs(t, err, ErrOpen)

			_, err = c.Open(key, nonce, ct[:len(ct)-1])
			assert.ErrorIs(t, err, ErrOpen)

			_, err = c.Open(randBytes(t, KeySize), nonce, ct)
			assert.ErrorIs(t, err, ErrOpen)

			_, err = c.Open(key, nonce[:4], ct)
			assert.ErrorIs(t, err, ErrOpen)

			_, err = c.Seal(key[:16], nonce, plain)
			assert.Error(t, err)
		})
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("rot13")
	assert.Error(t, err)
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "aes-gcm", c.Name())
}
