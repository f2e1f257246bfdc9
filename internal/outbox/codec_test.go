package outbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-outbox/internal/queue"
	"memory-outbox/internal/storage/slot"
	"memory-outbox/pkg/aead"
	pkgerrors "memory-outbox/pkg/errors"
)

func jsonUnmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

func newTestCodec(c aead.Cipher) *Codec {
	return NewCodec(NewKeyManager(slot.NewMemoryStore(), testKeySlot), c)
}

func TestCodec_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, c := range []aead.Cipher{aead.AESGCM{}, aead.XChaCha20{}} {
		t.Run(c.Name(), func(t *testing.T) {
			codec := newTestCodec(c)
			inputs := [][]byte{
				[]byte("x"),
				[]byte(`{"content":"remember the milk","type":"short-term","version":7}`),
				bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 1<<14),
			}
			for _, pt := range inputs {
				rec, err := codec.Encode(ctx, pt)
				require.NoError(t, err)
				assert.False(t, rec.EnqueuedAt.IsZero())

				nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
				require.NoError(t, err)
				assert.Len(t, nonce, c.NonceSize())

				got, err := codec.Decode(ctx, rec)
				require.NoError(t, err)
				assert.Equal(t, pt, got)
			}

			rec, err := codec.Encode(ctx, nil)
			require.NoError(t, err)
			got, err := codec.Decode(ctx, rec)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestCodec_FreshNoncePerEncode(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec(aead.AESGCM{})
	pt := []byte("same plaintext every time")

	nonces := make(map[string]struct{})
	cts := make(map[string]struct{})
	const n = 1000
	for i := 0; i < n; i++ {
		rec, err := codec.Encode(ctx, pt)
		require.NoError(t, err)
		nonces[rec.Nonce] = struct{}{}
		cts[rec.Ciphertext] = struct{}{}
	}
	assert.Len(t, nonces, n)
	assert.Len(t, cts, n)
}

func TestCodec_DecryptFailures(t *testing.T) {
	ctx := context.Background()
	codec := newTestCodec(aead.AESGCM{})
	rec, err := codec.Encode(ctx, []byte("secret"))
	require.NoError(t, err)

	ct, _ := base64.StdEncoding.DecodeString(rec.Ciphertext)
	ct[0] ^= 0x01
	tampered := rec
	tampered.Ciphertext = base64.StdEncoding.EncodeToString(ct)

	shortNonce := rec
	shortNonce.Nonce = base64.StdEncoding.EncodeToString([]byte("short"))

	badNonce := rec
	badNonce.Nonce = "!!!"

	badCiphertext := rec
	badCiphertext.Ciphertext = "!!!"

	truncated := rec
	truncated.Ciphertext = base64.StdEncoding.EncodeToString(ct[:4])

	cases := map[string]func() error{
		"tampered ciphertext": func() error { _, err := codec.Decode(ctx, tampered); return err },
		"short nonce":         func() error { _, err := codec.Decode(ctx, shortNonce); return err },
		"nonce not base64":    func() error { _, err := codec.Decode(ctx, badNonce); return err },
		"ciphertext not b64":  func() error { _, err := codec.Decode(ctx, badCiphertext); return err },
		"truncated":           func() error { _, err := codec.Decode(ctx, truncated); return err },
		"other installation": func() error {
			_, err := newTestCodec(aead.AESGCM{}).Decode(ctx, rec)
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.ErrDecryptFailure), "got %v", err)
			assert.False(t, pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable))
		})
	}
}

func TestCodec_KeyUnavailable(t *testing.T) {
	ctx := context.Background()
	slots := slot.NewMemoryStore()
	require.NoError(t, slots.Set(ctx, testKeySlot, []byte("garbage")))
	codec := NewCodec(NewKeyManager(slots, testKeySlot), nil)

	_, err := codec.Encode(ctx, []byte("x"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable))

	_, err = codec.Decode(ctx, queue.Record{Nonce: "AAAAAAAAAAAAAAAA", Ciphertext: "AAAA"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrKeyUnavailable))
}
