// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package outbox

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"

	"memory-outbox/internal/queue"
	"memory-outbox/pkg/aead"
	pkgerrors "memory-outbox/pkg/errors"
)

// Codec 使用当前密钥加解密序列化后的 memory 记录
type Codec struct {
	keys   KeyProvider
	cipher aead.Cipher
	now    func() time.Time
}

// NewCodec 创建 Codec；cipher 为 nil 时使用 AES-256-GCM
func NewCodec(keys KeyProvider, cipher aead.Cipher) *Codec {
	if cipher == nil {
		cipher = aead.AESGCM{}
	}
	return &Codec{keys: keys, cipher: cipher, now: time.Now}
}

// Encode 每次调用都从 crypto/rand 取新的 nonce，不缓存、不复用
func (c *Codec) Encode(ctx context.Context, plaintext []byte) (queue.Record, error) {
	key, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		return queue.Record{}, err
	}

	nonce := make([]byte, c.cipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return queue.Record{}, pkgerrors.Wrap(err, "generate nonce")
	}

	ct, err := c.cipher.Seal(key, nonce, plaintext)
	if err != nil {
		return queue.Record{}, pkgerrors.Wrap(err, "seal record")
	}

	return queue.Record{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		EnqueuedAt: c.now().UTC(),
	}, nil
}

// Decode 校验并解密；认证失败或 nonce/密文格式错误时返回 ErrDecryptFailure
func (c *Codec) Decode(ctx context.Context, rec queue.Record) ([]byte, error) {
	key, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrDecryptFailure, pkgerrors.Wrap(err, "decode nonce"))
	}
	if len(nonce) != c.cipher.NonceSize() {
		return nil, pkgerrors.Mark(pkgerrors.ErrDecryptFailure,
			pkgerrors.Wrapf(aead.ErrOpen, "nonce is %d bytes, want %d", len(nonce), c.cipher.NonceSize()))
	}
	ct, err := base64.StdEncoding.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrDecryptFailure, pkgerrors.Wrap(err, "decode ciphertext"))
	}

	pt, err := c.cipher.Open(key, nonce, ct)
	if err != nil {
		return nil, pkgerrors.Mark(pkgerrors.ErrDecryptFailure, err)
	}
	return pt, nil
}
