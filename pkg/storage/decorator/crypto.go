// Copyright 2018-2024 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package decorator

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/storage/backend"
)

const (
	keyLen         = 32
	noncePrefixLen = 8
	counterLen     = 4
	nonceLen       = noncePrefixLen + counterLen
	lenFieldLen    = 4
	plainChunkSize = 64 * 1024
)

// AESMaterial is the per-key encryption record stored in a CryptoKeyStore:
// enough to reconstruct every frame nonce and verify every frame's AAD.
type AESMaterial struct {
	Key         [keyLen]byte
	NoncePrefix [noncePrefixLen]byte
	Counter0    uint32
	AAD         []byte
}

// NewAESMaterial mints fresh random key material with the given starting
// counter and AAD; a zero Counter0 is the common case, but the sidecar
// format allows any starting value, matching the original's counter0 knob.
func NewAESMaterial(counter0 uint32, aad []byte) (AESMaterial, error) {
	var m AESMaterial
	if _, err := rand.Read(m.Key[:]); err != nil {
		return AESMaterial{}, err
	}
	if _, err := rand.Read(m.NoncePrefix[:]); err != nil {
		return AESMaterial{}, err
	}
	m.Counter0 = counter0
	m.AAD = aad
	return m, nil
}

func frameNonce(prefix [noncePrefixLen]byte, counter uint32) []byte {
	n := make([]byte, nonceLen)
	copy(n, prefix[:])
	binary.BigEndian.PutUint32(n[noncePrefixLen:], counter)
	return n
}

func newAEAD(m AESMaterial) (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.Key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// CryptoBackend wraps a backend.Backend with AES-256-GCM at-rest encryption.
// Each write mints fresh key material and stores it in keys, keyed by
// storage key; each read looks the material up and transparently decrypts.
// Objects with no sidecar entry pass through unmodified (useful for
// migrating a backend from plaintext to encrypted without a big-bang
// re-encryption).
type CryptoBackend struct {
	inner backend.Backend
	keys  CryptoKeyStore
}

// NewCryptoBackend wraps inner, storing AES material in keys.
func NewCryptoBackend(inner backend.Backend, keys CryptoKeyStore) *CryptoBackend {
	return &CryptoBackend{inner: inner, keys: keys}
}

// Get implements backend.Reader. ContentLengthOnly is passed straight
// through: the crypto layer has no opinion on length, that's
// ContentLengthBackend's job (and it must sit above this one).
func (b *CryptoBackend) Get(ctx context.Context, key string, opts backend.GetOptions) (*backend.Object, error) {
	obj, err := b.inner.Get(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	material, ok := b.keys.Get(key)
	if !ok {
		return obj, nil
	}
	aead, err := newAEAD(material)
	if err != nil {
		_ = obj.Stream.Close()
		return nil, err
	}
	obj.Stream = io.NopCloser(newFrameDecryptReader(obj.Stream, aead, material))
	obj.ContentLength = -1
	return obj, nil
}

// Write implements backend.Writer: mints fresh AES material, stores it, and
// writes the AES-framed ciphertext stream to the wrapped backend.
func (b *CryptoBackend) Write(ctx context.Context, key string, r io.Reader) error {
	material, err := NewAESMaterial(0, []byte(key))
	if err != nil {
		return err
	}
	aead, err := newAEAD(material)
	if err != nil {
		return err
	}
	encrypted := newFrameEncryptReader(r, aead, material)
	if err := b.inner.Write(ctx, key, encrypted); err != nil {
		return err
	}
	b.keys.Set(key, material)
	return nil
}

// Rename implements backend.Writer.
func (b *CryptoBackend) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := b.inner.Rename(ctx, oldKey, newKey); err != nil {
		return err
	}
	b.keys.Rename(oldKey, newKey)
	return nil
}

// Delete implements backend.Writer.
func (b *CryptoBackend) Delete(ctx context.Context, key string) error {
	if err := b.inner.Delete(ctx, key); err != nil {
		return err
	}
	b.keys.Delete(key)
	return nil
}

// frameEncryptReader reads plaintext in fixed-size chunks from src and emits
// one AES-GCM frame (length prefix || ciphertext || tag) per chunk.
type frameEncryptReader struct {
	src      io.Reader
	aead     cipher.AEAD
	material AESMaterial
	counter  uint32
	buf      []byte
	plain    []byte
	eof      bool
}

func newFrameEncryptReader(src io.Reader, aead cipher.AEAD, material AESMaterial) *frameEncryptReader {
	return &frameEncryptReader{
		src:      src,
		aead:     aead,
		material: material,
		counter:  material.Counter0,
		plain:    make([]byte, plainChunkSize),
	}
}

func (e *frameEncryptReader) Read(p []byte) (int, error) {
	for len(e.buf) == 0 {
		if e.eof {
			return 0, io.EOF
		}
		n, err := e.src.Read(e.plain)
		if n > 0 {
			nonce := frameNonce(e.material.NoncePrefix, e.counter)
			e.counter++
			ciphertext := e.aead.Seal(nil, nonce, e.plain[:n], e.material.AAD)
			frame := make([]byte, lenFieldLen+len(ciphertext))
			binary.BigEndian.PutUint32(frame, uint32(len(ciphertext)))
			copy(frame[lenFieldLen:], ciphertext)
			e.buf = frame
		}
		if err != nil {
			if err == io.EOF {
				e.eof = true
				if n == 0 {
					return 0, io.EOF
				}
				continue
			}
			return 0, err
		}
	}
	n := copy(p, e.buf)
	e.buf = e.buf[n:]
	return n, nil
}

// frameDecryptReader is the inverse: it accumulates ciphertext from src,
// pulls out complete length-prefixed frames, authenticates and decrypts
// each, and serves the concatenated plaintext. An authentication failure
// aborts the whole read with an invalid-data error; a truncated final frame
// (leftover bytes at EOF) is reported as an unexpected-EOF error.
type frameDecryptReader struct {
	src      io.Reader
	aead     cipher.AEAD
	material AESMaterial
	counter  uint32
	acc      []byte
	out      []byte
	srcEOF   bool
}

func newFrameDecryptReader(src io.Reader, aead cipher.AEAD, material AESMaterial) *frameDecryptReader {
	return &frameDecryptReader{
		src:      src,
		aead:     aead,
		material: material,
		counter:  material.Counter0,
	}
}

func (d *frameDecryptReader) fill() error {
	chunk := make([]byte, plainChunkSize)
	n, err := d.src.Read(chunk)
	if n > 0 {
		d.acc = append(d.acc, chunk[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			d.srcEOF = true
			return nil
		}
		return err
	}
	return nil
}

func (d *frameDecryptReader) tryParseFrame() (bool, error) {
	if len(d.acc) < lenFieldLen {
		return false, nil
	}
	frameLen := binary.BigEndian.Uint32(d.acc[:lenFieldLen])
	total := lenFieldLen + int(frameLen)
	if len(d.acc) < total {
		return false, nil
	}
	ciphertext := d.acc[lenFieldLen:total]
	nonce := frameNonce(d.material.NoncePrefix, d.counter)
	d.counter++
	plain, err := d.aead.Open(nil, nonce, ciphertext, d.material.AAD)
	if err != nil {
		return false, errtypes.InvalidInput("aes frame authentication failed")
	}
	d.acc = d.acc[total:]
	d.out = append(d.out, plain...)
	return true, nil
}

func (d *frameDecryptReader) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		parsed, err := d.tryParseFrame()
		if err != nil {
			return 0, err
		}
		if parsed {
			continue
		}
		if d.srcEOF {
			if len(d.acc) != 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, io.EOF
		}
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}
