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
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs3org/mangastore/pkg/storage/backend"
)

// poisonedBackend fails the test if Get is ever called, letting tests prove
// a caller never reached through to the wrapped backend.
type poisonedBackend struct {
	backend.Backend
	t *testing.T
}

func (p poisonedBackend) Get(ctx context.Context, key string, opts backend.GetOptions) (*backend.Object, error) {
	p.t.Fatal("inner backend.Get must not be called")
	return nil, nil
}

func TestContentLengthOnlyNeverTouchesInner(t *testing.T) {
	inner := poisonedBackend{Backend: backend.NewMemoryBackend(), t: t}
	store := NewMemoryContentLengthStore()
	cl := NewContentLengthBackend(inner, store)

	store.Set("k", 42)
	obj, err := cl.Get(context.Background(), "k", backend.GetOptions{ContentLengthOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 42, obj.ContentLength)
}

func TestContentLengthOnlyMissSidecarIsNotFound(t *testing.T) {
	inner := poisonedBackend{Backend: backend.NewMemoryBackend(), t: t}
	cl := NewContentLengthBackend(inner, NewMemoryContentLengthStore())

	_, err := cl.Get(context.Background(), "missing", backend.GetOptions{ContentLengthOnly: true})
	assert.Error(t, err)
}

func TestContentLengthRecordsTrueLength(t *testing.T) {
	cl := NewContentLengthBackend(backend.NewMemoryBackend(), NewMemoryContentLengthStore())
	ctx := context.Background()
	require.NoError(t, cl.Write(ctx, "k", bytes.NewReader([]byte("hello world"))))

	obj, err := cl.Get(ctx, "k", backend.GetOptions{ContentLengthOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 11, obj.ContentLength)
}

func TestContentLengthOnlyStreamIsPoisoned(t *testing.T) {
	inner := poisonedBackend{Backend: backend.NewMemoryBackend(), t: t}
	store := NewMemoryContentLengthStore()
	cl := NewContentLengthBackend(inner, store)

	store.Set("k", 42)
	obj, err := cl.Get(context.Background(), "k", backend.GetOptions{ContentLengthOnly: true})
	require.NoError(t, err)
	require.NotNil(t, obj.Stream)

	_, readErr := obj.Stream.Read(make([]byte, 1))
	assert.Error(t, readErr)
	assert.Error(t, obj.Stream.Close())
}

func TestCryptoRoundTrip(t *testing.T) {
	crypto := NewCryptoBackend(backend.NewMemoryBackend(), NewMemoryCryptoKeyStore())
	ctx := context.Background()
	plaintext := bytes.Repeat([]byte("secret-data-"), 10000) // spans multiple frames

	require.NoError(t, crypto.Write(ctx, "k", bytes.NewReader(plaintext)))
	obj, err := crypto.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	defer obj.Stream.Close()

	got, err := io.ReadAll(obj.Stream)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	assert.EqualValues(t, -1, obj.ContentLength, "ciphertext framing makes inner length meaningless")
}

func TestCryptoRoundTripNonzeroCounter(t *testing.T) {
	material, err := NewAESMaterial(1000, []byte("k"))
	require.NoError(t, err)
	aead, err := newAEAD(material)
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte("hello from counter 1000, "), 5000)
	enc := newFrameEncryptReader(bytes.NewReader(plaintext), aead, material)
	ciphertext, err := io.ReadAll(enc)
	require.NoError(t, err)

	dec := newFrameDecryptReader(bytes.NewReader(ciphertext), aead, material)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCryptoDecryptTruncatedStreamIsUnexpectedEOF(t *testing.T) {
	material, err := NewAESMaterial(0, []byte("k"))
	require.NoError(t, err)
	aead, err := newAEAD(material)
	require.NoError(t, err)

	enc := newFrameEncryptReader(bytes.NewReader(bytes.Repeat([]byte("x"), plainChunkSize+10)), aead, material)
	ciphertext, err := io.ReadAll(enc)
	require.NoError(t, err)

	dec := newFrameDecryptReader(bytes.NewReader(ciphertext[:len(ciphertext)-1]), aead, material)
	_, err = io.ReadAll(dec)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCryptoDecryptFailsOnTamperedCiphertext(t *testing.T) {
	inner := backend.NewMemoryBackend()
	crypto := NewCryptoBackend(inner, NewMemoryCryptoKeyStore())
	ctx := context.Background()
	require.NoError(t, crypto.Write(ctx, "k", bytes.NewReader([]byte("hello world, this is long enough to fill a frame"))))

	raw, err := inner.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	ciphertext, err := io.ReadAll(raw.Stream)
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF
	require.NoError(t, inner.Write(ctx, "k", bytes.NewReader(ciphertext)))

	obj, err := crypto.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	_, err = io.ReadAll(obj.Stream)
	assert.Error(t, err)
}

func TestCryptoPassthroughWithoutSidecar(t *testing.T) {
	inner := backend.NewMemoryBackend()
	require.NoError(t, inner.Write(context.Background(), "k", bytes.NewReader([]byte("plain"))))
	crypto := NewCryptoBackend(inner, NewMemoryCryptoKeyStore())

	obj, err := crypto.Get(context.Background(), "k", backend.GetOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(obj.Stream)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(got))
}

func TestCacheServesWithoutTouchingInnerOnHit(t *testing.T) {
	inner := backend.NewMemoryBackend()
	require.NoError(t, inner.Write(context.Background(), "k", bytes.NewReader([]byte("cached"))))
	cache := NewCacheBackend(inner, 10)

	ctx := context.Background()
	obj1, err := cache.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	io.ReadAll(obj1.Stream)

	poisoned := poisonedBackend{Backend: inner, t: t}
	cache2 := &CacheBackend{inner: poisoned, cache: cache.cache}
	obj2, err := cache2.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(obj2.Stream)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(got))
}

func TestCacheInvalidatesOnWrite(t *testing.T) {
	inner := backend.NewMemoryBackend()
	cache := NewCacheBackend(inner, 10)
	ctx := context.Background()

	require.NoError(t, cache.Write(ctx, "k", bytes.NewReader([]byte("v1"))))
	obj, err := cache.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	got, _ := io.ReadAll(obj.Stream)
	assert.Equal(t, "v1", string(got))

	require.NoError(t, cache.Write(ctx, "k", bytes.NewReader([]byte("v2"))))
	obj, err = cache.Get(ctx, "k", backend.GetOptions{})
	require.NoError(t, err)
	got, _ = io.ReadAll(obj.Stream)
	assert.Equal(t, "v2", string(got))
}

func TestDelayBackendRespectsContextCancellation(t *testing.T) {
	inner := backend.NewMemoryBackend()
	delayed := NewDelayBackend(inner, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := delayed.Get(ctx, "k", backend.GetOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDelayBackendZeroDelayPassesThroughImmediately(t *testing.T) {
	inner := backend.NewMemoryBackend()
	require.NoError(t, inner.Write(context.Background(), "k", bytes.NewReader([]byte("x"))))
	delayed := NewDelayBackend(inner, 0)

	obj, err := delayed.Get(context.Background(), "k", backend.GetOptions{})
	require.NoError(t, err)
	obj.Stream.Close()
}
