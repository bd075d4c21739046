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
	"io"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/storage/backend"
)

// ContentLengthBackend records the true byte length of every object written
// through it in a sidecar, and can answer length-only reads without ever
// touching the wrapped backend. This matters once CryptoBackend sits below
// it: ciphertext framing makes the wrapped backend's own notion of length
// meaningless, so content length has to be tracked independently at the
// plaintext layer, above the crypto layer.
type ContentLengthBackend struct {
	inner backend.Backend
	store ContentLengthStore
}

// NewContentLengthBackend wraps inner, recording lengths in store.
func NewContentLengthBackend(inner backend.Backend, store ContentLengthStore) *ContentLengthBackend {
	return &ContentLengthBackend{inner: inner, store: store}
}

// Get implements backend.Reader. With ContentLengthOnly set, this never
// calls inner.Get: it answers from the sidecar alone, or reports not-found if
// the sidecar has no record (even if the wrapped backend does have the key.)
func (b *ContentLengthBackend) Get(ctx context.Context, key string, opts backend.GetOptions) (*backend.Object, error) {
	if opts.ContentLengthOnly {
		length, ok := b.store.Get(key)
		if !ok {
			return nil, errtypes.NotFound(key)
		}
		return &backend.Object{ContentLength: length, Stream: poisonedStream{}}, nil
	}

	obj, err := b.inner.Get(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	if length, ok := b.store.Get(key); ok {
		obj.ContentLength = length
	}
	return obj, nil
}

// poisonedStream is the Stream of a content-length-only Object: callers
// always go through ContentLength rather than reading the body, but the
// result type stays uniform with a real Get, so it errors rather than
// returning a nil io.ReadCloser a careless caller could panic on.
type poisonedStream struct{}

func (poisonedStream) Read([]byte) (int, error) {
	return 0, errtypes.InvalidInput("stream not available for a content-length-only read")
}

func (poisonedStream) Close() error {
	return errtypes.InvalidInput("stream not available for a content-length-only read")
}

// countingReader tallies bytes read so Write can record the true length even
// when the wrapped backend never reports one back (e.g. once crypto framing
// changes the ciphertext size).
type countingReader struct {
	r     io.Reader
	count int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.count += int64(n)
	return n, err
}

// Write implements backend.Writer.
func (b *ContentLengthBackend) Write(ctx context.Context, key string, r io.Reader) error {
	cr := &countingReader{r: r}
	if err := b.inner.Write(ctx, key, cr); err != nil {
		return err
	}
	b.store.Set(key, cr.count)
	return nil
}

// Rename implements backend.Writer.
func (b *ContentLengthBackend) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := b.inner.Rename(ctx, oldKey, newKey); err != nil {
		return err
	}
	b.store.Rename(oldKey, newKey)
	return nil
}

// Delete implements backend.Writer.
func (b *ContentLengthBackend) Delete(ctx context.Context, key string) error {
	if err := b.inner.Delete(ctx, key); err != nil {
		return err
	}
	b.store.Delete(key)
	return nil
}
