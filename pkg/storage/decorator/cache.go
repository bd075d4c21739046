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

	"github.com/bluele/gcache"

	"github.com/cs3org/mangastore/pkg/storage/backend"
)

type cachedObject struct {
	data        []byte
	contentType string
	etag        string
}

// CacheBackend is a read-through cache in front of a backend.Backend,
// eviction-bound by entry count via an LRU (resolving the cache's sizing
// policy as a size bound rather than a TTL). Only full, non-length-only
// reads are cached; writes and deletes invalidate the cached entry.
type CacheBackend struct {
	inner backend.Backend
	cache gcache.Cache
}

// NewCacheBackend wraps inner with an LRU cache holding up to maxEntries
// fully-read objects.
func NewCacheBackend(inner backend.Backend, maxEntries int) *CacheBackend {
	return &CacheBackend{
		inner: inner,
		cache: gcache.New(maxEntries).LRU().Build(),
	}
}

// Get implements backend.Reader. ContentLengthOnly reads bypass the cache
// entirely and go straight to inner, since the cache only ever stores full
// bodies.
func (b *CacheBackend) Get(ctx context.Context, key string, opts backend.GetOptions) (*backend.Object, error) {
	if opts.ContentLengthOnly {
		return b.inner.Get(ctx, key, opts)
	}

	if v, err := b.cache.Get(key); err == nil {
		entry := v.(cachedObject)
		return &backend.Object{
			Stream:        io.NopCloser(bytes.NewReader(entry.data)),
			ContentLength: int64(len(entry.data)),
			ContentType:   entry.contentType,
			ETag:          entry.etag,
		}, nil
	}

	obj, err := b.inner.Get(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(obj.Stream)
	_ = obj.Stream.Close()
	if err != nil {
		return nil, err
	}
	_ = b.cache.Set(key, cachedObject{data: data, contentType: obj.ContentType, etag: obj.ETag})
	obj.Stream = io.NopCloser(bytes.NewReader(data))
	return obj, nil
}

// Write implements backend.Writer.
func (b *CacheBackend) Write(ctx context.Context, key string, r io.Reader) error {
	b.cache.Remove(key)
	return b.inner.Write(ctx, key, r)
}

// Rename implements backend.Writer.
func (b *CacheBackend) Rename(ctx context.Context, oldKey, newKey string) error {
	b.cache.Remove(oldKey)
	b.cache.Remove(newKey)
	return b.inner.Rename(ctx, oldKey, newKey)
}

// Delete implements backend.Writer.
func (b *CacheBackend) Delete(ctx context.Context, key string) error {
	b.cache.Remove(key)
	return b.inner.Delete(ctx, key)
}
