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

package backend

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cs3org/mangastore/pkg/crypto"
	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/mime"
)

type memoryEntry struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// MemoryBackend is an in-process, non-persistent Backend. It's the simplest
// ground truth for exercising decorators and the storage system in tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memoryEntry
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: map[string]memoryEntry{}}
}

// Get implements Reader.
func (b *MemoryBackend) Get(_ context.Context, key string, opts GetOptions) (*Object, error) {
	if opts.ContentLengthOnly {
		return nil, errtypes.NotSupported("MemoryBackend does not carry a content-length sidecar")
	}
	b.mu.RLock()
	entry, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, errtypes.NotFound(key)
	}
	return &Object{
		Stream:        io.NopCloser(bytes.NewReader(entry.data)),
		ContentLength: int64(len(entry.data)),
		ContentType:   entry.contentType,
		ETag:          entry.etag,
		LastModified:  entry.modified,
	}, nil
}

// Write implements Writer.
func (b *MemoryBackend) Write(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	etag, err := crypto.ComputeMD5XS(bytes.NewReader(data))
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.objects[key] = memoryEntry{
		data:        data,
		contentType: mime.Detect(false, key),
		etag:        etag,
		modified:    time.Now(),
	}
	b.mu.Unlock()
	return nil
}

// Rename implements Writer.
func (b *MemoryBackend) Rename(_ context.Context, oldKey, newKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.objects[oldKey]
	if !ok {
		return errtypes.NotFound(oldKey)
	}
	b.objects[newKey] = entry
	delete(b.objects, oldKey)
	return nil
}

// Delete implements Writer.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[key]; !ok {
		return errtypes.NotFound(key)
	}
	delete(b.objects, key)
	return nil
}
