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

// Package decorator wraps a backend.Backend with additional behavior:
// content-length sidecars, AES-GCM at-rest encryption, artificial latency
// and an LRU read cache. Decorators compose by wrapping one another; the
// outermost decorator is what callers see.
package decorator

import "sync"

// ContentLengthStore persists the true byte length of an object, keyed by
// storage key, so ContentLengthBackend can answer length queries without
// reading (or even touching) the wrapped backend.
type ContentLengthStore interface {
	Get(key string) (int64, bool)
	Set(key string, length int64)
	Rename(oldKey, newKey string)
	Delete(key string)
}

// MemoryContentLengthStore is an in-process ContentLengthStore.
type MemoryContentLengthStore struct {
	mu   sync.RWMutex
	data map[string]int64
}

// NewMemoryContentLengthStore returns an empty store.
func NewMemoryContentLengthStore() *MemoryContentLengthStore {
	return &MemoryContentLengthStore{data: map[string]int64{}}
}

// Get implements ContentLengthStore.
func (s *MemoryContentLengthStore) Get(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set implements ContentLengthStore.
func (s *MemoryContentLengthStore) Set(key string, length int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = length
}

// Rename implements ContentLengthStore.
func (s *MemoryContentLengthStore) Rename(oldKey, newKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[oldKey]; ok {
		s.data[newKey] = v
		delete(s.data, oldKey)
	}
}

// Delete implements ContentLengthStore.
func (s *MemoryContentLengthStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// CryptoKeyStore persists per-key AES material, keyed by storage key. It's a
// distinct type from ContentLengthStore (rather than a shared generic KV
// interface) because the two sidecars evolved independently in the original
// and carry unrelated record shapes.
type CryptoKeyStore interface {
	Get(key string) (AESMaterial, bool)
	Set(key string, material AESMaterial)
	Rename(oldKey, newKey string)
	Delete(key string)
}

// MemoryCryptoKeyStore is an in-process CryptoKeyStore.
type MemoryCryptoKeyStore struct {
	mu   sync.RWMutex
	data map[string]AESMaterial
}

// NewMemoryCryptoKeyStore returns an empty store.
func NewMemoryCryptoKeyStore() *MemoryCryptoKeyStore {
	return &MemoryCryptoKeyStore{data: map[string]AESMaterial{}}
}

// Get implements CryptoKeyStore.
func (s *MemoryCryptoKeyStore) Get(key string) (AESMaterial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set implements CryptoKeyStore.
func (s *MemoryCryptoKeyStore) Set(key string, material AESMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = material
}

// Rename implements CryptoKeyStore.
func (s *MemoryCryptoKeyStore) Rename(oldKey, newKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[oldKey]; ok {
		s.data[newKey] = v
		delete(s.data, oldKey)
	}
}

// Delete implements CryptoKeyStore.
func (s *MemoryCryptoKeyStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}
