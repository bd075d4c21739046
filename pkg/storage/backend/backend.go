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

// Package backend defines the raw object-storage capability interfaces and
// the backends that implement them (in-memory, local disk, S3-compatible).
// Decorators in pkg/storage/decorator wrap these to add content-length
// sidecars, at-rest encryption, artificial delay and caching.
package backend

import (
	"context"
	"io"
	"time"
)

// Object is a retrieved blob: its byte stream plus the metadata the backend
// could establish about it.
type Object struct {
	Stream        io.ReadCloser
	ContentLength int64 // -1 if unknown (e.g. under AES decoration)
	ContentType   string
	ETag          string
	LastModified  time.Time
}

// GetOptions customizes a Reader.Get call.
type GetOptions struct {
	// ContentLengthOnly, when true, asks the content-length decorator to
	// answer from its sidecar alone without touching the wrapped backend;
	// callers that set this on a backend with no such decorator get an
	// errtypes.NotSupported error.
	ContentLengthOnly bool
}

// Reader reads objects by key.
type Reader interface {
	Get(ctx context.Context, key string, opts GetOptions) (*Object, error)
}

// Writer writes, renames and deletes objects by key.
type Writer interface {
	// Write stores the full contents of r under key, guessing a content-type
	// from the key's extension when one isn't supplied by the caller's layer.
	Write(ctx context.Context, key string, r io.Reader) error
	// Rename moves the object stored at oldKey to newKey.
	Rename(ctx context.Context, oldKey, newKey string) error
	// Delete removes the object stored at key.
	Delete(ctx context.Context, key string) error
}

// Backend is the full read/write capability a raw storage implementation offers.
type Backend interface {
	Reader
	Writer
}
