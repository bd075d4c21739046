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
	"time"

	"github.com/cs3org/mangastore/pkg/storage/backend"
)

// DelayBackend sleeps for a fixed duration before every call it forwards to
// inner. It exists purely to let callers rehearse timeout and cancellation
// behavior against a backend with predictable latency; production
// deployments wrap nothing in it.
type DelayBackend struct {
	inner backend.Backend
	delay time.Duration
}

// NewDelayBackend wraps inner, adding delay before each operation.
func NewDelayBackend(inner backend.Backend, delay time.Duration) *DelayBackend {
	return &DelayBackend{inner: inner, delay: delay}
}

func (b *DelayBackend) sleep(ctx context.Context) error {
	if b.delay <= 0 {
		return nil
	}
	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get implements backend.Reader.
func (b *DelayBackend) Get(ctx context.Context, key string, opts backend.GetOptions) (*backend.Object, error) {
	if err := b.sleep(ctx); err != nil {
		return nil, err
	}
	return b.inner.Get(ctx, key, opts)
}

// Write implements backend.Writer.
func (b *DelayBackend) Write(ctx context.Context, key string, r io.Reader) error {
	if err := b.sleep(ctx); err != nil {
		return err
	}
	return b.inner.Write(ctx, key, r)
}

// Rename implements backend.Writer.
func (b *DelayBackend) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := b.sleep(ctx); err != nil {
		return err
	}
	return b.inner.Rename(ctx, oldKey, newKey)
}

// Delete implements backend.Writer.
func (b *DelayBackend) Delete(ctx context.Context, key string) error {
	if err := b.sleep(ctx); err != nil {
		return err
	}
	return b.inner.Delete(ctx, key)
}
