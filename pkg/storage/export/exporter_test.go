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

package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/container"
	"github.com/cs3org/mangastore/pkg/storage/decorator"
)

// countingGetBackend tallies full (non-content-length-only) Get calls, so
// tests can assert the exporter never reads an image's bytes when a range
// doesn't touch it.
type countingGetBackend struct {
	backend.Backend
	fullGets map[string]int
}

func (b *countingGetBackend) Get(ctx context.Context, key string, opts backend.GetOptions) (*backend.Object, error) {
	if !opts.ContentLengthOnly {
		b.fullGets[key]++
	}
	return b.Backend.Get(ctx, key, opts)
}

func newTestExporterBackend(t *testing.T) *countingGetBackend {
	t.Helper()
	cl := decorator.NewContentLengthBackend(backend.NewMemoryBackend(), decorator.NewMemoryContentLengthStore())
	return &countingGetBackend{Backend: cl, fullGets: map[string]int{}}
}

func TestExporterTotalLenNeverReadsImageBytes(t *testing.T) {
	be := newTestExporterBackend(t)
	ctx := context.Background()
	require.NoError(t, be.Write(ctx, "img0", bytes.NewReader([]byte("hello"))))
	require.NoError(t, be.Write(ctx, "img1", bytes.NewReader([]byte("world!!"))))

	exp, err := NewExporter(be, Bundle{
		Metadata:  container.MangaBundleMetadata{Title: "T"},
		ImageKeys: []string{"img0", "img1"},
	})
	require.NoError(t, err)

	total, err := exp.TotalLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, be.fullGets["img0"])
	assert.Zero(t, be.fullGets["img1"])

	preambleLen := int64(len(exp.preamble))
	assert.Equal(t, preambleLen+4+5+4+7, total)
}

func TestExporterWriteRangeFullExport(t *testing.T) {
	be := newTestExporterBackend(t)
	ctx := context.Background()
	require.NoError(t, be.Write(ctx, "img0", bytes.NewReader([]byte("hello"))))
	require.NoError(t, be.Write(ctx, "img1", bytes.NewReader([]byte("world!!"))))

	exp, err := NewExporter(be, Bundle{
		Metadata:  container.MangaBundleMetadata{Title: "T"},
		ImageKeys: []string{"img0", "img1"},
	})
	require.NoError(t, err)

	total, err := exp.TotalLen(ctx)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, exp.WriteRange(ctx, &out, HTTPRange{Start: 0, Length: total}))
	assert.EqualValues(t, total, out.Len())
	assert.True(t, bytes.HasPrefix(out.Bytes(), container.MangaMagic[:]))
	assert.Contains(t, out.String(), "hello")
	assert.Contains(t, out.String(), "world!!")
}

func TestExporterWriteRangeWithinSingleImageSkipsOtherImage(t *testing.T) {
	be := newTestExporterBackend(t)
	ctx := context.Background()
	require.NoError(t, be.Write(ctx, "img0", bytes.NewReader([]byte("hello"))))
	require.NoError(t, be.Write(ctx, "img1", bytes.NewReader([]byte("world!!"))))

	exp, err := NewExporter(be, Bundle{
		Metadata:  container.MangaBundleMetadata{Title: "T"},
		ImageKeys: []string{"img0", "img1"},
	})
	require.NoError(t, err)

	preambleLen := int64(len(exp.preamble))
	// img0's bytes start right after the preamble and img0's own 4-byte
	// length prefix.
	rng := HTTPRange{Start: preambleLen + 4 + 1, Length: 3}

	var out bytes.Buffer
	require.NoError(t, exp.WriteRange(ctx, &out, rng))
	assert.Equal(t, "ell", out.String())
	assert.Zero(t, be.fullGets["img1"])
	assert.Equal(t, 1, be.fullGets["img0"])
}
