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

package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/temp"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectExtSniffsPNGFromBytes(t *testing.T) {
	w := NewDefaultWorker(semaphore.NewWeighted(1))
	data := temp.NewMemoryTempData(samplePNG(t, 4, 4))
	ext, err := w.DetectExt(data)
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
}

func TestDetectExtUsesLocalPathFastPath(t *testing.T) {
	w := NewDefaultWorker(semaphore.NewWeighted(1))
	fn := filepath.Join(t.TempDir(), "sample.png")
	require.NoError(t, os.WriteFile(fn, samplePNG(t, 4, 4), 0o600))
	data, err := temp.NewFileTempData(fn, false)
	require.NoError(t, err)
	defer data.Close()

	ext, err := w.DetectExt(data)
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
}

func TestDetectExtRejectsUnrecognizedBytes(t *testing.T) {
	w := NewDefaultWorker(semaphore.NewWeighted(1))
	data := temp.NewMemoryTempData(bytes.Repeat([]byte{0x00}, 32))
	_, err := w.DetectExt(data)
	assert.Error(t, err)
}

func TestProcessAndUploadPassthroughAllowedFormat(t *testing.T) {
	w := NewDefaultWorker(semaphore.NewWeighted(1))
	be := backend.NewMemoryBackend()
	data := temp.NewMemoryTempData(samplePNG(t, 8, 6))

	result, err := w.ProcessAndUpload(context.Background(), be, data)
	require.NoError(t, err)
	assert.Equal(t, "png", result.Ext)
	require.NotNil(t, result.Dims)
	assert.Equal(t, 8, result.Dims.Width)
	assert.Equal(t, 6, result.Dims.Height)

	obj, err := be.Get(context.Background(), result.Key, backend.GetOptions{})
	require.NoError(t, err)
	defer obj.Stream.Close()
}

func TestProcessAndUploadRespectsContextCancellation(t *testing.T) {
	w := NewDefaultWorker(semaphore.NewWeighted(1))
	be := backend.NewMemoryBackend()
	data := temp.NewMemoryTempData(samplePNG(t, 2, 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.ProcessAndUpload(ctx, be, data)
	assert.Error(t, err)
}

func TestSplitPDFToPNGPagesRequiresPdftoppm(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not available in this environment")
	}
	// Exercising the real split path needs a genuine PDF fixture; covered
	// by integration testing in environments where poppler-utils is present.
}
