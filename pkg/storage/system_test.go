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

package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/builder"
	"github.com/cs3org/mangastore/pkg/storage/container"
	"github.com/cs3org/mangastore/pkg/storage/media"
	"github.com/cs3org/mangastore/pkg/storage/storageerr"
	"github.com/cs3org/mangastore/pkg/storage/temp"
)

type stubMediaWorker struct {
	ext     string
	dims    *media.Dimensions
	failErr error
}

func (s stubMediaWorker) DetectExt(data temp.Data) (string, error) { return s.ext, nil }
func (s stubMediaWorker) SplitPDFToPNGPages(data temp.Data) ([]temp.Data, error) {
	return nil, nil
}
func (s stubMediaWorker) ProcessAndUpload(ctx context.Context, writer backend.Writer, data temp.Data) (media.PreparedUpload, error) {
	if s.failErr != nil {
		return media.PreparedUpload{}, s.failErr
	}
	buf, err := temp.ReadAll(data)
	if err != nil {
		return media.PreparedUpload{}, err
	}
	key := "temp/stub"
	if err := writer.Write(ctx, key, bytes.NewReader(buf)); err != nil {
		return media.PreparedUpload{}, err
	}
	return media.PreparedUpload{Key: key, Dims: s.dims, Ext: s.ext}, nil
}

type panicMediaWorker struct{}

func (panicMediaWorker) DetectExt(data temp.Data) (string, error) { return "png", nil }
func (panicMediaWorker) SplitPDFToPNGPages(data temp.Data) ([]temp.Data, error) {
	return nil, nil
}
func (panicMediaWorker) ProcessAndUpload(ctx context.Context, writer backend.Writer, data temp.Data) (media.PreparedUpload, error) {
	panic("transcoder exploded")
}

// concurrencyTrackingWorker records the peak number of ProcessAndUpload
// calls observed in flight at once, holding each call open briefly so
// overlapping registrations actually have a chance to race.
type concurrencyTrackingWorker struct {
	current int64
	peak    int64
}

func (w *concurrencyTrackingWorker) DetectExt(data temp.Data) (string, error) { return "png", nil }
func (w *concurrencyTrackingWorker) SplitPDFToPNGPages(data temp.Data) ([]temp.Data, error) {
	return nil, nil
}
func (w *concurrencyTrackingWorker) ProcessAndUpload(ctx context.Context, writer backend.Writer, data temp.Data) (media.PreparedUpload, error) {
	n := atomic.AddInt64(&w.current, 1)
	for {
		peak := atomic.LoadInt64(&w.peak)
		if n <= peak || atomic.CompareAndSwapInt64(&w.peak, peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt64(&w.current, -1)

	buf, err := temp.ReadAll(data)
	if err != nil {
		return media.PreparedUpload{}, err
	}
	key := "temp/" + uuid.NewString()
	if err := writer.Write(ctx, key, bytes.NewReader(buf)); err != nil {
		return media.PreparedUpload{}, err
	}
	return media.PreparedUpload{Key: key, Ext: "png"}, nil
}

type singlePayloadWorker struct{ data temp.Data }

func (w singlePayloadWorker) ExtractPayload(data temp.Data) (container.Payload, error) {
	return container.SingleFilePayload{Data: data}, nil
}

type stubBuilder struct{ key string }

func (b stubBuilder) BuildKey(ext string) (string, error) { return b.key + "." + ext, nil }

func newTestSystem(t *testing.T, mw media.Worker) *System {
	t.Helper()
	return New(Options{
		Backend:         backend.NewMemoryBackend(),
		MediaWorker:     mw,
		ContainerWorker: singlePayloadWorker{},
		TemplatesDir:    t.TempDir(),
		TranscodeLimit:  2,
	})
}

func TestRegisterFileSingleRoundTrip(t *testing.T) {
	sys := newTestSystem(t, stubMediaWorker{ext: "png"})
	data := temp.NewMemoryTempData([]byte("image bytes"))

	result, err := sys.RegisterFile(context.Background(), data, func(i int) (builder.FileBuilder, error) {
		return stubBuilder{key: "manga/1/cover"}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, result.Single)

	file, err := sys.Take(context.Background(), *result.Single)
	require.NoError(t, err)
	assert.Equal(t, "manga/1/cover.png", file.Key)
}

func TestTakeIsSingleConsumption(t *testing.T) {
	sys := newTestSystem(t, stubMediaWorker{ext: "png"})
	data := temp.NewMemoryTempData([]byte("image bytes"))

	result, err := sys.RegisterFile(context.Background(), data, func(i int) (builder.FileBuilder, error) {
		return stubBuilder{key: "manga/1/cover"}, nil
	})
	require.NoError(t, err)

	_, err = sys.Take(context.Background(), *result.Single)
	require.NoError(t, err)

	_, err = sys.Take(context.Background(), *result.Single)
	assert.Error(t, err)
}

func TestTakeUnknownHandleIsHandleNotFound(t *testing.T) {
	sys := newTestSystem(t, stubMediaWorker{ext: "png"})
	_, err := sys.Take(context.Background(), FileID("does-not-exist"))
	var notFound errtypes.IsHandleNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRegisterFilePropagatesMediaWorkerFailure(t *testing.T) {
	boom := errtypes.InvalidInput("transcode exploded")
	sys := newTestSystem(t, stubMediaWorker{failErr: boom})
	data := temp.NewMemoryTempData([]byte("image bytes"))

	result, err := sys.RegisterFile(context.Background(), data, func(i int) (builder.FileBuilder, error) {
		return stubBuilder{key: "manga/1/cover"}, nil
	})
	require.NoError(t, err)

	_, err = sys.Take(context.Background(), *result.Single)
	assert.Error(t, err)
}

func TestUserCoverTakesExistingHandle(t *testing.T) {
	sys := newTestSystem(t, stubMediaWorker{ext: "png"})
	data := temp.NewMemoryTempData([]byte("cover bytes"))

	result, err := sys.RegisterFile(context.Background(), data, func(i int) (builder.FileBuilder, error) {
		return stubBuilder{key: "users/1/cover"}, nil
	})
	require.NoError(t, err)

	obj, err := sys.UserCover(context.Background(), result.Single)
	require.NoError(t, err)
	defer obj.Stream.Close()
}

func TestUserCoverRandomTemplateFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template1.png"), []byte("t1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template2.jpeg"), []byte("t2"), 0o600))

	sys := New(Options{
		Backend:         backend.NewMemoryBackend(),
		MediaWorker:     stubMediaWorker{ext: "png"},
		ContainerWorker: singlePayloadWorker{},
		TemplatesDir:    dir,
		TranscodeLimit:  1,
	})

	obj, err := sys.UserCover(context.Background(), nil)
	require.NoError(t, err)
	obj.Stream.Close()
}

func TestUserCoverNoTemplatesIsNoDefaultImageAvailable(t *testing.T) {
	sys := newTestSystem(t, stubMediaWorker{ext: "png"})
	_, err := sys.UserCover(context.Background(), nil)
	var noDefault errtypes.IsNoDefaultImageAvailable
	assert.ErrorAs(t, err, &noDefault)
}

func TestBackgroundTaskPanicSurfacesAsProcessing(t *testing.T) {
	sys := newTestSystem(t, panicMediaWorker{})
	data := temp.NewMemoryTempData([]byte("image bytes"))

	result, err := sys.RegisterFile(context.Background(), data, func(i int) (builder.FileBuilder, error) {
		return stubBuilder{key: "manga/1/cover"}, nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	var takeErr error
	go func() {
		_, takeErr = sys.Take(context.Background(), *result.Single)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Take did not return within the recovery window")
	}

	require.Error(t, takeErr)
	_, ok := takeErr.(storageerr.IsProcessing)
	require.True(t, ok, "expected a storageerr.Processing, got %T: %v", takeErr, takeErr)
	assert.Equal(t, storageerr.BackgroundTaskPanic, takeErr.(storageerr.Processing).Cause)

	_, err = sys.Take(context.Background(), *result.Single)
	assert.Error(t, err)
}

func TestRegistrationConcurrencyBoundedByTranscodeLimit(t *testing.T) {
	const transcodeLimit = 1
	worker := &concurrencyTrackingWorker{}
	sys := New(Options{
		Backend:         backend.NewMemoryBackend(),
		MediaWorker:     worker,
		ContainerWorker: singlePayloadWorker{},
		TemplatesDir:    t.TempDir(),
		TranscodeLimit:  transcodeLimit,
	})

	const n = 20
	ids := make([]FileID, n)
	for i := 0; i < n; i++ {
		data := temp.NewMemoryTempData([]byte("image bytes"))
		result, err := sys.RegisterFile(context.Background(), data, func(i int) (builder.FileBuilder, error) {
			return stubBuilder{key: "manga/1/cover"}, nil
		})
		require.NoError(t, err)
		ids[i] = *result.Single
	}

	for _, id := range ids {
		_, err := sys.Take(context.Background(), id)
		require.NoError(t, err)
	}

	// The inflight semaphore (not the transcode semaphore the stub worker
	// doesn't model) is what actually bounds how many registrations run
	// their media worker concurrently: max(1, TranscodeLimit)*4.
	assert.LessOrEqual(t, atomic.LoadInt64(&worker.peak), int64(4*transcodeLimit))
}
