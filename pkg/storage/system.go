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

// Package storage ties the temp-data, backend, decorator, container and
// media packages together into the system callers actually talk to:
// register an upload, get back a handle immediately, and later take the
// finished (or failed) result exactly once.
package storage

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/log"
	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/builder"
	"github.com/cs3org/mangastore/pkg/storage/container"
	"github.com/cs3org/mangastore/pkg/storage/media"
	"github.com/cs3org/mangastore/pkg/storage/storageerr"
	"github.com/cs3org/mangastore/pkg/storage/temp"
)

var logger = log.New("storage")

// FileID identifies a registered (possibly still-processing) file.
type FileID string

// StoredFile is the terminal, successful result of registering a file.
type StoredFile struct {
	Key  string
	Dims *media.Dimensions
	Ext  string
}

// state is the slot's internal state machine: Processing -> {uploaded|failed},
// exactly once, matching the EntryState the original registry carries.
type state int

const (
	stateProcessing state = iota
	stateUploaded
	stateFailed
)

type slot struct {
	done  chan struct{}
	state state
	file  StoredFile
	err   error
}

// System is the handle registry and orchestrator. Every registration mints a
// FileID, starts background work bounded by an inflight semaphore, and
// returns the id immediately; callers retrieve the outcome with Take.
type System struct {
	be              backend.Backend
	mediaWorker     media.Worker
	containerWorker container.Worker
	templatesDir    string

	inflightSem *semaphore.Weighted

	mu    sync.Mutex
	slots map[FileID]*slot
}

// Options configures a new System.
type Options struct {
	Backend         backend.Backend
	MediaWorker     media.Worker
	ContainerWorker container.Worker
	TemplatesDir    string
	TranscodeLimit  int
}

// New constructs a System. The inflight limit (how many registrations may be
// mid-flight at once) is max(1, TranscodeLimit)*4, matching the original's
// own ratio between transcode concurrency and registration concurrency.
func New(opts Options) *System {
	limit := opts.TranscodeLimit
	if limit < 1 {
		limit = 1
	}
	return &System{
		be:              opts.Backend,
		mediaWorker:     opts.MediaWorker,
		containerWorker: opts.ContainerWorker,
		templatesDir:    opts.TemplatesDir,
		inflightSem:     semaphore.NewWeighted(int64(limit * 4)),
		slots:           map[FileID]*slot{},
	}
}

// RegisterResult is the outcome of dispatching one uploaded blob's container
// payload: exactly one of Single/Chapter/Manga is populated, according to
// what the container worker detected.
type RegisterResult struct {
	Single  *FileID
	Chapter []FileID
	Manga   *MangaRegisterResult
}

// MangaRegisterResult is the manga-bundle shape of RegisterResult.
type MangaRegisterResult struct {
	Metadata             container.MangaBundleMetadata
	ChapterImageIndexes  [][]int
	Images               []FileID
}

// BuilderFor mints the FileBuilder for the i-th image of a multi-image
// payload (a chapter page or a manga bundle image); for a single-file
// payload, i is always 0.
type BuilderFor func(i int) (builder.FileBuilder, error)

// RegisterFile demultiplexes data via the container worker and dispatches
// each resulting image for background registration.
func (s *System) RegisterFile(ctx context.Context, data temp.Data, builderFor BuilderFor) (RegisterResult, error) {
	payload, err := s.containerWorker.ExtractPayload(data)
	if err != nil {
		return RegisterResult{}, err
	}

	switch p := payload.(type) {
	case container.SingleFilePayload:
		fb, err := builderFor(0)
		if err != nil {
			return RegisterResult{}, err
		}
		id := s.registerSingleTempFile(ctx, p.Data, fb)
		return RegisterResult{Single: &id}, nil

	case container.ChapterPayload:
		ids, err := s.registerMany(ctx, p.Images, builderFor)
		if err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{Chapter: ids}, nil

	case container.MangaPayload:
		ids, err := s.registerMany(ctx, p.Images, builderFor)
		if err != nil {
			return RegisterResult{}, err
		}
		var chapterImageIndexes [][]int
		for _, chapter := range p.Metadata.Chapters {
			for _, version := range chapter.Versions {
				chapterImageIndexes = append(chapterImageIndexes, version.ImageIndexes)
			}
		}
		return RegisterResult{Manga: &MangaRegisterResult{
			Metadata:            p.Metadata,
			ChapterImageIndexes: chapterImageIndexes,
			Images:              ids,
		}}, nil
	}

	return RegisterResult{}, errtypes.InvalidInput("unrecognized container payload")
}

const registerFanout = 8

// registerMany dispatches registerSingleTempFile for every item, bounding how
// many dispatch calls run concurrently (not the background processing itself,
// which inflightSem already bounds), preserving input order in the result.
func (s *System) registerMany(ctx context.Context, items []temp.Data, builderFor BuilderFor) ([]FileID, error) {
	ids := make([]FileID, len(items))
	dispatchSem := semaphore.NewWeighted(registerFanout)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, item := range items {
		if err := dispatchSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, item temp.Data) {
			defer wg.Done()
			defer dispatchSem.Release(1)
			fb, err := builderFor(i)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			ids[i] = s.registerSingleTempFile(ctx, item, fb)
		}(i, item)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return ids, nil
}

// registerSingleTempFile mints a handle, reserves an inflight permit, and
// spawns the background work that turns data into a stored object. It never
// blocks on that work: the returned FileID is immediately resolvable via
// Take, which itself blocks until the background work reaches a terminal
// state.
func (s *System) registerSingleTempFile(ctx context.Context, data temp.Data, fb builder.FileBuilder) FileID {
	id := FileID(uuid.NewString())
	sl := &slot{done: make(chan struct{}), state: stateProcessing}

	s.mu.Lock()
	s.slots[id] = sl
	s.mu.Unlock()

	if err := s.inflightSem.Acquire(ctx, 1); err != nil {
		s.finishFailed(sl, storageerr.Processing{Cause: storageerr.SemaphoreClosed, Err: err})
		return id
	}

	go func() {
		defer s.inflightSem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				logger.Panic(ctx, fmt.Sprintf("background registration panicked: %v", r))
				s.finishFailed(sl, storageerr.Processing{Cause: storageerr.BackgroundTaskPanic, Err: fmt.Errorf("%v", r)})
			}
			_ = data.Close()
		}()

		prepared, err := s.mediaWorker.ProcessAndUpload(ctx, s.be, data)
		if err != nil {
			s.finishFailed(sl, err)
			return
		}
		finalKey, err := fb.BuildKey(prepared.Ext)
		if err != nil {
			s.finishFailed(sl, err)
			return
		}
		if err := s.be.Rename(ctx, prepared.Key, finalKey); err != nil {
			s.finishFailed(sl, err)
			return
		}
		s.finishUploaded(sl, StoredFile{Key: finalKey, Dims: prepared.Dims, Ext: prepared.Ext})
	}()

	return id
}

func (s *System) finishUploaded(sl *slot, file StoredFile) {
	sl.state = stateUploaded
	sl.file = file
	close(sl.done)
}

func (s *System) finishFailed(sl *slot, err error) {
	sl.state = stateFailed
	sl.err = err
	close(sl.done)
}

// Take blocks until id reaches a terminal state and then removes it from the
// registry, so every handle can be consumed exactly once.
func (s *System) Take(ctx context.Context, id FileID) (StoredFile, error) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	s.mu.Unlock()
	if !ok {
		return StoredFile{}, errtypes.HandleNotFound(string(id))
	}

	select {
	case <-sl.done:
	case <-ctx.Done():
		return StoredFile{}, ctx.Err()
	}

	s.mu.Lock()
	delete(s.slots, id)
	s.mu.Unlock()

	if sl.state == stateFailed {
		return StoredFile{}, sl.err
	}
	return sl.file, nil
}

// TakeBytes takes id and reads the resulting object back from the backend.
func (s *System) TakeBytes(ctx context.Context, id FileID, opts backend.GetOptions) (*backend.Object, error) {
	file, err := s.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.be.Get(ctx, file.Key, opts)
}

// userCoverExts is the random-fallback allow-list. It differs from the upload
// allow-list: it also accepts jpg and qoi (matching the original's selection
// for pre-seeded template art) and does not accept webp.
var userCoverExts = map[string]bool{
	"png": true, "gif": true, "jpeg": true, "jpg": true, "qoi": true, "avif": true,
}

// UserCover resolves a user's cover image: if existing is non-nil, it takes
// that handle; otherwise it picks a random template image from TemplatesDir.
func (s *System) UserCover(ctx context.Context, existing *FileID) (*backend.Object, error) {
	if existing != nil {
		return s.TakeBytes(ctx, *existing, backend.GetOptions{})
	}

	entries, err := os.ReadDir(s.templatesDir)
	if err != nil {
		return nil, errtypes.NoDefaultImageAvailable(err.Error())
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if len(ext) > 0 {
			ext = ext[1:]
		}
		if userCoverExts[ext] {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return nil, errtypes.NoDefaultImageAvailable(s.templatesDir)
	}

	chosen := candidates[rand.Intn(len(candidates))]
	path := filepath.Join(s.templatesDir, chosen)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &backend.Object{
		Stream:        f,
		ContentLength: info.Size(),
		LastModified:  info.ModTime(),
	}, nil
}
