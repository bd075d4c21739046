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

// Package temp holds data that has been received but not yet committed to a
// storage backend: an upload buffered on disk or in memory while the
// container and media workers decide what becomes of it.
package temp

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/cs3org/mangastore/pkg/errors"
)

// Data is a readable, seekable window of bytes with O(1) sub-slicing.
// Slice never copies; FileTempData slices share the same open file handle,
// MemoryTempData slices share the same backing buffer.
type Data interface {
	// Len returns the length of this window in bytes.
	Len() int64
	// ReadAt reads len(p) bytes starting at off within this window.
	ReadAt(p []byte, off int64) (int, error)
	// OpenStream returns a fresh reader over this window, starting at offset 0.
	OpenStream() (io.ReadCloser, error)
	// Slice returns a new Data restricted to [off, off+length) of this window.
	Slice(off, length int64) (Data, error)
	// LocalPath returns the backing file path and true if this Data is
	// file-backed and starts at the file's first byte, allowing callers to
	// take a local-file fast path (e.g. dimension probing) instead of reading
	// through OpenStream. A slice at a non-zero offset returns false.
	LocalPath() (string, bool)
	// Close releases any resources (temp file deletion is fire-and-forget).
	Close() error
}

func readAll(d Data) ([]byte, error) {
	buf := make([]byte, d.Len())
	_, err := d.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// ReadAll reads the entirety of d into memory.
func ReadAll(d Data) ([]byte, error) {
	return readAll(d)
}

// ReadHead reads up to n bytes from the start of d, or fewer if d is shorter.
func ReadHead(d Data, n int64) ([]byte, error) {
	if n > d.Len() {
		n = d.Len()
	}
	buf := make([]byte, n)
	read, err := d.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// fileInner is the refcounted state shared by a FileTempData and every Data
// produced by slicing it; the backing file is removed exactly once, off the
// caller's path, when the last reference goes away.
type fileInner struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	refs     int
	fromUser bool // true if the caller owns path's lifecycle (do not delete)
}

func (fi *fileInner) release() {
	fi.mu.Lock()
	fi.refs--
	shouldDelete := fi.refs == 0 && !fi.fromUser
	path := fi.path
	f := fi.file
	fi.mu.Unlock()

	if fi.refs > 0 {
		return
	}

	go func() {
		_ = f.Close()
		if shouldDelete {
			_ = os.Remove(path)
		}
	}()
}

// FileTempData is temp data backed by a file on disk.
type FileTempData struct {
	inner  *fileInner
	offset int64
	length int64
}

// NewFileTempData opens fn and wraps its full contents as Data. If
// deleteOnClose is true the file is removed when the last Data referencing it
// is closed.
func NewFileTempData(fn string, deleteOnClose bool) (*FileTempData, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open temp file %q", fn)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to stat temp file %q", fn)
	}
	return &FileTempData{
		inner: &fileInner{
			file:     f,
			path:     fn,
			refs:     1,
			fromUser: !deleteOnClose,
		},
		offset: 0,
		length: info.Size(),
	}, nil
}

// Len implements Data.
func (d *FileTempData) Len() int64 { return d.length }

// ReadAt implements Data.
func (d *FileTempData) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > d.length {
		return 0, errors.Newf("read offset %d out of range [0,%d)", off, d.length)
	}
	max := d.length - off
	if int64(len(p)) > max {
		p = p[:max]
	}
	d.inner.mu.Lock()
	n, err := d.inner.file.ReadAt(p, d.offset+off)
	d.inner.mu.Unlock()
	return n, err
}

// OpenStream implements Data.
func (d *FileTempData) OpenStream() (io.ReadCloser, error) {
	return io.NopCloser(io.NewSectionReader(d.inner.file, d.offset, d.length)), nil
}

// Slice implements Data.
func (d *FileTempData) Slice(off, length int64) (Data, error) {
	if off < 0 || length < 0 || off+length > d.length {
		return nil, errors.Newf("slice [%d,%d) out of range for length %d", off, off+length, d.length)
	}
	d.inner.mu.Lock()
	d.inner.refs++
	d.inner.mu.Unlock()
	return &FileTempData{inner: d.inner, offset: d.offset + off, length: length}, nil
}

// LocalPath implements Data.
func (d *FileTempData) LocalPath() (string, bool) {
	if d.offset == 0 {
		return d.inner.path, true
	}
	return "", false
}

// Close implements Data.
func (d *FileTempData) Close() error {
	d.inner.release()
	return nil
}

// MemoryTempData is temp data backed by an in-memory buffer.
type MemoryTempData struct {
	data   []byte
	offset int64
	length int64
}

// NewMemoryTempData wraps buf as Data with no copy.
func NewMemoryTempData(buf []byte) *MemoryTempData {
	return &MemoryTempData{data: buf, offset: 0, length: int64(len(buf))}
}

// Len implements Data.
func (d *MemoryTempData) Len() int64 { return d.length }

// ReadAt implements Data.
func (d *MemoryTempData) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > d.length {
		return 0, errors.Newf("read offset %d out of range [0,%d)", off, d.length)
	}
	n := copy(p, d.data[d.offset+off:d.offset+d.length])
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// OpenStream implements Data.
func (d *MemoryTempData) OpenStream() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(d.data[d.offset : d.offset+d.length])), nil
}

// Slice implements Data.
func (d *MemoryTempData) Slice(off, length int64) (Data, error) {
	if off < 0 || length < 0 || off+length > d.length {
		return nil, errors.Newf("slice [%d,%d) out of range for length %d", off, off+length, d.length)
	}
	return &MemoryTempData{data: d.data, offset: d.offset + off, length: length}, nil
}

// LocalPath implements Data: memory-backed data has no local path.
func (d *MemoryTempData) LocalPath() (string, bool) { return "", false }

// Close implements Data: nothing to release.
func (d *MemoryTempData) Close() error { return nil }
