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
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cs3org/mangastore/pkg/crypto"
	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/mime"
)

// DiskBackend stores objects as plain files under root, one file per key,
// preserving the key's directory separators.
type DiskBackend struct {
	root string
}

// NewDiskBackend returns a DiskBackend rooted at root. root must already exist.
func NewDiskBackend(root string) *DiskBackend {
	return &DiskBackend{root: root}
}

// validateKey rejects any key that could escape root: absolute paths and ".."
// path components are never allowed, matching the S3 backend's own key
// validation so both backends reject unsafe keys identically.
func validateKey(key string) error {
	if key == "" {
		return errtypes.InvalidInput("empty storage key")
	}
	if filepath.IsAbs(key) {
		return errtypes.InvalidInput("absolute storage key: " + key)
	}
	for _, part := range strings.Split(filepath.ToSlash(key), "/") {
		if part == ".." || part == "." {
			return errtypes.InvalidInput("unsafe storage key: " + key)
		}
	}
	return nil
}

func (b *DiskBackend) resolve(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

// Get implements Reader.
func (b *DiskBackend) Get(_ context.Context, key string, opts GetOptions) (*Object, error) {
	if opts.ContentLengthOnly {
		return nil, errtypes.NotSupported("DiskBackend does not carry a content-length sidecar")
	}
	path, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errtypes.NotFound(key)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	etag, err := etagForFile(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Object{
		Stream:        f,
		ContentLength: info.Size(),
		ContentType:   mime.Detect(false, key),
		ETag:          etag,
		LastModified:  info.ModTime(),
	}, nil
}

func etagForFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return crypto.ComputeMD5XS(f)
}

// Write implements Writer.
func (b *DiskBackend) Write(_ context.Context, key string, r io.Reader) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Rename implements Writer.
func (b *DiskBackend) Rename(_ context.Context, oldKey, newKey string) error {
	oldPath, err := b.resolve(oldKey)
	if err != nil {
		return err
	}
	newPath, err := b.resolve(newKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return errtypes.NotFound(oldKey)
		}
		return err
	}
	return nil
}

// Delete implements Writer.
func (b *DiskBackend) Delete(_ context.Context, key string) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errtypes.NotFound(key)
		}
		return err
	}
	return nil
}
