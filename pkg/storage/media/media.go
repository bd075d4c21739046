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

// Package media inspects and, when necessary, transcodes an uploaded image
// or PDF before it's committed to a storage backend. Heavy work (decode,
// re-encode, PDF splitting) is bounded by a caller-supplied semaphore and
// always runs off the caller's hot path.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	_ "golang.org/x/image/webp" // allowed-format decode support

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/mime"
	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/storageerr"
	"github.com/cs3org/mangastore/pkg/storage/temp"
)

// Dimensions is a probed image's width/height in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// PreparedUpload describes where ProcessAndUpload placed the (possibly
// transcoded) blob and what it turned out to be.
type PreparedUpload struct {
	Key  string
	Dims *Dimensions
	Ext  string
}

// allowedExts passes through unmodified; anything else that sniffs as an
// image is transcoded to JPEG.
var allowedExts = map[string]bool{
	"avif": true,
	"webp": true,
	"png":  true,
	"jpeg": true,
	"gif":  true,
}

// Worker inspects and uploads media blobs.
type Worker interface {
	DetectExt(data temp.Data) (string, error)
	SplitPDFToPNGPages(data temp.Data) ([]temp.Data, error)
	ProcessAndUpload(ctx context.Context, writer backend.Writer, data temp.Data) (PreparedUpload, error)
}

// DefaultWorker is the production Worker.
type DefaultWorker struct {
	sem *semaphore.Weighted
}

// NewDefaultWorker returns a DefaultWorker gating transcode work behind sem.
func NewDefaultWorker(sem *semaphore.Weighted) *DefaultWorker {
	return &DefaultWorker{sem: sem}
}

// DetectExt sniffs data's first bytes for its real format, normalizing
// jpg -> jpeg the way the rest of the system expects.
func (w *DefaultWorker) DetectExt(data temp.Data) (string, error) {
	if path, ok := data.LocalPath(); ok {
		_, ext, err := mime.DetectFile(path)
		if err == nil && ext != "" {
			return ext, nil
		}
	}
	head, err := temp.ReadHead(data, 8192)
	if err != nil {
		return "", err
	}
	_, ext, err := mime.DetectReader(bytes.NewReader(head))
	if err != nil {
		return "", err
	}
	if ext == "" {
		return "", errtypes.MissingExtension("unable to determine extension")
	}
	return ext, nil
}

// ProcessAndUpload acquires a transcode permit, classifies the blob, and
// uploads it (transcoding to JPEG first if it's an image format outside the
// allow-list) to a fresh temp/<uuid> key.
func (w *DefaultWorker) ProcessAndUpload(ctx context.Context, writer backend.Writer, data temp.Data) (PreparedUpload, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return PreparedUpload{}, storageerr.Processing{Cause: storageerr.SemaphoreClosed, Err: err}
	}
	defer w.sem.Release(1)

	ext, err := w.DetectExt(data)
	if err != nil {
		return PreparedUpload{}, err
	}

	key := "temp/" + uuid.NewString()

	if allowedExts[ext] {
		dims, err := w.probeDimensions(data, ext)
		if err != nil {
			return PreparedUpload{}, err
		}
		stream, err := data.OpenStream()
		if err != nil {
			return PreparedUpload{}, err
		}
		defer stream.Close()
		if err := writer.Write(ctx, key, stream); err != nil {
			return PreparedUpload{}, err
		}
		return PreparedUpload{Key: key, Dims: dims, Ext: ext}, nil
	}

	return w.transcodeToJPEG(ctx, writer, data, key)
}

func (w *DefaultWorker) probeDimensions(data temp.Data, ext string) (*Dimensions, error) {
	if path, ok := data.LocalPath(); ok {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if cfg, _, err := image.DecodeConfig(f); err == nil {
				return &Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
			}
		}
	}
	buf, err := temp.ReadAll(data)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		// Not every allowed extension (e.g. avif) has a registered Go
		// decoder; dimensions are best-effort and omitted rather than
		// failing the whole upload.
		return nil, nil
	}
	return &Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

func (w *DefaultWorker) transcodeToJPEG(ctx context.Context, writer backend.Writer, data temp.Data, key string) (PreparedUpload, error) {
	buf, err := temp.ReadAll(data)
	if err != nil {
		return PreparedUpload{}, storageerr.Processing{Cause: storageerr.ReadTempFile, Err: err}
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return PreparedUpload{}, storageerr.Processing{Cause: storageerr.ImageConversion, Err: err}
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: 90}); err != nil {
		return PreparedUpload{}, err
	}

	if err := writer.Write(ctx, key, bytes.NewReader(out.Bytes())); err != nil {
		return PreparedUpload{}, err
	}

	bounds := img.Bounds()
	return PreparedUpload{
		Key:  key,
		Dims: &Dimensions{Width: bounds.Dx(), Height: bounds.Dy()},
		Ext:  "jpeg",
	}, nil
}

// SplitPDFToPNGPages shells out to pdftoppm in a scratch directory, returning
// one FileTempData per resulting page, ordered by page number. The scratch
// directory is always removed afterward, success or failure.
func (w *DefaultWorker) SplitPDFToPNGPages(data temp.Data) ([]temp.Data, error) {
	if err := w.sem.Acquire(context.Background(), 1); err != nil {
		return nil, storageerr.Processing{Cause: storageerr.SemaphoreClosed, Err: err}
	}
	defer w.sem.Release(1)

	workdir, err := os.MkdirTemp("", "storage_pdf_*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workdir)

	srcPath, ownTemp, err := materializeLocal(data, workdir)
	if err != nil {
		return nil, err
	}
	if ownTemp {
		defer os.Remove(srcPath)
	}

	prefix := filepath.Join(workdir, "page")
	cmd := exec.Command("pdftoppm", "-png", srcPath, prefix)
	if err := cmd.Run(); err != nil {
		return nil, storageerr.Processing{Cause: storageerr.SplitPdf, Err: err}
	}

	entries, err := os.ReadDir(workdir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".png" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	pages := make([]temp.Data, 0, len(names))
	for _, name := range names {
		src := filepath.Join(workdir, name)
		dstF, err := os.CreateTemp("", "storage_pdf_page_*.png")
		if err != nil {
			return nil, err
		}
		srcF, err := os.Open(src)
		if err != nil {
			dstF.Close()
			return nil, err
		}
		if _, err := copyAll(dstF, srcF); err != nil {
			srcF.Close()
			dstF.Close()
			return nil, err
		}
		srcF.Close()
		dstF.Close()

		page, err := temp.NewFileTempData(dstF.Name(), true)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func materializeLocal(data temp.Data, workdir string) (path string, ownTemp bool, err error) {
	if p, ok := data.LocalPath(); ok {
		return p, false, nil
	}
	f, err := os.CreateTemp(workdir, "src_*.pdf")
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	buf, err := temp.ReadAll(data)
	if err != nil {
		return "", false, err
	}
	if _, err := f.Write(buf); err != nil {
		return "", false, err
	}
	return f.Name(), true, nil
}

func copyAll(dst *os.File, src *os.File) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}
