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
	"context"
	"encoding/binary"
	"io"

	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/container"
)

// Bundle describes one ".mrmang" export about to be streamed: its metadata
// and the backend keys of its images, in final output order.
type Bundle struct {
	Metadata  container.MangaBundleMetadata
	ImageKeys []string
}

// Exporter streams a Bundle — the metadata preamble followed by each
// referenced image — as one logical byte sequence, without ever
// materializing the whole thing: image lengths come from the backend's
// content-length sidecar and image bytes are only read once a requested
// range actually overlaps them.
type Exporter struct {
	be       backend.Backend
	preamble []byte
	images   []string
}

// NewExporter builds an Exporter for bundle.
func NewExporter(be backend.Backend, bundle Bundle) (*Exporter, error) {
	preamble, err := EncodeMangaPreamble(bundle.Metadata, len(bundle.ImageKeys))
	if err != nil {
		return nil, err
	}
	return &Exporter{be: be, preamble: preamble, images: bundle.ImageKeys}, nil
}

// TotalLen computes the full exported byte length: the preamble plus, for
// each image, its 4-byte length prefix and its content length as reported
// by the backend's content-length sidecar. No image bytes are read.
func (e *Exporter) TotalLen(ctx context.Context) (int64, error) {
	total := int64(len(e.preamble))
	for _, key := range e.images {
		obj, err := e.be.Get(ctx, key, backend.GetOptions{ContentLengthOnly: true})
		if err != nil {
			return 0, err
		}
		total += 4 + obj.ContentLength
	}
	return total, nil
}

// WriteRange writes exactly rng.Length bytes of the logical export starting
// at rng.Start to w, fetching an image's bytes only when rng overlaps its
// segment.
func (e *Exporter) WriteRange(ctx context.Context, w io.Writer, rng HTTPRange) error {
	remaining := rng.Length
	pos := int64(0)

	writeBuf := func(segStart int64, data []byte) error {
		segEnd := segStart + int64(len(data))
		if remaining <= 0 || rng.Start >= segEnd || rng.Start+rng.Length <= segStart {
			return nil
		}
		lo := int64(0)
		if rng.Start > segStart {
			lo = rng.Start - segStart
		}
		hi := int64(len(data))
		if rng.Start+rng.Length < segEnd {
			hi = rng.Start + rng.Length - segStart
		}
		if lo >= hi {
			return nil
		}
		n, err := w.Write(data[lo:hi])
		remaining -= int64(n)
		return err
	}

	if err := writeBuf(pos, e.preamble); err != nil {
		return err
	}
	pos += int64(len(e.preamble))

	for _, key := range e.images {
		if remaining <= 0 {
			return nil
		}

		obj, err := e.be.Get(ctx, key, backend.GetOptions{ContentLengthOnly: true})
		if err != nil {
			return err
		}

		var prefix [4]byte
		binary.LittleEndian.PutUint32(prefix[:], uint32(obj.ContentLength))
		if err := writeBuf(pos, prefix[:]); err != nil {
			return err
		}
		pos += int64(len(prefix))

		segStart := pos
		segEnd := segStart + obj.ContentLength
		if remaining > 0 && rng.Start < segEnd && rng.Start+rng.Length > segStart {
			n, err := e.writeImageRange(ctx, w, key, segStart, segEnd, rng)
			remaining -= n
			if err != nil {
				return err
			}
		}
		pos = segEnd
	}
	return nil
}

func (e *Exporter) writeImageRange(ctx context.Context, w io.Writer, key string, segStart, segEnd int64, rng HTTPRange) (int64, error) {
	full, err := e.be.Get(ctx, key, backend.GetOptions{})
	if err != nil {
		return 0, err
	}
	defer full.Stream.Close()

	lo := int64(0)
	if rng.Start > segStart {
		lo = rng.Start - segStart
	}
	hi := segEnd - segStart
	if rng.Start+rng.Length < segEnd {
		hi = rng.Start + rng.Length - segStart
	}

	if lo > 0 {
		if _, err := io.CopyN(io.Discard, full.Stream, lo); err != nil {
			return 0, err
		}
	}
	n, err := io.CopyN(w, full.Stream, hi-lo)
	return n, err
}
