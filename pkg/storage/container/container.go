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

// Package container demultiplexes an uploaded blob into one of the three
// shapes the storage system registers: a single file, a chapter bundle
// (".mrchap") or a full manga bundle (".mrmang"). Detection is by magic
// prefix; anything else passes through as a single file.
package container

import (
	"encoding/binary"

	"github.com/shamaton/msgpack/v2"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/storage/temp"
)

// ChapterMagic is the 8-byte prefix identifying a ".mrchap" bundle.
var ChapterMagic = [8]byte{'M', 'R', 'C', 'H', 'A', 'P', '0', '1'}

// MangaMagic is the 8-byte prefix identifying a ".mrmang" bundle.
var MangaMagic = [8]byte{'M', 'R', 'M', 'A', 'N', 'G', '0', '1'}

const (
	// MaxContainerEntries bounds how many blobs a single container may declare,
	// guarding against a maliciously large count field driving unbounded work.
	MaxContainerEntries = 10000
	// MaxMangaMetadataBytes bounds the metadata blob of a manga bundle.
	MaxMangaMetadataBytes = 1 << 20 // 1 MiB
)

// ChapterVersion holds the image indexes making up one published version of
// a chapter (a "version" exists because chapters are sometimes rescanned and
// re-released; each rescan is a new version sharing the same chapter slot).
type ChapterVersion struct {
	ImageIndexes []int `msgpack:"image_indexes"`
}

// ChapterMetadata is one chapter entry inside a manga bundle's metadata.
type ChapterMetadata struct {
	Title    string           `msgpack:"title"`
	Versions []ChapterVersion `msgpack:"versions"`
}

// MangaBundleMetadata is the manga-level metadata carried inside a
// ".mrmang" bundle, wire-encoded with msgpack (replacing the original's
// bincode encoding 1:1 in shape).
type MangaBundleMetadata struct {
	Title    string            `msgpack:"title"`
	Chapters []ChapterMetadata `msgpack:"chapters"`
}

// Payload is the demultiplexed shape of an uploaded blob.
type Payload interface {
	isPayload()
}

// SingleFilePayload is an upload with no recognized container magic: stored
// and served as one opaque file.
type SingleFilePayload struct {
	Data temp.Data
}

func (SingleFilePayload) isPayload() {}

// ChapterPayload is a ".mrchap" bundle: an ordered sequence of page images.
type ChapterPayload struct {
	Images []temp.Data
}

func (ChapterPayload) isPayload() {}

// MangaPayload is a ".mrmang" bundle: manga-level metadata plus the full pool
// of page images it references.
type MangaPayload struct {
	Metadata MangaBundleMetadata
	Images   []temp.Data
}

func (MangaPayload) isPayload() {}

// Worker demultiplexes temp data into a Payload.
type Worker interface {
	ExtractPayload(data temp.Data) (Payload, error)
}

// MagicWorker is the default Worker, sniffing the first 8 bytes for
// ChapterMagic/MangaMagic and falling back to SingleFilePayload.
type MagicWorker struct{}

// NewMagicWorker returns a MagicWorker.
func NewMagicWorker() *MagicWorker { return &MagicWorker{} }

// ExtractPayload implements Worker.
func (w *MagicWorker) ExtractPayload(data temp.Data) (Payload, error) {
	if data.Len() < 8 {
		return SingleFilePayload{Data: data}, nil
	}
	head := make([]byte, 8)
	if _, err := data.ReadAt(head, 0); err != nil {
		return nil, err
	}

	switch {
	case matches(head, ChapterMagic):
		return extractChapter(data)
	case matches(head, MangaMagic):
		return extractManga(data)
	default:
		return SingleFilePayload{Data: data}, nil
	}
}

func matches(head []byte, magic [8]byte) bool {
	for i := range magic {
		if head[i] != magic[i] {
			return false
		}
	}
	return true
}

func readU32At(data temp.Data, off int64) (uint32, error) {
	if off+4 > data.Len() {
		return 0, errtypes.InvalidInput("container count/length field runs past end of data")
	}
	buf := make([]byte, 4)
	n, err := data.ReadAt(buf, off)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, errtypes.InvalidInput("container count/length field was truncated")
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// extractBlobSequence walks data starting at off, reading a u32-LE length
// prefix followed by that many bytes, count times, returning zero-copy
// slices (never materializing the blobs). A count exceeding
// MaxContainerEntries, or a length prefix that runs past the end of data, is
// rejected.
func extractBlobSequence(data temp.Data, off int64, count uint32) ([]temp.Data, error) {
	if count > MaxContainerEntries {
		return nil, errtypes.InvalidInput("container declares too many entries")
	}
	blobs := make([]temp.Data, 0, count)
	cursor := off
	for i := uint32(0); i < count; i++ {
		blobLen, err := readU32At(data, cursor)
		if err != nil {
			return nil, err
		}
		cursor += 4
		if cursor+int64(blobLen) > data.Len() {
			return nil, errtypes.InvalidInput("container blob runs past end of data")
		}
		slice, err := data.Slice(cursor, int64(blobLen))
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, slice)
		cursor += int64(blobLen)
	}
	return blobs, nil
}

func extractChapter(data temp.Data) (Payload, error) {
	count, err := readU32At(data, 8)
	if err != nil {
		return nil, err
	}
	images, err := extractBlobSequence(data, 12, count)
	if err != nil {
		return nil, err
	}
	return ChapterPayload{Images: images}, nil
}

func extractManga(data temp.Data) (Payload, error) {
	metaLen, err := readU32At(data, 8)
	if err != nil {
		return nil, err
	}
	if metaLen > MaxMangaMetadataBytes {
		return nil, errtypes.InvalidInput("manga bundle metadata exceeds maximum size")
	}
	metaOff := int64(12)
	if metaOff+int64(metaLen) > data.Len() {
		return nil, errtypes.InvalidInput("manga bundle metadata runs past end of data")
	}
	metaBuf := make([]byte, metaLen)
	if _, err := data.ReadAt(metaBuf, metaOff); err != nil {
		return nil, err
	}

	var metadata MangaBundleMetadata
	if err := msgpack.Unmarshal(metaBuf, &metadata); err != nil {
		return nil, errtypes.InvalidInput("manga bundle metadata is not valid msgpack")
	}

	countOff := metaOff + int64(metaLen)
	imageCount, err := readU32At(data, countOff)
	if err != nil {
		return nil, err
	}
	images, err := extractBlobSequence(data, countOff+4, imageCount)
	if err != nil {
		return nil, err
	}

	for _, chapter := range metadata.Chapters {
		for _, version := range chapter.Versions {
			for _, idx := range version.ImageIndexes {
				if idx < 0 || idx >= len(images) {
					return nil, errtypes.InvalidInput("manga bundle chapter references out-of-range image index")
				}
			}
		}
	}

	return MangaPayload{Metadata: metadata, Images: images}, nil
}
