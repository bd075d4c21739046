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
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shamaton/msgpack/v2"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/storage/container"
)

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeBlob(w io.Writer, blob []byte) error {
	if err := writeU32(w, uint32(len(blob))); err != nil {
		return err
	}
	_, err := w.Write(blob)
	return err
}

// WriteChapterBundle writes a ".mrchap" bundle containing pages, in order,
// to w: the bit-exact inverse of container.MagicWorker's chapter extraction.
func WriteChapterBundle(w io.Writer, pages [][]byte) error {
	if _, err := w.Write(container.ChapterMagic[:]); err != nil {
		return err
	}
	if len(pages) > container.MaxContainerEntries {
		return errtypes.InvalidInput("too many pages for a single chapter bundle")
	}
	if err := writeU32(w, uint32(len(pages))); err != nil {
		return err
	}
	for _, page := range pages {
		if err := writeBlob(w, page); err != nil {
			return err
		}
	}
	return nil
}

// EncodeMangaPreamble builds the bytes that precede the image blobs in a
// ".mrmang" bundle: magic, metadata length, metadata bytes, image count.
// Exporter reuses this to compute a bundle's logical length and to serve
// byte ranges across it without reading any image bytes up front.
func EncodeMangaPreamble(metadata container.MangaBundleMetadata, imageCount int) ([]byte, error) {
	if imageCount > container.MaxContainerEntries {
		return nil, errtypes.InvalidInput("too many images for a single manga bundle")
	}
	metaBytes, err := msgpack.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	if len(metaBytes) > container.MaxMangaMetadataBytes {
		return nil, errtypes.InvalidInput("manga bundle metadata exceeds maximum size")
	}

	var buf bytes.Buffer
	buf.Write(container.MangaMagic[:])
	if err := writeU32(&buf, uint32(len(metaBytes))); err != nil {
		return nil, err
	}
	buf.Write(metaBytes)
	if err := writeU32(&buf, uint32(imageCount)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteMangaBundle writes a ".mrmang" bundle: manga-level metadata (msgpack
// encoded) followed by the full image pool, to w: the bit-exact inverse of
// container.MagicWorker's manga extraction.
func WriteMangaBundle(w io.Writer, metadata container.MangaBundleMetadata, images [][]byte) error {
	for _, chapter := range metadata.Chapters {
		for _, version := range chapter.Versions {
			for _, idx := range version.ImageIndexes {
				if idx < 0 || idx >= len(images) {
					return errtypes.InvalidInput("manga bundle chapter references out-of-range image index")
				}
			}
		}
	}

	preamble, err := EncodeMangaPreamble(metadata, len(images))
	if err != nil {
		return err
	}
	if _, err := w.Write(preamble); err != nil {
		return err
	}
	for _, img := range images {
		if err := writeBlob(w, img); err != nil {
			return err
		}
	}
	return nil
}

// maxRestoreManifestBytes bounds the wire size of a restore manifest upload,
// matching the bound already applied to a bundle's own metadata blob.
const maxRestoreManifestBytes = container.MaxMangaMetadataBytes

// ParseRestoreManifest decodes a restore-upload manifest: a msgpack-encoded
// list of [name, id] pairs. Each name carries a "#meta" or "#i<N>" suffix
// tagging what its paired id refers to — exactly one #meta entry is
// required, and the #iN entries must form a dense, zero-based, gap- and
// duplicate-free index. Returns the metadata id and the image ids in index
// order.
func ParseRestoreManifest(data []byte) (metadataID string, imageIDs []string, err error) {
	if len(data) > maxRestoreManifestBytes {
		return "", nil, errtypes.InvalidInput("restore manifest exceeds maximum size")
	}
	var entries [][]string
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return "", nil, errtypes.InvalidInput("restore manifest is not valid msgpack")
	}
	return parseRestoreEntries(entries)
}

func parseRestoreEntries(entries [][]string) (metadataID string, imageIDs []string, err error) {
	haveMeta := false
	indexed := map[int]string{}

	for _, entry := range entries {
		if len(entry) != 2 {
			return "", nil, errtypes.InvalidInput("restore manifest entry must be a [name, id] pair")
		}
		name, id := entry[0], entry[1]
		hash := strings.LastIndexByte(name, '#')
		if hash < 0 {
			return "", nil, errtypes.InvalidInput("restore manifest entry missing '#' tag: " + name)
		}
		tag := name[hash+1:]

		switch {
		case tag == "meta":
			if haveMeta {
				return "", nil, errtypes.InvalidInput("restore manifest declares more than one #meta entry")
			}
			haveMeta = true
			metadataID = id

		case strings.HasPrefix(tag, "i"):
			idx, convErr := strconv.Atoi(tag[1:])
			if convErr != nil || idx < 0 {
				return "", nil, errtypes.InvalidInput("restore manifest has a malformed image tag: " + name)
			}
			if _, dup := indexed[idx]; dup {
				return "", nil, errtypes.InvalidInput(fmt.Sprintf("restore manifest declares duplicate image index %d", idx))
			}
			indexed[idx] = id

		default:
			return "", nil, errtypes.InvalidInput("restore manifest has an unrecognized tag: " + name)
		}
	}

	if !haveMeta {
		return "", nil, errtypes.InvalidInput("restore manifest is missing its #meta entry")
	}

	imageIDs = make([]string, len(indexed))
	for i := range imageIDs {
		id, ok := indexed[i]
		if !ok {
			return "", nil, errtypes.InvalidInput(fmt.Sprintf("restore manifest is missing image index %d", i))
		}
		imageIDs[i] = id
	}

	return metadataID, imageIDs, nil
}
