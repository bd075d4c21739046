// Copyright 2018-2021 CERN
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

package mime

import (
	"io"
	"path"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	gomime "github.com/glpatcern/go-mime" // hopefully temporary
)

const defaultMimeDir = "httpd/unix-directory"

// sniffHeader is the number of leading bytes read to sniff a magic number;
// enough to cover every signature mimetype.Detect knows about.
const sniffHeader = 8192

var mimes sync.Map

func init() {
	mimes = sync.Map{}
}

// RegisterMime is a package level function that registers
// a mime type with the given extension.
// TODO(labkode): check that we do not override mime type mappings?
func RegisterMime(ext, mime string) {
	mimes.Store(ext, mime)
}

// Detect returns the mimetype associated with the given filename.
func Detect(isDir bool, fn string) string {
	if isDir {
		return defaultMimeDir
	}

	ext := path.Ext(fn)
	ext = strings.TrimPrefix(ext, ".")

	mimeType := getCustomMime(ext)

	if mimeType == "" {
		mimeType = gomime.TypeByExtension(ext)
		if mimeType != "" {
			mimes.Store(ext, mimeType)
		}
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return mimeType
}

// DetectReader sniffs the content type from the first bytes of r, the way an
// uploaded blob's real format is determined regardless of any claimed
// extension. The extension returned is bare, lower-case, without a leading dot
// (e.g. "jpeg", never "jpg").
func DetectReader(r io.Reader) (contentType, ext string, err error) {
	head := make([]byte, sniffHeader)
	n, readErr := io.ReadFull(r, head)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		return "", "", readErr
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	ext = strings.TrimPrefix(mt.Extension(), ".")
	ext = normalizeExt(ext)
	return mt.String(), ext, nil
}

// DetectFile is DetectReader for a local path, using mimetype's own
// file-backed sniffing so large files are not read in full.
func DetectFile(fn string) (contentType, ext string, err error) {
	mt, err := mimetype.DetectFile(fn)
	if err != nil {
		return "", "", err
	}
	ext = normalizeExt(strings.TrimPrefix(mt.Extension(), "."))
	return mt.String(), ext, nil
}

// normalizeExt folds aliases a sniffer may report into the canonical
// extension the media worker's allow-list expects.
func normalizeExt(ext string) string {
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// GetFileExts performs the inverse resolution from mimetype to file extensions
func GetFileExts(mime string) []string {
	var found []string
	// first look in our cache
	mimes.Range(func(e, m interface{}) bool {
		if m.(string) == mime {
			found = append(found, e.(string))
		}
		return true
	})
	if len(found) > 0 {
		return found
	}

	// then use the gomime package
	return gomime.ExtensionsByType(mime)
}

func getCustomMime(ext string) string {
	if m, ok := mimes.Load(ext); ok {
		return m.(string)
	}
	return ""
}
