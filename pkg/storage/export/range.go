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

// Package export serves stored files back out: byte-range downloads and
// multi-file container bundles (the write-side complement of
// pkg/storage/container's extraction).
package export

import (
	"strconv"
	"strings"

	"github.com/cs3org/mangastore/pkg/errtypes"
)

// HTTPRange is a single resolved byte range within a size-byte resource.
type HTTPRange struct {
	Start  int64
	Length int64
}

const bytesUnit = "bytes="

// ParseRange parses a single-range "Range" header value (RFC 7233 §2.1,
// single-range only: no "bytes=0-1,4-5" list support) against a resource of
// the given size. Accepted forms are "bytes=start-end", "bytes=start-" and
// "bytes=-suffixLength". An end beyond size-1 is clamped, not rejected; a
// start at or beyond size, an inverted range, a zero-length suffix, multiple
// ranges, or any unit other than "bytes" are all rejected.
func ParseRange(rangeHeader string, size int64) ([]HTTPRange, error) {
	if !strings.HasPrefix(rangeHeader, bytesUnit) {
		return nil, errtypes.InvalidInput("unsupported range unit: " + rangeHeader)
	}
	spec := rangeHeader[len(bytesUnit):]

	if strings.Contains(spec, ",") {
		return nil, errtypes.InvalidInput("multiple ranges are not supported")
	}

	if strings.HasPrefix(spec, "-") {
		suffixLen, err := strconv.ParseInt(spec[1:], 10, 64)
		if err != nil || suffixLen <= 0 {
			return nil, errtypes.InvalidInput("invalid suffix range: " + rangeHeader)
		}
		start := size - suffixLen
		if start < 0 {
			start = 0
		}
		return []HTTPRange{{Start: start, Length: size - start}}, nil
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, errtypes.InvalidInput("malformed range: " + rangeHeader)
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return nil, errtypes.InvalidInput("malformed range start: " + rangeHeader)
	}
	if start >= size {
		return nil, errtypes.InvalidInput("range start beyond resource size: " + rangeHeader)
	}

	end := size - 1
	if parts[1] != "" {
		e, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, errtypes.InvalidInput("malformed range end: " + rangeHeader)
		}
		if e < start {
			return nil, errtypes.InvalidInput("inverted range: " + rangeHeader)
		}
		end = e
		if end >= size {
			end = size - 1
		}
	}

	return []HTTPRange{{Start: start, Length: end - start + 1}}, nil
}
