// Copyright 2018-2022 CERN
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

// Package bytesize parses human-readable byte quantities such as "16MB" or "1GiB".
package bytesize

import (
	"strconv"
	"strings"

	"github.com/cs3org/mangastore/pkg/errors"
)

var units = map[string]uint64{
	"":    1,
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"TB":  1000 * 1000 * 1000 * 1000,
	"PB":  1000 * 1000 * 1000 * 1000 * 1000,
	"EB":  1000 * 1000 * 1000 * 1000 * 1000 * 1000,
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
	"PiB": 1 << 50,
	"EiB": 1 << 60,
}

// Parse parses a byte size such as "100", "1 MB" or "1GiB" into a byte count.
// Whitespace around and between the numeric value and the unit is ignored.
// Fractional values are rejected: bytes are always a whole number.
func Parse(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, errors.Newf("empty byte size")
	}

	i := 0
	for i < len(trimmed) && (trimmed[i] >= '0' && trimmed[i] <= '9') {
		i++
	}
	if i == 0 {
		return 0, errors.Newf("no numeric value in byte size %q", s)
	}

	numPart := trimmed[:i]
	rest := strings.TrimSpace(trimmed[i:])

	if strings.HasPrefix(rest, ".") {
		return 0, errors.Newf("fractional byte sizes are not supported: %q", s)
	}

	unit, ok := units[rest]
	if !ok {
		return 0, errors.Newf("unknown unit %q in byte size %q", rest, s)
	}

	value, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid numeric value in byte size %q", s)
	}

	return value * unit, nil
}
