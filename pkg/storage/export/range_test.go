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

import "testing"

func TestParseRangeStartEnd(t *testing.T) {
	r, err := ParseRange("bytes=0-9", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != 1 || r[0].Start != 0 || r[0].Length != 10 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseRangeStartOnly(t *testing.T) {
	r, err := ParseRange("bytes=10-", 100)
	if err != nil {
		t.Fatal(err)
	}
	if r[0].Start != 10 || r[0].Length != 90 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseRangeSuffix(t *testing.T) {
	r, err := ParseRange("bytes=-10", 100)
	if err != nil {
		t.Fatal(err)
	}
	if r[0].Start != 90 || r[0].Length != 10 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseRangeSuffixLargerThanSizeClampsToZero(t *testing.T) {
	r, err := ParseRange("bytes=-1000", 100)
	if err != nil {
		t.Fatal(err)
	}
	if r[0].Start != 0 || r[0].Length != 100 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseRangeEndBeyondSizeIsClamped(t *testing.T) {
	r, err := ParseRange("bytes=0-1000", 100)
	if err != nil {
		t.Fatal(err)
	}
	if r[0].Start != 0 || r[0].Length != 100 {
		t.Fatalf("got %+v", r)
	}
}

func TestParseRangeStartBeyondSizeIsRejected(t *testing.T) {
	if _, err := ParseRange("bytes=100-200", 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRangeInvertedIsRejected(t *testing.T) {
	if _, err := ParseRange("bytes=50-10", 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRangeZeroSuffixIsRejected(t *testing.T) {
	if _, err := ParseRange("bytes=-0", 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRangeNegativeSuffixIsRejected(t *testing.T) {
	if _, err := ParseRange("bytes=--5", 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRangeMultipleRangesRejected(t *testing.T) {
	if _, err := ParseRange("bytes=0-1,4-5", 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRangeWrongUnitRejected(t *testing.T) {
	if _, err := ParseRange("items=0-1", 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRangeMalformedRejected(t *testing.T) {
	for _, v := range []string{"bytes=", "bytes=abc-10", "bytes=10-abc"} {
		if _, err := ParseRange(v, 100); err == nil {
			t.Fatalf("expected error for %q", v)
		}
	}
}
