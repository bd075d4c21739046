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

package searchquery

import "strconv"

// ItemKind is the inferred type of a term's value.
type ItemKind int

const (
	KindString ItemKind = iota
	KindBool
	KindInt
	KindFloat
	KindCmpInt
	KindCmpFloat
)

// Comparator qualifies CmpInt/CmpFloat values.
type Comparator int

const (
	CmpEq Comparator = iota
	CmpGt
	CmpGte
	CmpLt
	CmpLte
)

// ItemValue is a term's value together with the type that was inferred for
// it: quoted text is always KindString; otherwise a comparator prefix
// (">", ">=", "<", "<=") followed by a number yields CmpInt/CmpFloat, a bare
// "true"/"false" yields KindBool, a bare integer or decimal yields
// KindInt/KindFloat, and anything else falls back to KindString.
type ItemValue struct {
	Kind  ItemKind
	Str   string
	Bool  bool
	Int   int64
	Float float64
	Cmp   Comparator
}

// parseValue infers an ItemValue from raw term text. quoted indicates the
// term came from a quoted run, which always forces KindString (a quoted
// "123" is the literal string "123", not the integer 123).
func parseValue(raw string, quoted bool) ItemValue {
	if quoted {
		return ItemValue{Kind: KindString, Str: raw}
	}

	cmp, rest, hasCmp := stripComparator(raw)

	if !hasCmp {
		if b, err := strconv.ParseBool(rest); err == nil && (rest == "true" || rest == "false") {
			return ItemValue{Kind: KindBool, Bool: b}
		}
	}

	if iv, err := strconv.ParseInt(rest, 10, 64); err == nil {
		if hasCmp {
			return ItemValue{Kind: KindCmpInt, Int: iv, Cmp: cmp}
		}
		return ItemValue{Kind: KindInt, Int: iv}
	}

	if fv, err := strconv.ParseFloat(rest, 64); err == nil {
		if hasCmp {
			return ItemValue{Kind: KindCmpFloat, Float: fv, Cmp: cmp}
		}
		return ItemValue{Kind: KindFloat, Float: fv}
	}

	return ItemValue{Kind: KindString, Str: raw}
}

// stripComparator strips a leading ">", ">=", "<" or "<=" prefix, reporting
// whether one was present.
func stripComparator(s string) (Comparator, string, bool) {
	switch {
	case len(s) >= 2 && s[0] == '>' && s[1] == '=':
		return CmpGte, s[2:], true
	case len(s) >= 2 && s[0] == '<' && s[1] == '=':
		return CmpLte, s[2:], true
	case len(s) >= 1 && s[0] == '>':
		return CmpGt, s[1:], true
	case len(s) >= 1 && s[0] == '<':
		return CmpLt, s[1:], true
	default:
		return CmpEq, s, false
	}
}
