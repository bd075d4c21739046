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

// Package searchquery compiles a user-typed search string (e.g.
// `title:"one piece" chapters:>=900 !completed`) into a typed boolean tree
// ready for a catalogue to lower into a backend query. The pipeline runs
// Lex (char classification) -> FoldWords (quote/escape handling, merges
// chars into words) -> Group (paren matching) -> Shape (builds the
// Item/Array tree), which Parse drives end to end. Shape infers each value's
// type from the term's own text; a field's declared kind is not consulted.
package searchquery

// Pos is a byte-offset range into the original query string, carried on
// every token and tree node so callers can point at the exact span an error
// or a match came from.
type Pos struct {
	Start int
	End   int
}

// Join returns the smallest Pos covering both p and o.
func (p Pos) Join(o Pos) Pos {
	start, end := p.Start, p.End
	if o.Start < start {
		start = o.Start
	}
	if o.End > end {
		end = o.End
	}
	return Pos{Start: start, End: end}
}

// CharKind classifies a single rune for the folding stage.
type CharKind int

const (
	CharOther CharKind = iota
	CharSpace
	CharQuote
	CharBackslash
	CharLParen
	CharRParen
	CharPipe
	CharAmp
	CharBang
	CharColon
)

// CharToken is one classified rune.
type CharToken struct {
	Kind CharKind
	R    rune
	Pos  Pos
}

func classify(r rune) CharKind {
	switch r {
	case ' ', '\t', '\n', '\r':
		return CharSpace
	case '"':
		return CharQuote
	case '\\':
		return CharBackslash
	case '(':
		return CharLParen
	case ')':
		return CharRParen
	case '|':
		return CharPipe
	case '&':
		return CharAmp
	case '!':
		return CharBang
	case ':':
		return CharColon
	default:
		return CharOther
	}
}

// Lex classifies every rune of s, tracking byte offsets so downstream stages
// can report precise positions.
func Lex(s string) []CharToken {
	tokens := make([]CharToken, 0, len(s))
	i := 0
	for _, r := range s {
		n := len(string(r))
		tokens = append(tokens, CharToken{Kind: classify(r), R: r, Pos: Pos{Start: i, End: i + n}})
		i += n
	}
	return tokens
}
