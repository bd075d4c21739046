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

import (
	"strings"

	"github.com/cs3org/mangastore/pkg/errtypes"
)

// WordKind classifies a folded token: either a word (possibly built from a
// quoted, escaped run of characters) or one of the punctuation tokens that
// carries structural meaning.
type WordKind int

const (
	WordWord WordKind = iota
	WordLParen
	WordRParen
	WordColon
	WordPipe
	WordAmp
	WordBang
)

// WordToken is one token produced by FoldWords. Quoted records whether a
// Word token's text came from a quoted run, which downstream value parsing
// uses to force the string type even when the contents look numeric.
type WordToken struct {
	Kind   WordKind
	Word   string
	Quoted bool
	Pos    Pos
}

// FoldWords merges runs of CharOther (and quoted/escaped runs) into single
// Word tokens, and passes the structural punctuation through unchanged.
// Inside a quoted run every character except the closing quote and a
// backslash escape is taken literally, including spaces, parens, ':', '|',
// '&' and '!'. A backslash, in or out of a quote, escapes exactly the
// following character.
func FoldWords(tokens []CharToken) ([]WordToken, error) {
	var out []WordToken
	i := 0
	for i < len(tokens) {
		t := tokens[i]
		switch t.Kind {
		case CharSpace:
			i++
		case CharLParen:
			out = append(out, WordToken{Kind: WordLParen, Pos: t.Pos})
			i++
		case CharRParen:
			out = append(out, WordToken{Kind: WordRParen, Pos: t.Pos})
			i++
		case CharColon:
			out = append(out, WordToken{Kind: WordColon, Pos: t.Pos})
			i++
		case CharPipe:
			out = append(out, WordToken{Kind: WordPipe, Pos: t.Pos})
			i++
		case CharAmp:
			out = append(out, WordToken{Kind: WordAmp, Pos: t.Pos})
			i++
		case CharBang:
			out = append(out, WordToken{Kind: WordBang, Pos: t.Pos})
			i++
		case CharQuote:
			word, end, err := foldQuoted(tokens, i)
			if err != nil {
				return nil, err
			}
			out = append(out, WordToken{Kind: WordWord, Word: word, Quoted: true, Pos: Pos{Start: t.Pos.Start, End: tokens[end-1].Pos.End}})
			i = end
		case CharBackslash:
			word, end := foldBare(tokens, i)
			out = append(out, WordToken{Kind: WordWord, Word: word, Pos: Pos{Start: t.Pos.Start, End: tokens[end-1].Pos.End}})
			i = end
		default: // CharOther
			word, end := foldBare(tokens, i)
			out = append(out, WordToken{Kind: WordWord, Word: word, Pos: Pos{Start: t.Pos.Start, End: tokens[end-1].Pos.End}})
			i = end
		}
	}
	return out, nil
}

// foldQuoted consumes tokens[start:] starting on an opening CharQuote and
// returns the unescaped contents plus the index just past the closing quote.
func foldQuoted(tokens []CharToken, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(tokens) {
		t := tokens[i]
		if t.Kind == CharQuote {
			return sb.String(), i + 1, nil
		}
		if t.Kind == CharBackslash && i+1 < len(tokens) {
			sb.WriteRune(tokens[i+1].R)
			i += 2
			continue
		}
		sb.WriteRune(t.R)
		i++
	}
	return "", 0, errtypes.InvalidInput("unterminated quoted string")
}

// foldBare consumes an unquoted run of non-structural characters (honoring
// backslash escapes) starting at tokens[start], returning the run's text and
// the index just past it.
func foldBare(tokens []CharToken, start int) (string, int) {
	var sb strings.Builder
	i := start
	for i < len(tokens) {
		t := tokens[i]
		switch t.Kind {
		case CharSpace, CharLParen, CharRParen, CharColon, CharPipe, CharAmp, CharBang, CharQuote:
			return sb.String(), i
		case CharBackslash:
			if i+1 < len(tokens) {
				sb.WriteRune(tokens[i+1].R)
				i += 2
				continue
			}
			return sb.String(), i + 1
		default:
			sb.WriteRune(t.R)
			i++
		}
	}
	return sb.String(), i
}
