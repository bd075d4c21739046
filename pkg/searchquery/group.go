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
	"fmt"

	"github.com/cs3org/mangastore/pkg/errtypes"
)

// GroupKind is WordKind plus a Group node standing in for a matched
// "(...)" pair, its children already recursively grouped.
type GroupKind int

const (
	GroupWord GroupKind = iota
	GroupColon
	GroupPipe
	GroupAmp
	GroupBang
	GroupGroup
)

// GroupToken is one token of the post-grouping stream: either a pass-through
// WordToken or a Group wrapping the tokens between a matched pair of parens.
type GroupToken struct {
	Kind     GroupKind
	Word     string
	Quoted   bool
	Children []GroupToken
	Pos      Pos
}

// Group matches parentheses, replacing every "(...)" with a single Group
// token and leaving everything else untouched. An unmatched ")" or an
// unclosed "(" are both reported as errors, pointing at the offending paren.
func Group(tokens []WordToken) ([]GroupToken, error) {
	i := 0
	out, _, err := group(tokens, &i, 0)
	return out, err
}

func group(tokens []WordToken, i *int, depth int) ([]GroupToken, *Pos, error) {
	var out []GroupToken
	for *i < len(tokens) {
		t := tokens[*i]
		switch t.Kind {
		case WordRParen:
			if depth == 0 {
				return nil, nil, errtypes.InvalidInput(fmt.Sprintf("unmatched ')' at byte %d", t.Pos.Start))
			}
			*i++
			return out, &t.Pos, nil
		case WordLParen:
			openPos := t.Pos
			*i++
			children, closePos, err := group(tokens, i, depth+1)
			if err != nil {
				return nil, nil, err
			}
			if closePos == nil {
				return nil, nil, errtypes.InvalidInput(fmt.Sprintf("unclosed '(' at byte %d", openPos.Start))
			}
			out = append(out, GroupToken{Kind: GroupGroup, Children: children, Pos: openPos.Join(*closePos)})
		default:
			out = append(out, convertWord(t))
			*i++
		}
	}
	// Running out of tokens inside a group returns no close position; the
	// caller that consumed the matching "(" reports it as unclosed.
	return out, nil, nil
}

func convertWord(t WordToken) GroupToken {
	switch t.Kind {
	case WordColon:
		return GroupToken{Kind: GroupColon, Pos: t.Pos}
	case WordPipe:
		return GroupToken{Kind: GroupPipe, Pos: t.Pos}
	case WordAmp:
		return GroupToken{Kind: GroupAmp, Pos: t.Pos}
	case WordBang:
		return GroupToken{Kind: GroupBang, Pos: t.Pos}
	default:
		return GroupToken{Kind: GroupWord, Word: t.Word, Quoted: t.Quoted, Pos: t.Pos}
	}
}
