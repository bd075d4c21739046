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

import "github.com/cs3org/mangastore/pkg/errtypes"

// DefaultField is the field an unqualified term (no "field:" prefix)
// searches against.
const DefaultField = "title"

// NodeMeta is embedded by both Item and Array. OrNext records how this node
// joins the *following* sibling in its parent Array: true for an explicit
// "|", false (the default) for an explicit "&" or plain adjacency. The last
// sibling's OrNext has no following sibling to join and so has no effect.
type NodeMeta struct {
	Pos     Pos
	Negated bool
	OrNext  bool
}

// Meta returns the node's embedded metadata.
func (m NodeMeta) Meta() NodeMeta { return m }

// Node is either an Item (a leaf field:value term) or an Array (a
// parenthesized group of sibling nodes).
type Node interface {
	Meta() NodeMeta
}

// Item is one leaf term: an optionally-negated, optionally-field-qualified
// typed value.
type Item struct {
	NodeMeta
	Field string
	Value ItemValue
}

// Array is a parenthesized (or top-level) sequence of sibling nodes, each
// combined with the next per its own OrNext flag.
type Array struct {
	NodeMeta
	Items []Node
}

// Shape builds the Item/Array tree out of a grouped token stream.
func Shape(tokens []GroupToken) (*Array, error) {
	items, _, err := shapeSiblings(tokens)
	if err != nil {
		return nil, err
	}
	pos := Pos{}
	if len(tokens) > 0 {
		pos = tokens[0].Pos.Join(tokens[len(tokens)-1].Pos)
	}
	return &Array{NodeMeta: NodeMeta{Pos: pos}, Items: items}, nil
}

func shapeSiblings(tokens []GroupToken) ([]Node, Pos, error) {
	var nodes []Node
	var span Pos
	i := 0
	for i < len(tokens) {
		negated := false
		start := tokens[i].Pos
		if tokens[i].Kind == GroupBang {
			negated = true
			i++
			if i >= len(tokens) {
				return nil, Pos{}, errtypes.InvalidInput("dangling '!' with no following term")
			}
		}

		var node Node
		switch tokens[i].Kind {
		case GroupGroup:
			inner, _, err := shapeSiblings(tokens[i].Children)
			if err != nil {
				return nil, Pos{}, err
			}
			node = &Array{NodeMeta: NodeMeta{Pos: start.Join(tokens[i].Pos), Negated: negated}, Items: inner}
			i++

		case GroupWord:
			field := DefaultField
			valueTok := tokens[i]
			if i+1 < len(tokens) && tokens[i+1].Kind == GroupColon {
				valueIdx := i + 2
				if valueIdx < len(tokens) && tokens[valueIdx].Kind == GroupBang {
					negated = !negated
					valueIdx++
				}
				if valueIdx < len(tokens) && tokens[valueIdx].Kind == GroupWord {
					field = tokens[i].Word
					valueTok = tokens[valueIdx]
					i = valueIdx + 1
				} else {
					i++
				}
			} else {
				i++
			}
			node = &Item{
				NodeMeta: NodeMeta{Pos: start.Join(valueTok.Pos), Negated: negated},
				Field:    field,
				Value:    parseValue(valueTok.Word, valueTok.Quoted),
			}

		case GroupColon:
			return nil, Pos{}, errtypes.InvalidInput("unexpected ':' with no preceding field name")

		case GroupPipe, GroupAmp:
			return nil, Pos{}, errtypes.InvalidInput("unexpected combinator with no preceding term")

		default:
			return nil, Pos{}, errtypes.InvalidInput("unexpected token")
		}

		if i < len(tokens) {
			switch tokens[i].Kind {
			case GroupPipe:
				setOrNext(node, true)
				i++
			case GroupAmp:
				setOrNext(node, false)
				i++
			}
		}

		nodes = append(nodes, node)
		span = span.Join(node.Meta().Pos)
	}
	return nodes, span, nil
}

func setOrNext(n Node, v bool) {
	switch t := n.(type) {
	case *Item:
		t.OrNext = v
	case *Array:
		t.OrNext = v
	}
}
