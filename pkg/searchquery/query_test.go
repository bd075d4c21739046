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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareTerm(t *testing.T) {
	arr, err := Parse("naruto")
	require.NoError(t, err)
	require.Len(t, arr.Items, 1)
	item, ok := arr.Items[0].(*Item)
	require.True(t, ok)
	assert.Equal(t, DefaultField, item.Field)
	assert.Equal(t, KindString, item.Value.Kind)
	assert.Equal(t, "naruto", item.Value.Str)
	assert.False(t, item.Negated)
}

func TestParseFieldValue(t *testing.T) {
	arr, err := Parse(`author:oda`)
	require.NoError(t, err)
	require.Len(t, arr.Items, 1)
	item := arr.Items[0].(*Item)
	assert.Equal(t, "author", item.Field)
	assert.Equal(t, "oda", item.Value.Str)
}

func TestParseQuotedForcesString(t *testing.T) {
	arr, err := Parse(`title:"900"`)
	require.NoError(t, err)
	item := arr.Items[0].(*Item)
	assert.Equal(t, KindString, item.Value.Kind)
	assert.Equal(t, "900", item.Value.Str)
}

func TestParseQuotedSpacesAndPunctuation(t *testing.T) {
	arr, err := Parse(`title:"one piece: the pirate|king"`)
	require.NoError(t, err)
	item := arr.Items[0].(*Item)
	assert.Equal(t, "one piece: the pirate|king", item.Value.Str)
}

func TestParseBoolInt(t *testing.T) {
	arr, err := Parse("completed:true chapters:900")
	require.NoError(t, err)
	require.Len(t, arr.Items, 2)
	completed := arr.Items[0].(*Item)
	assert.Equal(t, KindBool, completed.Value.Kind)
	assert.True(t, completed.Value.Bool)
	chapters := arr.Items[1].(*Item)
	assert.Equal(t, KindInt, chapters.Value.Kind)
	assert.EqualValues(t, 900, chapters.Value.Int)
}

func TestParseComparators(t *testing.T) {
	arr, err := Parse("chapters:>=900 rating:<4.5")
	require.NoError(t, err)
	chapters := arr.Items[0].(*Item)
	assert.Equal(t, KindCmpInt, chapters.Value.Kind)
	assert.Equal(t, CmpGte, chapters.Value.Cmp)
	assert.EqualValues(t, 900, chapters.Value.Int)

	rating := arr.Items[1].(*Item)
	assert.Equal(t, KindCmpFloat, rating.Value.Kind)
	assert.Equal(t, CmpLt, rating.Value.Cmp)
	assert.InDelta(t, 4.5, rating.Value.Float, 0.0001)
}

func TestParseNegation(t *testing.T) {
	arr, err := Parse("!completed:true")
	require.NoError(t, err)
	item := arr.Items[0].(*Item)
	assert.True(t, item.Negated)
}

func TestParseFieldNegation(t *testing.T) {
	arr, err := Parse(`title:!"hello world"`)
	require.NoError(t, err)
	require.Len(t, arr.Items, 1)
	item := arr.Items[0].(*Item)
	assert.Equal(t, "title", item.Field)
	assert.True(t, item.Negated)
	assert.Equal(t, KindString, item.Value.Kind)
	assert.Equal(t, "hello world", item.Value.Str)
}

func TestParseDoubleNegationCancels(t *testing.T) {
	arr, err := Parse(`!title:!naruto`)
	require.NoError(t, err)
	item := arr.Items[0].(*Item)
	assert.Equal(t, "title", item.Field)
	assert.False(t, item.Negated)
}

func TestParseOrCombinator(t *testing.T) {
	arr, err := Parse("author:oda | author:toriyama")
	require.NoError(t, err)
	require.Len(t, arr.Items, 2)
	assert.True(t, arr.Items[0].Meta().OrNext)
	assert.False(t, arr.Items[1].Meta().OrNext)
}

func TestParseImplicitAnd(t *testing.T) {
	arr, err := Parse("author:oda status:ongoing")
	require.NoError(t, err)
	require.Len(t, arr.Items, 2)
	assert.False(t, arr.Items[0].Meta().OrNext)
}

func TestParseGroup(t *testing.T) {
	arr, err := Parse("!(status:hiatus | status:cancelled) author:oda")
	require.NoError(t, err)
	require.Len(t, arr.Items, 2)
	group, ok := arr.Items[0].(*Array)
	require.True(t, ok)
	assert.True(t, group.Negated)
	require.Len(t, group.Items, 2)
	assert.True(t, group.Items[0].Meta().OrNext)
}

func TestParseUnmatchedCloseParen(t *testing.T) {
	_, err := Parse("author:oda)")
	assert.Error(t, err)
}

func TestParseUnclosedOpenParen(t *testing.T) {
	_, err := Parse("(author:oda")
	assert.Error(t, err)
}

func TestParseUnterminatedQuote(t *testing.T) {
	_, err := Parse(`title:"one piece`)
	assert.Error(t, err)
}

func TestParseDanglingBang(t *testing.T) {
	_, err := Parse("author:oda !")
	assert.Error(t, err)
}

func TestParseEscapedCharacters(t *testing.T) {
	arr, err := Parse(`title:one\ piece`)
	require.NoError(t, err)
	item := arr.Items[0].(*Item)
	assert.Equal(t, "one piece", item.Value.Str)
}

func TestParseEmptyQuery(t *testing.T) {
	arr, err := Parse("")
	require.NoError(t, err)
	assert.Len(t, arr.Items, 0)
}
