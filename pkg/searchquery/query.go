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

// Parse compiles a raw query string through the full Lex -> FoldWords ->
// Group -> Shape pipeline, returning the resulting boolean tree.
func Parse(query string) (*Array, error) {
	chars := Lex(query)
	words, err := FoldWords(chars)
	if err != nil {
		return nil, err
	}
	grouped, err := Group(words)
	if err != nil {
		return nil, err
	}
	return Shape(grouped)
}
